package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/brokerline/brokerline/internal/ledger"
)

const (
	statusActive    = "active"
	defaultCurrency = "RUB"
)

// Service provisions cash accounts and reads their ledger balances.
type Service struct {
	repo   Repository
	ledger ledger.Ledger
	now    func() time.Time
}

// NewService builds an account service instance.
func NewService(repo Repository, l ledger.Ledger) *Service {
	return &Service{repo: repo, ledger: l, now: time.Now}
}

// Provision creates the owner's cash account and its ledger account. It is
// idempotent: an existing account is returned unchanged.
func (s *Service) Provision(ctx context.Context, ownerID string) (Account, error) {
	if _, err := uuid.Parse(ownerID); err != nil {
		return Account{}, err
	}
	if existing, err := s.repo.GetByOwner(ctx, ownerID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Account{}, err
	}

	id := uuid.NewString()
	a := Account{
		ID:          id,
		OwnerID:     ownerID,
		AccountCode: "account:" + id,
		Currency:    defaultCurrency,
		Status:      statusActive,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.ledger.EnsureAccount(ctx, a.AccountCode); err != nil {
		return Account{}, err
	}
	if err := s.repo.Create(ctx, a); err != nil {
		if errors.Is(err, ErrExists) {
			return s.repo.GetByOwner(ctx, ownerID)
		}
		return Account{}, err
	}
	return a, nil
}

// ForOwner returns the owner's cash account.
func (s *Service) ForOwner(ctx context.Context, ownerID string) (Account, error) {
	return s.repo.GetByOwner(ctx, ownerID)
}

// Balance returns the current ledger balance of the account.
func (s *Service) Balance(ctx context.Context, a Account) (Balance, error) {
	amount, err := s.ledger.Balance(ctx, a.AccountCode)
	if err != nil {
		return Balance{}, err
	}
	return Balance{AccountID: a.ID, Amount: amount, AsOf: s.now().UTC()}, nil
}
