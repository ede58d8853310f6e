package funding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brokerline/brokerline/internal/account"
	"github.com/brokerline/brokerline/internal/ledger"
)

var (
	// ErrInvalidCard is returned for card numbers that are not 12-19 digits.
	ErrInvalidCard = errors.New("card number must be 12 to 19 digits")
	// ErrDeclined is returned when the acquirer does not approve a top-up.
	ErrDeclined = errors.New("card authorization declined")
)

// Service coordinates card top-ups and withdrawal requests against the ledger.
type Service struct {
	ledger   ledger.Ledger
	accounts *account.Service
	acquirer Acquirer
	now      func() time.Time
}

// NewService prepares a funding service ensuring the suspense accounts exist.
func NewService(ctx context.Context, l ledger.Ledger, accounts *account.Service, acquirer Acquirer) (*Service, error) {
	if accounts == nil {
		return nil, fmt.Errorf("account service is required")
	}
	if acquirer == nil {
		acquirer = StaticAcquirer{}
	}
	if err := ledger.EnsureSuspense(ctx, l); err != nil {
		return nil, err
	}
	return &Service{ledger: l, accounts: accounts, acquirer: acquirer, now: time.Now}, nil
}

// TopUpInput captures a card top-up.
type TopUpInput struct {
	OwnerID    string
	Amount     string
	ClientTxID string
	CardNumber string
	Expiry     string
	CVV        string
}

// WithdrawalInput captures a withdrawal request to a card.
type WithdrawalInput struct {
	OwnerID    string
	Amount     string
	ClientTxID string
	CardNumber string
}

// Result is the domain outcome of a funding operation. Balance is in minor units.
type Result struct {
	TransactionID     string
	Status            string
	Balance           int64
	Currency          string
	AcquirerReference string
	CompletedAt       time.Time
}

// TopUp authorizes the card and credits the owner's account pending settlement.
// A replayed ClientTxID returns the original posting with ErrDuplicateTransaction.
func (s *Service) TopUp(ctx context.Context, in TopUpInput) (Result, error) {
	amount, acct, err := s.prepare(ctx, in.OwnerID, in.Amount, in.CardNumber)
	if err != nil {
		return Result{}, err
	}
	if in.ClientTxID == "" {
		in.ClientTxID = uuid.NewString()
	}

	decision, err := s.acquirer.AuthorizeCardIn(ctx, CardInAuthorization{
		CardNumber: in.CardNumber,
		Expiry:     in.Expiry,
		CVV:        in.CVV,
		Amount:     amount,
		Currency:   acct.Currency,
	})
	if err != nil {
		return Result{}, err
	}
	if decision.Status != "approved" {
		return Result{}, ErrDeclined
	}

	posted, err := s.ledger.TopUp(ctx, acct.AccountCode, in.ClientTxID, amount)
	return s.result(posted, acct, decision.Reference, err)
}

// RequestWithdrawal moves funds out of the owner's account into review.
func (s *Service) RequestWithdrawal(ctx context.Context, in WithdrawalInput) (Result, error) {
	amount, acct, err := s.prepare(ctx, in.OwnerID, in.Amount, in.CardNumber)
	if err != nil {
		return Result{}, err
	}
	if in.ClientTxID == "" {
		in.ClientTxID = uuid.NewString()
	}

	posted, err := s.ledger.RequestWithdrawal(ctx, acct.AccountCode, in.ClientTxID, amount)
	return s.result(posted, acct, "", err)
}

func (s *Service) prepare(ctx context.Context, ownerID, rawAmount, card string) (int64, account.Account, error) {
	if err := validateCardNumber(card); err != nil {
		return 0, account.Account{}, err
	}
	amount, err := account.ParseAmount(rawAmount)
	if err != nil {
		return 0, account.Account{}, err
	}
	acct, err := s.accounts.ForOwner(ctx, ownerID)
	if err != nil {
		return 0, account.Account{}, err
	}
	return amount, acct, nil
}

func (s *Service) result(posted ledger.PostingResult, acct account.Account, reference string, err error) (Result, error) {
	if err != nil && !errors.Is(err, ledger.ErrDuplicateTransaction) {
		return Result{}, err
	}
	return Result{
		TransactionID:     posted.TransactionID,
		Status:            posted.Status,
		Balance:           posted.Balance,
		Currency:          acct.Currency,
		AcquirerReference: reference,
		CompletedAt:       s.now().UTC(),
	}, err
}

func validateCardNumber(card string) error {
	digits := strings.ReplaceAll(card, " ", "")
	if len(digits) < 12 || len(digits) > 19 {
		return ErrInvalidCard
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return ErrInvalidCard
		}
	}
	return nil
}
