package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type inMemoryLedger struct {
	mu       sync.RWMutex
	balances map[string]int64
	posted   map[string]PostingResult
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests
// and development runs without postgres.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		balances: make(map[string]int64),
		posted:   make(map[string]PostingResult),
	}
}

func (l *inMemoryLedger) EnsureAccount(_ context.Context, code string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.balances[code]; !exists {
		l.balances[code] = 0
	}
	return nil
}

func (l *inMemoryLedger) Balance(_ context.Context, code string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	balance, exists := l.balances[code]
	if !exists {
		return 0, ErrAccountNotFound
	}
	return balance, nil
}

func (l *inMemoryLedger) TopUp(ctx context.Context, accountCode, clientTxID string, amount int64) (PostingResult, error) {
	return l.post(topUpPosting(accountCode, clientTxID, amount), amount)
}

func (l *inMemoryLedger) RequestWithdrawal(ctx context.Context, accountCode, clientTxID string, amount int64) (PostingResult, error) {
	return l.post(withdrawalPosting(accountCode, clientTxID, amount), amount)
}

func (l *inMemoryLedger) post(p posting, amount int64) (PostingResult, error) {
	if amount <= 0 {
		return PostingResult{}, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := p.kind + ":" + p.clientTxID
	if res, exists := l.posted[key]; exists {
		res.Balance = l.balances[p.accountCode]
		return res, ErrDuplicateTransaction
	}

	balance, ok := l.balances[p.accountCode]
	if !ok {
		return PostingResult{}, ErrAccountNotFound
	}
	if _, ok := l.balances[p.contraCode]; !ok {
		return PostingResult{}, ErrAccountNotFound
	}
	if balance+p.delta < 0 {
		return PostingResult{}, ErrInsufficientFunds
	}

	l.balances[p.accountCode] = balance + p.delta
	l.balances[p.contraCode] -= p.delta

	res := PostingResult{TransactionID: uuid.NewString(), Balance: balance + p.delta, Status: p.status}
	l.posted[key] = res
	return res, nil
}
