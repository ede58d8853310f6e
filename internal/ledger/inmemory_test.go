package ledger

import (
	"context"
	"errors"
	"testing"
)

func newLedger(t *testing.T) Ledger {
	t.Helper()
	l := NewInMemory()
	if err := EnsureSuspense(context.Background(), l); err != nil {
		t.Fatalf("ensure suspense: %v", err)
	}
	if err := l.EnsureAccount(context.Background(), "account:a"); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	return l
}

func TestTopUpCreditsAccountAgainstSuspense(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	res, err := l.TopUp(ctx, "account:a", "tx-1", 10_000)
	if err != nil {
		t.Fatalf("top up: %v", err)
	}
	if res.Balance != 10_000 || res.Status != StatusPendingSettlement {
		t.Fatalf("unexpected result %+v", res)
	}
	suspense, err := l.Balance(ctx, CardSuspenseAccountCode)
	if err != nil {
		t.Fatalf("suspense balance: %v", err)
	}
	if suspense != -10_000 {
		t.Fatalf("expected suspense -10000, got %d", suspense)
	}
}

func TestTopUpDuplicateReturnsOriginal(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	first, err := l.TopUp(ctx, "account:a", "dup", 500)
	if err != nil {
		t.Fatalf("top up: %v", err)
	}
	second, err := l.TopUp(ctx, "account:a", "dup", 500)
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if second.TransactionID != first.TransactionID || second.Balance != 500 {
		t.Fatalf("expected original result, got %+v", second)
	}
}

func TestWithdrawalRequiresFunds(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	SeedBalance(l, "account:a", 3_000)

	res, err := l.RequestWithdrawal(ctx, "account:a", "w-1", 2_000)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if res.Balance != 1_000 || res.Status != StatusPendingReview {
		t.Fatalf("unexpected result %+v", res)
	}

	if _, err := l.RequestWithdrawal(ctx, "account:a", "w-2", 5_000); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	held, _ := l.Balance(ctx, WithdrawalSuspenseAccountCode)
	if held != 2_000 {
		t.Fatalf("expected 2000 held in suspense, got %d", held)
	}
}

func TestPostingValidation(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	if _, err := l.TopUp(ctx, "account:a", "zero", 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := l.TopUp(ctx, "account:missing", "x", 1); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected missing account, got %v", err)
	}
	if _, err := l.Balance(ctx, "account:missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected missing account balance error, got %v", err)
	}
}
