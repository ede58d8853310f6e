package ledger

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientFunds occurs when the account cannot cover a withdrawal.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateTransaction indicates the client transaction id was already
	// posted; the original result is returned alongside it.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrAccountNotFound is returned for unknown ledger account codes.
	ErrAccountNotFound = errors.New("ledger account not found")

	// ErrInvalidAmount is returned for non-positive amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)

const (
	// KindTopUp credits a brokerage account from a card.
	KindTopUp = "top_up"
	// KindWithdrawal debits a brokerage account pending back-office review.
	KindWithdrawal = "withdrawal"

	// StatusPendingSettlement marks a top-up awaiting acquirer settlement.
	StatusPendingSettlement = "pending_settlement"
	// StatusPendingReview marks a withdrawal request awaiting back-office approval.
	StatusPendingReview = "pending_review"

	// CardSuspenseAccountCode parks card top-ups until settlement.
	CardSuspenseAccountCode = "suspense:card"
	// WithdrawalSuspenseAccountCode holds requested withdrawals until they are paid out.
	WithdrawalSuspenseAccountCode = "suspense:withdrawal"
)

// SuspenseAccounts lists the accounts a ledger must have before posting.
var SuspenseAccounts = []string{CardSuspenseAccountCode, WithdrawalSuspenseAccountCode}

// PostingResult captures the outcome of a top-up or withdrawal posting.
type PostingResult struct {
	TransactionID string
	Balance       int64
	Status        string
}

// Ledger is a double-entry cash ledger. Amounts are minor currency units.
type Ledger interface {
	EnsureAccount(ctx context.Context, code string) error
	Balance(ctx context.Context, code string) (int64, error)
	TopUp(ctx context.Context, accountCode, clientTxID string, amount int64) (PostingResult, error)
	RequestWithdrawal(ctx context.Context, accountCode, clientTxID string, amount int64) (PostingResult, error)
}

// posting describes one balanced two-leg transaction against a client account.
type posting struct {
	kind        string
	status      string
	accountCode string
	contraCode  string
	clientTxID  string
	// delta is applied to the client account; the contra account gets -delta.
	delta int64
}

func topUpPosting(accountCode, clientTxID string, amount int64) posting {
	return posting{kind: KindTopUp, status: StatusPendingSettlement, accountCode: accountCode,
		contraCode: CardSuspenseAccountCode, clientTxID: clientTxID, delta: amount}
}

func withdrawalPosting(accountCode, clientTxID string, amount int64) posting {
	return posting{kind: KindWithdrawal, status: StatusPendingReview, accountCode: accountCode,
		contraCode: WithdrawalSuspenseAccountCode, clientTxID: clientTxID, delta: -amount}
}

// EnsureSuspense creates the suspense accounts.
func EnsureSuspense(ctx context.Context, l Ledger) error {
	for _, code := range SuspenseAccounts {
		if err := l.EnsureAccount(ctx, code); err != nil {
			return err
		}
	}
	return nil
}
