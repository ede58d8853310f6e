package account

import "time"

// Account is the cash account a user funds before trading. Its balance lives
// in the ledger under AccountCode.
type Account struct {
	ID          string
	OwnerID     string
	AccountCode string
	Currency    string
	Status      string
	CreatedAt   time.Time
}

// Balance is the ledger balance of an account in minor units.
type Balance struct {
	AccountID string
	Amount    int64
	AsOf      time.Time
}
