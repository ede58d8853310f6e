package apiclient

import (
	"context"
	"net/http"
	"time"
)

// Account is the brokerage cash account with a decimal balance string.
type Account struct {
	ID          string    `json:"id"`
	AccountCode string    `json:"account_code"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	Balance     string    `json:"balance"`
	AsOf        time.Time `json:"as_of"`
}

// TopUp describes a card top-up. Amount is a decimal string such as "1500.50".
type TopUp struct {
	CardNumber string `json:"card_number"`
	Expiry     string `json:"expiry,omitempty"`
	CVV        string `json:"cvv,omitempty"`
	Amount     string `json:"amount"`
	ClientTxID string `json:"client_tx_id,omitempty"`
}

// Withdrawal describes a withdrawal request to a card.
type Withdrawal struct {
	CardNumber string `json:"card_number"`
	Amount     string `json:"amount"`
	ClientTxID string `json:"client_tx_id,omitempty"`
}

// FundingResult is returned by TopUp and RequestWithdrawal.
type FundingResult struct {
	TransactionID     string    `json:"transaction_id"`
	Status            string    `json:"status"`
	Balance           string    `json:"balance"`
	Currency          string    `json:"currency"`
	AcquirerReference string    `json:"acquirer_reference"`
	CompletedAt       time.Time `json:"completed_at"`
}

// Account fetches the signed-in user's cash account.
func (c *Client) Account(ctx context.Context) (Account, error) {
	var out Account
	err := c.call(ctx, request{method: http.MethodGet, path: "/account", authenticated: true}, &out)
	return out, err
}

// TopUp funds the account from a card.
func (c *Client) TopUp(ctx context.Context, in TopUp) (FundingResult, error) {
	var out FundingResult
	err := c.call(ctx, request{
		method:        http.MethodPost,
		path:          "/account/top-up",
		body:          in,
		authenticated: true,
		idempotent:    true,
	}, &out)
	return out, err
}

// RequestWithdrawal files a withdrawal for back-office review.
func (c *Client) RequestWithdrawal(ctx context.Context, in Withdrawal) (FundingResult, error) {
	var out FundingResult
	err := c.call(ctx, request{
		method:        http.MethodPost,
		path:          "/account/withdrawals",
		body:          in,
		authenticated: true,
		idempotent:    true,
	}, &out)
	return out, err
}
