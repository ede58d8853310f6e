package funding

import "time"

// TopUpRequest is the body of POST /account/top-up.
type TopUpRequest struct {
	CardNumber string `json:"card_number"`
	Expiry     string `json:"expiry"`
	CVV        string `json:"cvv"`
	Amount     string `json:"amount"`
	ClientTxID string `json:"client_tx_id"`
}

// WithdrawalRequest is the body of POST /account/withdrawals.
type WithdrawalRequest struct {
	CardNumber string `json:"card_number"`
	Amount     string `json:"amount"`
	ClientTxID string `json:"client_tx_id"`
}

// Response is returned by both funding endpoints.
type Response struct {
	TransactionID     string    `json:"transaction_id"`
	Status            string    `json:"status"`
	Balance           string    `json:"balance"`
	Currency          string    `json:"currency"`
	AcquirerReference string    `json:"acquirer_reference,omitempty"`
	CompletedAt       time.Time `json:"completed_at"`
}
