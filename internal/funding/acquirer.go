package funding

import (
	"context"

	"github.com/google/uuid"
)

// Acquirer is a connector to the card processor that authorizes top-ups.
type Acquirer interface {
	AuthorizeCardIn(ctx context.Context, input CardInAuthorization) (AuthorizationDecision, error)
}

// AuthorizationDecision is the acquirer's answer to an authorization.
type AuthorizationDecision struct {
	Reference string
	Status    string
}

// CardInAuthorization carries what the acquirer needs to charge a card.
type CardInAuthorization struct {
	CardNumber string
	Expiry     string
	CVV        string
	Amount     int64
	Currency   string
}

// StaticAcquirer approves every authorization with a synthetic reference.
type StaticAcquirer struct{}

// AuthorizeCardIn approves the top-up.
func (StaticAcquirer) AuthorizeCardIn(_ context.Context, _ CardInAuthorization) (AuthorizationDecision, error) {
	return AuthorizationDecision{Reference: uuid.NewString(), Status: "approved"}, nil
}
