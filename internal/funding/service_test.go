package funding

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/brokerline/brokerline/internal/account"
	"github.com/brokerline/brokerline/internal/ledger"
)

type declining struct{}

func (declining) AuthorizeCardIn(context.Context, CardInAuthorization) (AuthorizationDecision, error) {
	return AuthorizationDecision{Status: "declined"}, nil
}

func setup(t *testing.T, acquirer Acquirer) (*Service, ledger.Ledger, account.Account) {
	t.Helper()
	ctx := context.Background()
	l := ledger.NewInMemory()
	accounts := account.NewService(account.NewMemoryRepository(), l)
	acct, err := accounts.Provision(ctx, uuid.NewString())
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	svc, err := NewService(ctx, l, accounts, acquirer)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, l, acct
}

func TestServiceTopUp(t *testing.T) {
	ctx := context.Background()
	svc, _, acct := setup(t, StaticAcquirer{})

	res, err := svc.TopUp(ctx, TopUpInput{
		OwnerID:    acct.OwnerID,
		Amount:     "100.00",
		CardNumber: "4111 1111 1111 1111",
		Expiry:     "12/29",
		CVV:        "123",
		ClientTxID: "dup",
	})
	if err != nil {
		t.Fatalf("top up: %v", err)
	}
	if res.Status != ledger.StatusPendingSettlement {
		t.Fatalf("unexpected status: %s", res.Status)
	}
	if res.Balance != 10_000 {
		t.Fatalf("expected balance 10000, got %d", res.Balance)
	}

	replay, err := svc.TopUp(ctx, TopUpInput{
		OwnerID:    acct.OwnerID,
		Amount:     "100.00",
		CardNumber: "4111111111111111",
		ClientTxID: "dup",
	})
	if !errors.Is(err, ledger.ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if replay.TransactionID != res.TransactionID {
		t.Fatalf("expected replay of %s, got %s", res.TransactionID, replay.TransactionID)
	}
}

func TestServiceTopUpDeclined(t *testing.T) {
	svc, _, acct := setup(t, declining{})
	_, err := svc.TopUp(context.Background(), TopUpInput{OwnerID: acct.OwnerID, Amount: "1", CardNumber: "4111111111111111"})
	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("expected declined, got %v", err)
	}
}

func TestServiceRequestWithdrawal(t *testing.T) {
	ctx := context.Background()
	svc, l, acct := setup(t, StaticAcquirer{})
	ledger.SeedBalance(l, acct.AccountCode, 5_000)

	res, err := svc.RequestWithdrawal(ctx, WithdrawalInput{
		OwnerID:    acct.OwnerID,
		Amount:     "20",
		CardNumber: "4111111111111111",
	})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if res.Balance != 3_000 || res.Status != ledger.StatusPendingReview {
		t.Fatalf("unexpected result %+v", res)
	}

	_, err = svc.RequestWithdrawal(ctx, WithdrawalInput{
		OwnerID:    acct.OwnerID,
		Amount:     "100",
		CardNumber: "4111111111111111",
		ClientTxID: "excess",
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestServiceValidation(t *testing.T) {
	svc, _, acct := setup(t, StaticAcquirer{})
	ctx := context.Background()
	if _, err := svc.TopUp(ctx, TopUpInput{OwnerID: acct.OwnerID, Amount: "1", CardNumber: "4111"}); !errors.Is(err, ErrInvalidCard) {
		t.Fatalf("expected invalid card, got %v", err)
	}
	if _, err := svc.TopUp(ctx, TopUpInput{OwnerID: acct.OwnerID, Amount: "1.001", CardNumber: "4111111111111111"}); !errors.Is(err, account.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := svc.TopUp(ctx, TopUpInput{OwnerID: uuid.NewString(), Amount: "1", CardNumber: "4111111111111111"}); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected missing account, got %v", err)
	}
}

func TestHandlerTopUp(t *testing.T) {
	svc, _, acct := setup(t, StaticAcquirer{})
	app := fiber.New()
	app.Post("/account/top-up", func(c *fiber.Ctx) error {
		c.Locals("user_id", acct.OwnerID)
		return c.Next()
	}, NewHandler(svc).TopUp)

	body := `{"card_number":"4111111111111111","amount":"12.34","client_tx_id":"h-1"}`
	req := httptest.NewRequest(http.MethodPost, "/account/top-up", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), `"balance":"12.34"`) {
		t.Fatalf("unexpected body %s", raw)
	}

	req = httptest.NewRequest(http.MethodPost, "/account/top-up", strings.NewReader(`{"card_number":"4111111111111111","amount":"-1"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
