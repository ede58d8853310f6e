package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/brokerline/brokerline/internal/apiclient"
	"github.com/brokerline/brokerline/internal/biometric"
)

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := newFlags("register")
	phone := fs.String("phone", "", "phone number in international format")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *phone == "" {
		return errors.New("-phone is required")
	}

	reg, err := a.api.Register(ctx, *phone)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if err := a.local.SetPhone(ctx, reg.User.Phone); err != nil {
		return fmt.Errorf("store phone: %w", err)
	}
	fmt.Fprintf(a.out, "registered %s (account %s)\n", reg.User.ID, reg.AccountID)
	fmt.Fprintln(a.out, "choose a PIN for this device")
	return a.runFlow(ctx)
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := newFlags("login")
	phone := fs.String("phone", "", "phone number, when this device has none on file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *phone != "" {
		if err := a.local.SetPhone(ctx, *phone); err != nil {
			return fmt.Errorf("store phone: %w", err)
		}
	}
	return a.runFlow(ctx)
}

func (a *app) enrollBiometric(ctx context.Context, args []string) error {
	fs := newFlags("enroll-biometric")
	mode := fs.String("mode", string(biometric.ModeServer), "server signs a challenge, local unlocks the stored PIN")
	if err := fs.Parse(args); err != nil {
		return err
	}
	m := biometric.Mode(*mode)
	if m != biometric.ModeServer && m != biometric.ModeLocal {
		return fmt.Errorf("invalid mode %q", *mode)
	}

	user, err := a.session.Refetch(ctx)
	if err != nil {
		return fmt.Errorf("not signed in: %w", err)
	}
	e, err := a.bio.Enroll(ctx, user.ID, a.cfg.DeviceName, m)
	if errors.Is(err, biometric.ErrUnavailable) {
		return errors.New("no biometric sensor configured (set BROKERLINE_BIOMETRY)")
	}
	if err != nil {
		return fmt.Errorf("enroll: %w", err)
	}
	fmt.Fprintf(a.out, "biometric login enabled on %s\n", e.DeviceName)
	return nil
}

func (a *app) balance(ctx context.Context) error {
	acct, err := a.api.Account(ctx)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	fmt.Fprintf(a.out, "%s  %s %s  (%s)\n", acct.AccountCode, acct.Balance, acct.Currency, acct.Status)
	return nil
}

func (a *app) fund(ctx context.Context, args []string, withdraw bool) error {
	name := "top-up"
	if withdraw {
		name = "withdraw"
	}
	fs := newFlags(name)
	card := fs.String("card", "", "card number")
	amount := fs.String("amount", "", "decimal amount, e.g. 1500.50")
	expiry := fs.String("expiry", "", "card expiry MM/YY (top-up only)")
	cvv := fs.String("cvv", "", "card security code (top-up only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *card == "" || *amount == "" {
		return errors.New("-card and -amount are required")
	}

	txID := uuid.NewString()
	var (
		res apiclient.FundingResult
		err error
	)
	if withdraw {
		res, err = a.api.RequestWithdrawal(ctx, apiclient.Withdrawal{CardNumber: *card, Amount: *amount, ClientTxID: txID})
	} else {
		res, err = a.api.TopUp(ctx, apiclient.TopUp{CardNumber: *card, Expiry: *expiry, CVV: *cvv, Amount: *amount, ClientTxID: txID})
	}
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	fmt.Fprintf(a.out, "%s %s, balance %s %s\n", res.TransactionID, res.Status, res.Balance, res.Currency)
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if _, err := a.session.Refetch(ctx); err != nil && !errors.Is(err, apiclient.ErrUnauthorized) {
		a.logger.Warn("refetch before logout", "error", err)
	}
	if err := a.session.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	fmt.Fprintln(a.out, "signed out")
	return nil
}
