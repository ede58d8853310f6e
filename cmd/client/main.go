package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/brokerline/brokerline/internal/apiclient"
	"github.com/brokerline/brokerline/internal/biometric"
	"github.com/brokerline/brokerline/internal/config"
	"github.com/brokerline/brokerline/internal/localstore"
	"github.com/brokerline/brokerline/internal/logging"
	"github.com/brokerline/brokerline/internal/session"
	"github.com/brokerline/brokerline/internal/vault"
)

const usage = `usage: brokerline <command> [flags]

commands:
  register -phone <number>          create an account on this device and set a PIN
  login [-phone <number>]           unlock with PIN or biometrics
  enroll-biometric [-mode server]   enable biometric login (server|local)
  balance                           show the cash account
  top-up -card <pan> -amount <sum>  fund the account from a card
  withdraw -card <pan> -amount <sum>
  logout                            forget the session and the local PIN
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewWithWriter(cfg.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, os.Stdin, os.Stdout)
	if err != nil {
		logger.Error("init client", "error", err)
		os.Exit(1)
	}

	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	cfg     config.ClientConfig
	in      io.Reader
	out     io.Writer
	logger  *slog.Logger
	local   *localstore.FileStore
	vault   *vault.SealedFile
	api     *apiclient.Client
	session *session.Provider
	bio     *biometric.Authenticator
	pushTok string
}

func newApp(ctx context.Context, cfg config.ClientConfig, logger *slog.Logger, in io.Reader, out io.Writer) (*app, error) {
	local, err := localstore.NewFileStore(cfg.LocalStorePath())
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	key := cfg.VaultKey
	if key == "" {
		key = hostVaultKey()
	}
	v, err := vault.OpenSealedFile(cfg.VaultPath(), key)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}

	deviceID, err := deviceSecret(ctx, v, "device-id", "")
	if err != nil {
		return nil, err
	}
	pushToken, err := deviceSecret(ctx, v, "push-token", "term-")
	if err != nil {
		return nil, err
	}

	api := apiclient.New(apiclient.Config{
		BaseURL:  cfg.APIURL,
		DeviceID: deviceID,
		Timeout:  cfg.HTTPTimeout,
	}, v, logger)

	enrollments, err := biometric.NewFileEnrollments(cfg.EnrollmentsPath())
	if err != nil {
		return nil, fmt.Errorf("open enrollments: %w", err)
	}
	prompter := biometric.Simulated{Kind: biometric.Capability(cfg.Biometry), Out: out}

	return &app{
		cfg:     cfg,
		in:      in,
		out:     out,
		logger:  logger,
		local:   local,
		vault:   v,
		api:     api,
		session: session.NewProvider(api, local, v, logger),
		bio: biometric.NewAuthenticator(biometric.Deps{
			Prompter:    prompter,
			Enrollments: enrollments,
			Backend:     api,
			Vault:       v,
			Local:       local,
			PushToken:   pushToken,
			Logger:      logger,
		}),
		pushTok: pushToken,
	}, nil
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "register":
		return a.register(ctx, args)
	case "login":
		return a.login(ctx, args)
	case "enroll-biometric":
		return a.enrollBiometric(ctx, args)
	case "balance":
		return a.balance(ctx)
	case "top-up":
		return a.fund(ctx, args, false)
	case "withdraw":
		return a.fund(ctx, args, true)
	case "logout":
		return a.logout(ctx)
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}
