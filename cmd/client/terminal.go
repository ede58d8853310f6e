package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/brokerline/brokerline/internal/apiclient"
	"github.com/brokerline/brokerline/internal/pinflow"
	"github.com/brokerline/brokerline/internal/session"
)

// terminal renders flow feedback on the console.
type terminal struct {
	mu  sync.Mutex
	out io.Writer
}

func (t *terminal) Notify(n pinflow.Notice) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "\n! %s\n", n)
}

func (t *terminal) Pulse() {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprint(t.out, "\a")
}

func (t *terminal) render(st pinflow.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dots := strings.Repeat("*", st.Digits) + strings.Repeat("_", pinflow.PinLength-st.Digits)
	label := map[pinflow.Step]string{
		pinflow.StepEnter:   "enter PIN",
		pinflow.StepCreate:  "new PIN",
		pinflow.StepConfirm: "repeat PIN",
	}[st.Step]
	mark := ""
	if st.Error {
		mark = " x"
	}
	fmt.Fprintf(t.out, "\r%-10s [%s]%s ", label, dots, mark)
}

// runFlow drives one PIN prompt from stdin. Digits are typed as-is; d deletes,
// r resets, q gives up on the PIN.
func (a *app) runFlow(ctx context.Context) error {
	if _, err := a.session.Refetch(ctx); err != nil && !errors.Is(err, apiclient.ErrUnauthorized) {
		a.logger.Warn("refetch session", "error", err)
	}
	if _, ok := a.session.Current(); !ok {
		if err := a.primeFromPhone(ctx); err != nil {
			return err
		}
	}

	term := &terminal{out: a.out}
	done := make(chan struct{})
	var once sync.Once
	optedOut := make(chan struct{})

	flow := pinflow.New(pinflow.Config{
		Local:      a.local,
		Vault:      a.vault,
		Auth:       a.api,
		Session:    a.session,
		Biometrics: a.bio,
		Haptics:    term,
		Notifier:   term,
		PushToken:  a.pushTok,
		OnSuccess:  func() { once.Do(func() { close(done) }) },
		OnClose:    func() { close(optedOut) },
		Logger:     a.logger,
	})
	defer flow.Wait()
	defer flow.Close(false)

	flow.Start(ctx)
	term.render(flow.State())

	keys := make(chan rune, 16)
	readErr := make(chan error, 1)
	go readKeys(a.in, keys, readErr)

	signedIn := func() error {
		fmt.Fprintln(a.out)
		if u, ok := a.session.Current(); ok && u.Phone != "" {
			fmt.Fprintf(a.out, "signed in as %s\n", u.Phone)
		} else {
			fmt.Fprintln(a.out, "signed in")
		}
		return nil
	}
	finished := func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}

	for {
		select {
		case <-done:
			return signedIn()
		case <-optedOut:
			fmt.Fprintln(a.out, "\nPIN entry closed. Run `brokerline login -phone <number>` to sign in with your phone number.")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-keys:
			if !ok {
				if finished() {
					return signedIn()
				}
				if err := <-readErr; err != io.EOF {
					return err
				}
				return errors.New("input closed before sign-in")
			}
			switch r {
			case 'd':
				flow.Delete()
			case 'r':
				flow.ResetPin()
			case 'q':
				flow.Close(true)
				continue
			default:
				// errors are already shown through the notifier
				if err := flow.Digit(ctx, r); errors.Is(err, pinflow.ErrInvalidDigit) {
					continue
				}
			}
			if finished() {
				return signedIn()
			}
			term.render(flow.State())
		}
	}
}

// primeFromPhone lets a signed-out device with a phone on file log in with the
// PIN it set before. The lookup tells the step resolver whether that PIN exists.
func (a *app) primeFromPhone(ctx context.Context) error {
	phone, err := a.local.Phone(ctx)
	if err != nil || phone == "" {
		return errors.New("no phone on this device: run `brokerline login -phone <number>` or `brokerline register`")
	}
	status, err := a.api.LookupPhone(ctx, phone)
	if err != nil {
		return fmt.Errorf("look up %s: %w", phone, err)
	}
	if !status.Registered {
		return fmt.Errorf("%s is not registered: run `brokerline register -phone %s`", phone, phone)
	}
	if !status.HasPin {
		return fmt.Errorf("%s has no PIN usable from this device", phone)
	}
	a.session.Prime(session.User{Phone: phone, HasPin: true})
	return nil
}

// readKeys forwards keystrokes until in fails, then reports the error and
// closes keys, so every key read is delivered first.
func readKeys(in io.Reader, keys chan<- rune, errc chan<- error) {
	r := bufio.NewReader(in)
	for {
		c, _, err := r.ReadRune()
		if err != nil {
			errc <- err
			close(keys)
			return
		}
		if c == '\n' || c == '\r' || c == ' ' {
			continue
		}
		keys <- c
	}
}
