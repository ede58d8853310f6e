package biometric

import (
	"context"
	"fmt"
	"io"
)

// Capability is the kind of biometric sensor the device offers.
type Capability string

const (
	CapabilityNone        Capability = "none"
	CapabilityFingerprint Capability = "fingerprint"
	CapabilityFace        Capability = "face"
)

// Prompter asks the platform to verify the user. Prompt returns false when the
// user cancels or the match fails.
type Prompter interface {
	Capability() Capability
	Prompt(ctx context.Context, reason string) (bool, error)
}

// Simulated stands in for a sensor on hosts without one: it announces the
// prompt and accepts it.
type Simulated struct {
	Kind Capability
	Out  io.Writer
}

func (s Simulated) Capability() Capability {
	if s.Kind == "" {
		return CapabilityNone
	}
	return s.Kind
}

func (s Simulated) Prompt(ctx context.Context, reason string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s.Capability() == CapabilityNone {
		return false, nil
	}
	if s.Out != nil {
		fmt.Fprintf(s.Out, "[%s] %s: accepted\n", s.Kind, reason)
	}
	return true, nil
}
