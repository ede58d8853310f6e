package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAuthAttemptsCounter(t *testing.T) {
	before := testutil.ToFloat64(AuthAttempts.WithLabelValues(MethodPIN, OutcomeRejected))
	AuthAttempts.WithLabelValues(MethodPIN, OutcomeRejected).Inc()
	after := testutil.ToFloat64(AuthAttempts.WithLabelValues(MethodPIN, OutcomeRejected))
	if after != before+1 {
		t.Fatalf("expected counter to grow by one, got %v -> %v", before, after)
	}
}

func TestNewRegistryGathers(t *testing.T) {
	registry := NewRegistry()
	ChallengesIssued.Inc()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "brokerline_biometric_challenges_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected challenge counter in gathered families")
	}
}
