package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordTransition(t *testing.T) {
	c := NewCollector()

	c.RecordTransition("rule", "SUBMIT", OutcomeApplied)
	c.RecordTransition("rule", "SUBMIT", OutcomeApplied)
	c.RecordTransition("ruleset", "APPROVE", OutcomeDenied)

	got := testutil.ToFloat64(c.transitions.WithLabelValues("rule", "SUBMIT", OutcomeApplied))
	if got != 2 {
		t.Errorf("rule/SUBMIT/applied = %v, want 2", got)
	}
	got = testutil.ToFloat64(c.transitions.WithLabelValues("ruleset", "APPROVE", OutcomeDenied))
	if got != 1 {
		t.Errorf("ruleset/APPROVE/denied = %v, want 1", got)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector

	// Must not panic; metrics are optional wiring.
	c.RecordTransition("rule", "SUBMIT", OutcomeApplied)
	if c.Registry() != nil {
		t.Errorf("Registry() = non-nil for nil collector")
	}
}
