package tcp

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsSegmentsProcessed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.SegmentsProcessed.WithLabelValues("ESTABLISHED").Inc()
	m.SegmentsProcessed.WithLabelValues("ESTABLISHED").Inc()
	got := testutil.ToFloat64(m.SegmentsProcessed.WithLabelValues("ESTABLISHED"))
	if got != 2 {
		t.Fatalf("counter = %v, want 2", got)
	}
}

func TestErrKindClassification(t *testing.T) {
	if k := errKind(nil); k != "none" {
		t.Fatalf("nil err kind = %q, want none", k)
	}
	if k := errKind(errDropSegment); k != "malformed_or_stale" {
		t.Fatalf("errDropSegment kind = %q, want malformed_or_stale", k)
	}
	if k := errKind(newRejectErr("x")); k != "malformed_or_stale" {
		t.Fatalf("RejectError kind = %q, want malformed_or_stale", k)
	}
	if k := errKind(errBadSegack); k != "protocol_violation" {
		t.Fatalf("errBadSegack kind = %q, want protocol_violation", k)
	}
}
