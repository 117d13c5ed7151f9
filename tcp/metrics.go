package tcp

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the observability collaborator Handler reports into on every
// state transition, retransmission-queue prune, and OFO promotion. It gives
// the otherwise-invisible internal bookkeeping of the state machine an
// observable surface, mirroring the role kernel TCPInfo counters play for a
// host network stack.
type Metrics struct {
	SegmentsProcessed *prometheus.CounterVec
	Drops             *prometheus.CounterVec
	RetransmitQueueOp *prometheus.CounterVec
	OFOPromotions     prometheus.Counter
	Established       prometheus.Gauge
}

// NewMetrics constructs a Metrics collaborator and registers its collectors
// with reg. Pass prometheus.NewRegistry() for an isolated registry in tests,
// or prometheus.DefaultRegisterer to export alongside the rest of a process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SegmentsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tcpcore",
			Name:      "segments_processed_total",
			Help:      "Segments handled by the connection state machine, by resulting state.",
		}, []string{"state"}),
		Drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tcpcore",
			Name:      "segments_dropped_total",
			Help:      "Segments rejected by the connection state machine, by error kind.",
		}, []string{"kind"}),
		RetransmitQueueOp: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tcpcore",
			Name:      "retransmit_queue_ops_total",
			Help:      "Retransmission queue operations (prune on cumulative ACK).",
		}, []string{"op"}),
		OFOPromotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tcpcore",
			Name:      "ofo_promotions_total",
			Help:      "Out-of-order segments promoted into the in-order receive buffer.",
		}),
		Established: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tcpcore",
			Name:      "connections_established",
			Help:      "Connections currently in the ESTABLISHED state or later.",
		}),
	}
	reg.MustRegister(m.SegmentsProcessed, m.Drops, m.RetransmitQueueOp, m.OFOPromotions, m.Established)
	return m
}

// errKind classifies an error returned by Handler.Recv/Send into a coarse
// kind, used as the "kind" label on the Drops counter.
func errKind(err error) string {
	var rerr *RejectError
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, errDropSegment), errors.As(err, &rerr):
		return "malformed_or_stale"
	}
	return "protocol_violation"
}
