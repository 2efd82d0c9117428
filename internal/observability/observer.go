package observability

import (
	"time"

	"solana-geyser-stream/internal/geyser"
)

// StreamObserver feeds stream client events into Prometheus. It implements
// geyser.Observer.
type StreamObserver struct {
	m *Metrics
}

// NewStreamObserver wires metrics into a stream client observer. A nil m
// uses DefaultMetrics.
func NewStreamObserver(m *Metrics) *StreamObserver {
	if m == nil {
		m = DefaultMetrics
	}
	return &StreamObserver{m: m}
}

var _ geyser.Observer = (*StreamObserver)(nil)

func (o *StreamObserver) UpdateReceived(kind geyser.UpdateKind) {
	o.m.UpdatesReceived.WithLabelValues(kind.String()).Inc()
	o.m.LastUpdateReceived.Set(float64(time.Now().Unix()))
}

func (o *StreamObserver) DecodeFailure() {
	o.m.DecodeFailures.Inc()
}

func (o *StreamObserver) UpdateDropped(kind geyser.UpdateKind) {
	o.m.UpdatesDropped.WithLabelValues(kind.String()).Inc()
}

func (o *StreamObserver) StateChanged(change geyser.StateChange) {
	o.m.StateTransitions.WithLabelValues(change.From.String(), change.To.String()).Inc()

	switch change.To {
	case geyser.StateConnected:
		o.m.StreamConnected.Set(1)
		if change.From == geyser.StateReconnecting {
			o.m.Reconnects.Inc()
		}
	case geyser.StateDisconnected, geyser.StateFailed, geyser.StateCancelled:
		o.m.StreamConnected.Set(0)
	}
}
