package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "coap"

// Metrics instruments a client connection. A nil *Metrics is valid and records nothing.
type Metrics struct {
	MessagesSent     prometheus.Counter
	MessagesReceived prometheus.Counter
	Retransmissions  prometheus.Counter
	Duplicates       prometheus.Counter
	DecodeErrors     prometheus.Counter
	Resets           prometheus.Counter
	Dropped          prometheus.Counter
	Pending          prometheus.Gauge
}

// New creates the collectors and registers them to reg. With a nil reg the
// collectors are created but not registered.
func New(reg prometheus.Registerer, constLabels prometheus.Labels) *Metrics {
	f := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "client",
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}
	return &Metrics{
		MessagesSent:     counter("messages_sent_total", "Number of datagrams written including retransmissions."),
		MessagesReceived: counter("messages_received_total", "Number of decoded inbound messages."),
		Retransmissions:  counter("retransmissions_total", "Number of confirmable retransmissions."),
		Duplicates:       counter("duplicates_total", "Number of inbound messages dropped as duplicates."),
		DecodeErrors:     counter("decode_errors_total", "Number of inbound datagrams which cannot be decoded."),
		Resets:           counter("resets_total", "Number of reset messages sent or received."),
		Dropped:          counter("dropped_total", "Number of inbound messages dropped because the receive queue was full."),
		Pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "client",
			Name:        "pending_responses",
			Help:        "Number of requests waiting for a response.",
			ConstLabels: constLabels,
		}),
	}
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

func (m *Metrics) IncSent() {
	if m != nil {
		inc(m.MessagesSent)
	}
}

func (m *Metrics) IncReceived() {
	if m != nil {
		inc(m.MessagesReceived)
	}
}

func (m *Metrics) IncRetransmissions() {
	if m != nil {
		inc(m.Retransmissions)
	}
}

func (m *Metrics) IncDuplicates() {
	if m != nil {
		inc(m.Duplicates)
	}
}

func (m *Metrics) IncDecodeErrors() {
	if m != nil {
		inc(m.DecodeErrors)
	}
}

func (m *Metrics) IncResets() {
	if m != nil {
		inc(m.Resets)
	}
}

func (m *Metrics) IncDropped() {
	if m != nil {
		inc(m.Dropped)
	}
}

// SetPending reports the number of outstanding pending-response slots.
func (m *Metrics) SetPending(n int) {
	if m != nil && m.Pending != nil {
		m.Pending.Set(float64(n))
	}
}
