// Package metrics defines the MetricsCollector trait (spec §3) and its two
// implementations: a zero-value-constructible no-op default, and a
// Prometheus-backed collector for the domain stack.
package metrics

// Collector is the trait-level contract every metrics sink must satisfy.
// It is deliberately narrow — four counters, no histograms, no labels
// beyond stream name — matching what the producer/consumer core actually
// observes.
type Collector interface {
	// RecordPublish is called once per message handed to the accumulator,
	// before the server has confirmed anything.
	RecordPublish(stream string, n int)

	// RecordPublishConfirm is called once per PublishConfirm frame, with
	// the number of publishing ids it acknowledged as durable.
	RecordPublishConfirm(stream string, n int)

	// RecordPublishError is called once per publishing id the server
	// rejected, with the server-reported status code.
	RecordPublishError(stream string, code uint16)

	// RecordConsume is called once per chunk delivered to a consumer, with
	// the number of messages in that chunk.
	RecordConsume(stream string, n int)
}

// Nop is the default MetricsCollector: every call is a no-op. Its zero
// value is ready to use, matching the Rust source's
// `Arc::new(NopMetricsCollector {})` default.
type Nop struct{}

var _ Collector = Nop{}

func (Nop) RecordPublish(string, int)        {}
func (Nop) RecordPublishConfirm(string, int) {}
func (Nop) RecordPublishError(string, uint16) {}
func (Nop) RecordConsume(string, int)        {}
