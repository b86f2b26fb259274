// Package client defines the boundary the producer/consumer core relies
// on: ClientOptions, the StreamMetadata shape returned by topology lookups,
// and the Client interface itself. The interface is "owned by the core,
// implemented by the protocol layer" (spec §2) — this package never speaks
// the wire protocol; a separate, out-of-scope codec/transport layer does.
package client

import "github.com/pepper-iot/rabbitmq-streams-go/metrics"

// Options is the immutable connection configuration described in spec §3
// and §6. It is always copied by value — a redirect (leader/replica
// reconnect) copies the environment's Options and overrides only Host and
// Port via WithRedirect, the same way the Rust source does `ClientOptions { host, port,
// ..self.environment.options.client_options }`.
type Options struct {
	Host         string
	Port         uint16
	User         string
	Password     string
	VHost        string
	Heartbeat    uint32
	MaxFrameSize uint32
	Metrics      metrics.Collector
}

// DefaultOptions returns the configuration defaults from spec §6:
// host=localhost, port=5552, user=guest, password=guest, vhost=/,
// heartbeat=60s, max-frame-size=1MiB, a no-op metrics collector.
func DefaultOptions() Options {
	return Options{
		Host:         "localhost",
		Port:         5552,
		User:         "guest",
		Password:     "guest",
		VHost:        "/",
		Heartbeat:    60,
		MaxFrameSize: 1048576,
		Metrics:      metrics.Nop{},
	}
}

// WithRedirect returns a copy of o with only Host and Port overridden —
// the shape used when a producer redirects to a stream's leader or a
// consumer redirects to a randomly chosen replica (spec §4.1).
func (o Options) WithRedirect(host string, port uint16) Options {
	o.Host = host
	o.Port = port
	return o
}

func (o Options) metricsOrNop() metrics.Collector {
	if o.Metrics == nil {
		return metrics.Nop{}
	}
	return o.Metrics
}

// Endpoint is a host/port pair, as returned for a stream's leader or
// replicas by a Metadata lookup.
type Endpoint struct {
	Host string
	Port uint16
}

// StreamMetadata is the read-only topology information external protocol
// layer returns for one stream: the leader that accepts writes, and the
// replicas that may serve reads (spec §3).
type StreamMetadata struct {
	Leader   Endpoint
	Replicas []Endpoint
}
