// Package environment implements the Environment factory described in
// spec §4.1: a thin wrapper over a shared client.Options value that opens
// new Clients for producer/consumer builders to bootstrap from.
package environment

import (
	"context"

	"github.com/google/uuid"

	"github.com/pepper-iot/rabbitmq-streams-go/client"
	"github.com/pepper-iot/rabbitmq-streams-go/pkg/log"
)

// Environment wraps a cloneable client.Options and a Dialer, producing new
// Clients for every producer/consumer build — one bootstrap connection per
// builder, per spec §4.1 ("the core does not pool or reuse connections
// across builders", spec §5).
type Environment struct {
	Options client.Options
	Dial    client.Dialer
	Log     *log.Logger
}

// New returns an Environment over opts, dialing new connections with dial.
func New(opts client.Options, dial client.Dialer) *Environment {
	return &Environment{Options: opts, Dial: dial, Log: log.Nop()}
}

// WithLogger attaches a logger, returning the same Environment for
// chaining at construction time.
func (e *Environment) WithLogger(l *log.Logger) *Environment {
	e.Log = l
	return e
}

// CreateClient opens a new Client against the environment's configured
// host/port, using the shared options unmodified.
func (e *Environment) CreateClient(ctx context.Context) (client.Client, error) {
	return e.dial(ctx, e.Options)
}

// CreateClientAt opens a new Client against a specific endpoint, inheriting
// every other option — the shape a leader/replica redirect uses.
func (e *Environment) CreateClientAt(ctx context.Context, host string, port uint16) (client.Client, error) {
	return e.dial(ctx, e.Options.WithRedirect(host, port))
}

// dial assigns every connection attempt a random correlation id, logged
// alongside its target, so a single connection's log lines can be
// filtered out of a busy producer/consumer's output.
func (e *Environment) dial(ctx context.Context, opts client.Options) (client.Client, error) {
	connID := uuid.NewString()
	e.Log.With("conn_id", connID).Debugf("dialing %s:%d", opts.Host, opts.Port)
	return e.Dial(ctx, opts)
}
