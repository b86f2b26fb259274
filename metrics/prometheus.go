package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus is a Collector backed by four counter vectors, labeled by
// stream name (and, for publish errors, the server status code). Register
// it against the caller's registry with NewPrometheus; the zero value is
// not usable since the counter vectors must be registered first.
type Prometheus struct {
	published        *prometheus.CounterVec
	publishConfirmed *prometheus.CounterVec
	publishErrored   *prometheus.CounterVec
	consumed         *prometheus.CounterVec
}

var _ Collector = (*Prometheus)(nil)

// NewPrometheus registers the collector's counter vectors against reg and
// returns a ready-to-use Prometheus collector.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rabbitmq_stream",
			Name:      "messages_published_total",
			Help:      "Messages handed to the producer's accumulator, per stream.",
		}, []string{"stream"}),
		publishConfirmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rabbitmq_stream",
			Name:      "messages_confirmed_total",
			Help:      "Messages the server acknowledged as durable, per stream.",
		}, []string{"stream"}),
		publishErrored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rabbitmq_stream",
			Name:      "publish_errors_total",
			Help:      "Messages the server rejected, per stream and status code.",
		}, []string{"stream", "code"}),
		consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rabbitmq_stream",
			Name:      "messages_consumed_total",
			Help:      "Messages delivered to a consumer, per stream.",
		}, []string{"stream"}),
	}

	reg.MustRegister(p.published, p.publishConfirmed, p.publishErrored, p.consumed)
	return p
}

func (p *Prometheus) RecordPublish(stream string, n int) {
	p.published.WithLabelValues(stream).Add(float64(n))
}

func (p *Prometheus) RecordPublishConfirm(stream string, n int) {
	p.publishConfirmed.WithLabelValues(stream).Add(float64(n))
}

func (p *Prometheus) RecordPublishError(stream string, code uint16) {
	p.publishErrored.WithLabelValues(stream, strconv.Itoa(int(code))).Inc()
}

func (p *Prometheus) RecordConsume(stream string, n int) {
	p.consumed.WithLabelValues(stream).Add(float64(n))
}
