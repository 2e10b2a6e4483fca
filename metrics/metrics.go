// Package metrics exports dispatcher outcomes as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mnehpets/rpcdispatch/jsonrpc"
)

const (
	// codeOK labels successful requests.
	codeOK = "OK"
	// methodUnresolved labels requests that never resolved to an endpoint,
	// keeping caller-chosen method names out of the label set.
	methodUnresolved = "unresolved"
)

// Collector implements jsonrpc.Observer.
type Collector struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rpcdispatch",
			Name:      "requests_total",
			Help:      "Dispatched requests by method and response code.",
		}, []string{"method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rpcdispatch",
			Name:      "request_duration_seconds",
			Help:      "Time spent dispatching a request, by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	for _, col := range []prometheus.Collector{c.requests, c.latency} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Observe implements jsonrpc.Observer.
func (c *Collector) Observe(method string, code jsonrpc.Code, elapsed time.Duration) {
	if method == "" {
		method = methodUnresolved
	}
	label := string(code)
	if label == "" {
		label = codeOK
	}
	c.requests.WithLabelValues(method, label).Inc()
	c.latency.WithLabelValues(method).Observe(elapsed.Seconds())
}
