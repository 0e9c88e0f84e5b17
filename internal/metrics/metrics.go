package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	CommandsTotal  prometheus.Counter
	CommandErrors  prometheus.Counter
	SearchRequests prometheus.Counter
	MemoryRequests prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			CommandsTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "muppetd",
				Name:      "commands_total",
				Help:      "Total boundary commands handled",
			}),
			CommandErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "muppetd",
				Name:      "command_errors_total",
				Help:      "Total boundary commands that returned an error",
			}),
			SearchRequests: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "muppetd",
				Name:      "search_requests_total",
				Help:      "Total web-search passthrough requests",
			}),
			MemoryRequests: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "muppetd",
				Name:      "memory_requests_total",
				Help:      "Total memory-service passthrough requests",
			}),
		}
		prometheus.MustRegister(global.CommandsTotal, global.CommandErrors, global.SearchRequests, global.MemoryRequests)
	})
	return global
}
