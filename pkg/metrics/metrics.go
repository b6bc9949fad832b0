// Package metrics holds the Prometheus collectors exported by the AgriSpy services.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every AgriSpy metric name.
const DefaultNamespace = "agrispy"

// Registry is the process-wide registry all AgriSpy collectors register with.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Handler exposes Registry in the OpenMetrics/text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// MustRegister registers collectors with Registry and panics on conflicts.
func MustRegister(cs ...prometheus.Collector) {
	Registry.MustRegister(cs...)
}
