package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the /metrics HTTP handler for a Collector's
// registry. It is a thin wrapper around promhttp.HandlerFor rather
// than a hand-parsed text exposition writer: the teacher's own
// pkg/cri/resource-manager/metrics/prometheus.go does the same —
// registers its own metrics by hand but still serves them through the
// standard exposition handler rather than re-implementing the text
// format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})
}
