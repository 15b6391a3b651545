package bootstrap

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	appconfig "github.com/wolfman30/xbook/internal/config"
	"github.com/wolfman30/xbook/internal/observability/metrics"
	"github.com/wolfman30/xbook/pkg/logging"
)

// Observability bundles the run's metrics. Server is nil unless METRICS_ADDR
// is set.
type Observability struct {
	Registry *prometheus.Registry
	Metrics  *metrics.BookingMetrics
	Server   *metrics.Server
}

// BuildObservability registers the booking metrics on a fresh registry.
func BuildObservability(cfg *appconfig.Config, logger *logging.Logger) *Observability {
	reg := prometheus.NewRegistry()
	obs := &Observability{
		Registry: reg,
		Metrics:  metrics.NewBookingMetrics(reg),
	}
	if cfg != nil && strings.TrimSpace(cfg.MetricsAddr) != "" {
		obs.Server = metrics.NewServer(cfg.MetricsAddr, reg, logger)
	}
	return obs
}
