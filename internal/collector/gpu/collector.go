package gpu

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kubeadapt/nvsmi-exporter/internal/errors"
	"github.com/kubeadapt/nvsmi-exporter/internal/observability"
)

const queryKey = "nvidia-smi"

// GPUMetricsCollector queries GPU statistics on demand and renders them as
// exposition lines. Scrapes that arrive while a query is running share its
// result, so at most one query process runs at a time.
type GPUMetricsCollector struct {
	api     Querier
	metrics *observability.Metrics
	errs    *errors.RecentFailures
	group   singleflight.Group
}

// NewGPUMetricsCollector creates a GPUMetricsCollector backed by api.
func NewGPUMetricsCollector(api Querier, metrics *observability.Metrics, errs *errors.RecentFailures) *GPUMetricsCollector {
	return &GPUMetricsCollector{
		api:     api,
		metrics: metrics,
		errs:    errs,
	}
}

// Collect runs one query and returns the rendered lines. It never fails: a
// failed query yields a single "# Error:" comment line. The returned slice
// may be shared with concurrent callers and must not be modified.
//
// The shared query is detached from ctx cancellation so one scraper going
// away cannot fail the others waiting on it; the querier timeout still
// bounds it.
func (c *GPUMetricsCollector) Collect(ctx context.Context) []string {
	ran := false
	v, _, _ := c.group.Do(queryKey, func() (interface{}, error) {
		ran = true
		return c.collect(context.WithoutCancel(ctx)), nil
	})
	if !ran {
		c.metrics.QueriesCoalesced.Inc()
	}
	return v.([]string)
}

func (c *GPUMetricsCollector) collect(ctx context.Context) []string {
	start := time.Now()
	res := c.api.Query(ctx)
	c.metrics.QueryDuration.Observe(time.Since(start).Seconds())

	samples, skipped := ParseRows(res.Output)
	if skipped > 0 {
		c.metrics.RowsSkippedTotal.Add(float64(skipped))
		slog.Debug("gpu collector: dropped malformed rows", "count", skipped)
	}

	if !res.OK() {
		c.metrics.QueryFailuresTotal.WithLabelValues(string(res.Err.Code)).Inc()
		c.errs.Record(res.Err)
		slog.Warn("gpu collector: query failed",
			"code", res.Err.Code,
			"devices", len(samples),
			"error", res.Err,
		)
		// Rows printed before a non-zero exit are still published.
		if len(samples) == 0 {
			return []string{renderError(res.Err.Message)}
		}
	}

	c.metrics.Devices.Set(float64(len(samples)))

	return RenderSamples(samples)
}
