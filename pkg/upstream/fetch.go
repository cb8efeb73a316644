package upstream

import (
	"context"
	"time"

	"github.com/1satmarket/marketapi/pkg/metrics"
	"go.uber.org/zap"
)

// FetchJSON GETs rawURL and decodes it into a T. It never fails outward: any
// network, status or decode problem is logged and yields nil, which callers
// treat as "no data". endpoint labels the request in logs and metrics.
func FetchJSON[T any](ctx context.Context, c *HTTPClient, logger *zap.Logger, endpoint, rawURL string) *T {
	start := time.Now()
	metrics.UpstreamRequests.WithLabelValues(endpoint).Inc()
	defer func() {
		metrics.UpstreamLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	out := new(T)
	if err := c.getJSON(ctx, rawURL, out); err != nil {
		metrics.UpstreamFailures.WithLabelValues(endpoint).Inc()
		logger.Warn("upstream fetch failed",
			zap.String("endpoint", endpoint),
			zap.String("url", rawURL),
			zap.Error(err))
		return nil
	}
	return out
}
