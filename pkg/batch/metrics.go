package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for batch runs.
var (
	batchItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "api_batch_items_total",
		Help: "Total batch items settled by status",
	}, []string{"status"})

	batchInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "api_batch_inflight",
		Help: "Number of batch items currently running",
	})

	batchAbortsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "api_batch_aborts_total",
		Help: "Total number of batches aborted by a fail-fast failure",
	})
)
