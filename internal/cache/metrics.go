package cache

import "github.com/prometheus/client_golang/prometheus"

var (
	hitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "asistan",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total number of cache hits",
	})

	missesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "asistan",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total number of cache misses, stale entries included",
	})

	evictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "asistan",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total number of evicted entries by reason",
		},
		[]string{"reason"},
	)

	entriesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "asistan",
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Number of cached entries",
	})
)

func init() {
	prometheus.MustRegister(hitsTotal, missesTotal, evictionsTotal, entriesGauge)
}
