package residency

import "github.com/prometheus/client_golang/prometheus"

var (
	loadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "asistan",
			Subsystem: "residency",
			Name:      "loads_total",
			Help:      "Total number of model loads",
		},
		[]string{"class"},
	)

	evictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "asistan",
			Subsystem: "residency",
			Name:      "evictions_total",
			Help:      "Total number of LRU evictions to stay under the memory ceiling",
		},
		[]string{"class"},
	)

	loadErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "asistan",
			Subsystem: "residency",
			Name:      "load_errors_total",
			Help:      "Total number of failed model loads",
		},
		[]string{"class"},
	)

	residentGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "asistan",
			Subsystem: "residency",
			Name:      "resident",
			Help:      "1 when the class is resident",
		},
		[]string{"class"},
	)
)

func init() {
	prometheus.MustRegister(loadsTotal, evictionsTotal, loadErrorsTotal, residentGauge)
}
