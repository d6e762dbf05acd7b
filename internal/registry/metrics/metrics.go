package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registry ledger. Counters track
// successful state transitions; the install histogram covers the paid path
// where the payment channel sits in the critical section.
type Metrics struct {
	ListingsRegistered prometheus.Counter
	Installs           *prometheus.CounterVec
	Ratings            prometheus.Counter
	Verifications      prometheus.Counter
	Withdrawals        prometheus.Counter
	FeesRetained       prometheus.Counter
	InstallDuration    prometheus.Histogram
}

// New creates a Metrics instance with all registry metrics registered.
func New() *Metrics {
	return &Metrics{
		ListingsRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dplay_listings_registered_total",
			Help: "Total number of listings registered",
		}),
		Installs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dplay_installs_total",
			Help: "Total number of successful installs",
		}, []string{"platform"}),
		Ratings: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dplay_ratings_total",
			Help: "Total number of ratings submitted",
		}),
		Verifications: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dplay_verifications_total",
			Help: "Total number of listings verified by the administrator",
		}),
		Withdrawals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dplay_withdrawals_total",
			Help: "Total number of administrator balance withdrawals",
		}),
		FeesRetained: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dplay_fees_retained_units_total",
			Help: "Registration fees collected, in smallest payment units",
		}),
		InstallDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dplay_install_duration_seconds",
			Help:    "Duration of install operations including payment routing",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveInstall records the duration of an install operation.
// Call with time.Now() captured at the start of the operation.
func (m *Metrics) ObserveInstall(start time.Time) {
	m.InstallDuration.Observe(time.Since(start).Seconds())
}
