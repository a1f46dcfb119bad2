package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
)

// Metrics holds the process collectors. It satisfies ledger.Observer.
type Metrics struct {
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	settlements    *prometheus.CounterVec
	revenue        prometheus.Counter
	pointsEarned   prometheus.Counter
	pointsRedeemed prometheus.Counter
	tiers          *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
		settlements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tierledger_settlements_total",
				Help: "Settlements by result code",
			},
			[]string{"result"},
		),
		revenue: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tierledger_payable_total",
			Help: "Sum of payable amounts of committed settlements",
		}),
		pointsEarned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tierledger_points_earned_total",
			Help: "Points issued by committed settlements",
		}),
		pointsRedeemed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tierledger_points_redeemed_total",
			Help: "Points redeemed by committed settlements",
		}),
		tiers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tierledger_settlements_by_tier_total",
				Help: "Committed settlements by effective tier after the visit",
			},
			[]string{"tier"},
		),
	}
	reg.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.settlements,
		m.revenue,
		m.pointsEarned,
		m.pointsRedeemed,
		m.tiers,
	)
	return m
}

func (m *Metrics) SettlementCommitted(result loyalty.SettlementResult) {
	m.settlements.WithLabelValues("committed").Inc()
	m.revenue.Add(result.Summary.Payable)
	m.pointsEarned.Add(float64(result.Summary.PointsEarned))
	m.pointsRedeemed.Add(float64(result.Transaction.PointsRedeemed))
	m.tiers.WithLabelValues(result.After.EffectiveTier.String()).Inc()
}

func (m *Metrics) SettlementRejected(code string) {
	m.settlements.WithLabelValues(code).Inc()
}

// Middleware records request counts and latency by route template.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(ww, r)

		path := routePath(r)
		m.httpRequests.WithLabelValues(path, r.Method, strconv.Itoa(ww.status)).Inc()
		m.httpDuration.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
	})
}

func routePath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if template, err := route.GetPathTemplate(); err == nil {
			return template
		}
	}
	return "unmatched"
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
