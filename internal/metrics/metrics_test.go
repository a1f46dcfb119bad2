package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
)

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	m := New(prometheus.NewRegistry())
	router := mux.NewRouter()
	router.Use(m.Middleware)
	router.HandleFunc("/customers/{mobile}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, mobile := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/customers/"+mobile, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	require.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/customers/{mobile}", "GET", "404")))
}

func TestSettlementCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SettlementCommitted(loyalty.SettlementResult{
		Summary:     loyalty.BillSummary{Payable: 850, PointsEarned: 150},
		Transaction: loyalty.Transaction{PointsRedeemed: 50},
		After:       loyalty.TierAssessment{EffectiveTier: loyalty.TierSilver},
	})
	m.SettlementRejected("over_redemption")

	require.Equal(t, 1.0, testutil.ToFloat64(m.settlements.WithLabelValues("committed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.settlements.WithLabelValues("over_redemption")))
	require.Equal(t, 850.0, testutil.ToFloat64(m.revenue))
	require.Equal(t, 150.0, testutil.ToFloat64(m.pointsEarned))
	require.Equal(t, 50.0, testutil.ToFloat64(m.pointsRedeemed))
	require.Equal(t, 1.0, testutil.ToFloat64(m.tiers.WithLabelValues("Silver")))
}
