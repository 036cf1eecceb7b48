package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TokenRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "token_refresh_total",
		Help: "Credential refresh attempts by outcome",
	}, []string{"outcome"})

	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "form_submissions_total",
		Help: "Form submission attempts by outcome",
	}, []string{"outcome"})

	FillSessionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fill_sessions_open",
		Help: "Form-fill sessions currently held in memory",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
