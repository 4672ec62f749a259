package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QuotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "quotes_total", Help: "Count of market quotes ingested"},
		[]string{"symbol"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Candidate signals evaluated, by verdict reason"},
		[]string{"strategy", "reason"},
	)
	IntentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "order_intents_total", Help: "Sized order intents dispatched, by instrument form"},
		[]string{"form"},
	)
	ExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "exits_total", Help: "Position exits dispatched, by trigger"},
		[]string{"trigger"},
	)
	EvalPanicsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "eval_panics_total", Help: "Recovered panics during per-symbol evaluation"},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(QuotesTotal, SignalsTotal, IntentsTotal, ExitsTotal, EvalPanicsTotal)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
