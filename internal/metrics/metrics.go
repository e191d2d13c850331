// Package metrics registers simulation counters and serves them over HTTP.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BarsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "bars_processed_total", Help: "Count of market bars replayed"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals emitted by strategies"},
		[]string{"strategy", "kind"},
	)
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trades_total", Help: "Trades booked by the ledger"},
		[]string{"symbol", "side"},
	)
	RiskRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "risk_rejections_total", Help: "Trades vetoed by risk limits"},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(BarsProcessed, SignalsTotal, TradesTotal, RiskRejections)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
