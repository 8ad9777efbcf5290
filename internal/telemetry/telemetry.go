// Package telemetry exposes the live trader's Prometheus metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vela_orders_submitted_total",
			Help: "Total number of orders submitted to the exchange (by side).",
		},
		[]string{"symbol", "side"},
	)

	OrderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vela_order_failures_total",
			Help: "Total number of order submissions that failed after retries.",
		},
		[]string{"symbol"},
	)

	RiskRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vela_risk_rejections_total",
			Help: "Total number of entries rejected by the risk gate (by reason).",
		},
		[]string{"reason"},
	)

	PositionsOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vela_positions_open",
			Help: "Current number of open positions per symbol (0 or 1).",
		},
		[]string{"symbol"},
	)

	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vela_equity",
			Help: "Current mark-to-market equity of the live trader.",
		},
	)

	EmergencyStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vela_emergency_stops_total",
			Help: "Total number of emergency stops triggered.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersSubmitted,
		OrderFailures,
		RiskRejections,
		PositionsOpen,
		EquityGauge,
		EmergencyStops,
	)
}
