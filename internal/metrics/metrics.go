// Package metrics exposes Prometheus metrics the bot updates during
// operation:
//   - hft_ticks_total                     – trade ticks processed
//   - hft_triggers_total{strategy}        – entry triggers (cliff_catch|breakout)
//   - hft_orders_total{side}              – orders submitted to the venue
//   - hft_exits_total{reason}             – position exits by reason
//   - hft_calibrations_total{result}      – position calibrations (clean|corrected|failed)
//   - hft_equity_usd                      – current balance snapshot (gauge)
//   - hft_position_contracts              – currently held contracts (gauge)
//
// Registered in init() and served by the HTTP handler started in main at
// /metrics (Prometheus text exposition format).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ticksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hft_ticks_total",
			Help: "Trade ticks processed",
		},
	)

	triggersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hft_triggers_total",
			Help: "Entry triggers by strategy",
		},
		[]string{"strategy"},
	)

	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hft_orders_total",
			Help: "Orders submitted to the venue",
		},
		[]string{"side"},
	)

	exitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hft_exits_total",
			Help: "Position exits by reason",
		},
		[]string{"reason"},
	)

	calibrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hft_calibrations_total",
			Help: "Position calibrations by result (clean|corrected|failed)",
		},
		[]string{"result"},
	)

	equityUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hft_equity_usd",
			Help: "Current balance snapshot in USD",
		},
	)

	positionContracts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hft_position_contracts",
			Help: "Currently held contracts",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ticksTotal, triggersTotal, ordersTotal, exitsTotal,
		calibrationsTotal, equityUSD, positionContracts,
	)
}

// IncTick counts one processed trade tick.
func IncTick() { ticksTotal.Inc() }

// IncTrigger counts one entry trigger for the given strategy.
func IncTrigger(strategy string) { triggersTotal.WithLabelValues(strategy).Inc() }

// IncOrder counts one submitted order.
func IncOrder(side string) { ordersTotal.WithLabelValues(side).Inc() }

// IncExit counts one position exit for the given reason.
func IncExit(reason string) { exitsTotal.WithLabelValues(reason).Inc() }

// IncCalibration counts one calibration outcome.
func IncCalibration(result string) { calibrationsTotal.WithLabelValues(result).Inc() }

// SetEquity records the latest balance snapshot.
func SetEquity(v float64) { equityUSD.Set(v) }

// SetPosition records the currently held contracts.
func SetPosition(v float64) { positionContracts.Set(v) }

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler { return promhttp.Handler() }
