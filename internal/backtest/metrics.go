package backtest

import "github.com/prometheus/client_golang/prometheus"

// Metrics 汇总回测次数、成交与被拒信号。
type Metrics struct {
	runs     *prometheus.CounterVec
	trades   *prometheus.CounterVec
	rejected prometheus.Counter
	returns  *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exitpilot",
			Subsystem: "backtest",
			Name:      "runs_total",
			Help:      "Completed backtest runs by strategy.",
		}, []string{"strategy"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exitpilot",
			Subsystem: "backtest",
			Name:      "trades_total",
			Help:      "Simulated executions by action.",
		}, []string{"action"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "exitpilot",
			Subsystem: "backtest",
			Name:      "rejected_signals_total",
			Help:      "Strategy signals the simulator refused.",
		}),
		returns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "exitpilot",
			Subsystem: "backtest",
			Name:      "last_total_return_pct",
			Help:      "Total return of the latest run per strategy and symbol.",
		}, []string{"strategy", "symbol"}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.trades, m.rejected, m.returns)
	}
	return m
}

func (m *Metrics) Observe(res Result) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(res.Strategy).Inc()
	for _, tr := range res.Trades {
		m.trades.WithLabelValues(string(tr.Action)).Inc()
	}
	m.rejected.Add(float64(res.RejectedSignals))
	m.returns.WithLabelValues(res.Strategy, res.Symbol).Set(res.TotalReturn)
}
