package monitor

import (
	"github.com/prometheus/client_golang/prometheus"

	"exitpilot/internal/trade"
)

// Metrics 统计评估次数与各类动作数量。
type Metrics struct {
	evaluations prometheus.Counter
	actions     *prometheus.CounterVec
	profit      prometheus.Histogram
}

// NewMetrics 创建并注册指标；reg 为 nil 时不注册。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "exitpilot",
			Subsystem: "monitor",
			Name:      "evaluations_total",
			Help:      "Number of trade evaluations.",
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exitpilot",
			Subsystem: "monitor",
			Name:      "actions_total",
			Help:      "Actions emitted by trade evaluations, by type.",
		}, []string{"type"}),
		// trade_id 由调用方传入，不能作为标签，只统计盈利分布。
		profit: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "exitpilot",
			Subsystem: "monitor",
			Name:      "profit_pct",
			Help:      "Profit fraction observed at evaluation time.",
			Buckets:   []float64{-0.1, -0.05, -0.02, -0.01, 0, 0.01, 0.02, 0.05, 0.1, 0.2},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.evaluations, m.actions, m.profit)
	}
	return m
}

// Observe 记录一次评估结果。
func (m *Metrics) Observe(s trade.State, eval Evaluation) {
	if m == nil {
		return
	}
	m.evaluations.Inc()
	for _, act := range eval.Actions {
		m.actions.WithLabelValues(string(act.Type)).Inc()
	}
	if s.EntryPrice > 0 {
		m.profit.Observe(eval.CurrentProfitPct)
	}
}

// Evaluate 评估并记录指标。
func (m *Metrics) Evaluate(s trade.State) Evaluation {
	eval := EvaluateTrade(s)
	m.Observe(s, eval)
	return eval
}
