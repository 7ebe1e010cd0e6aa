package app

import (
	"fmt"
	"strings"

	"exitpilot/internal/config"
	"exitpilot/internal/signal"
)

// StartupSummary 为启动时打印的配置摘要。
type StartupSummary struct {
	Env        string
	HTTPAddr   string
	Risk       string
	Backtest   string
	Trailing   string
	Archive    string
	Strategies []string
}

func newStartupSummary(cfg *config.Config) *StartupSummary {
	r := cfg.Risk
	b := cfg.Backtest
	t := cfg.Trailing
	archive := b.StorePath
	if strings.TrimSpace(archive) == "" {
		archive = "(disabled)"
	}
	return &StartupSummary{
		Env:      cfg.App.Env,
		HTTPAddr: cfg.App.HTTPAddr,
		Risk: fmt.Sprintf("max_leverage=%g max_risk=%.2f%% max_position=%.2f%% order=[%g,%g]",
			r.MaxLeverage, r.MaxRiskPerTrade*100, r.MaxPositionSize*100, r.MinOrderSize, r.MaxOrderSize),
		Backtest: fmt.Sprintf("%s %s capital=%g fee=%.4f%% leverage=%g sl=%.2f%%",
			b.Symbol, b.Interval, b.InitialCapital, b.FeeRate*100, b.Leverage, b.StopLossPct*100),
		Trailing: fmt.Sprintf("enabled=%v activation=%.2f%% distance=%.2f%% min=%.2f%%",
			t.Enabled, t.ActivationProfitPct*100, t.TrailDistancePct*100, t.MinTrailDistancePct*100),
		Archive:    archive,
		Strategies: signal.Names(),
	}
}

func (s *StartupSummary) Print() {
	fmt.Print(s.String())
}

func (s *StartupSummary) String() string {
	var sb strings.Builder
	sb.WriteString(strings.Repeat("=", 80) + "\n")
	sb.WriteString("启动配置摘要 (STARTUP SUMMARY)\n")
	sb.WriteString(strings.Repeat("=", 80) + "\n")
	fmt.Fprintf(&sb, "  环境: %s\n", s.Env)
	fmt.Fprintf(&sb, "  监听: %s\n", s.HTTPAddr)
	fmt.Fprintf(&sb, "  风控: %s\n", s.Risk)
	fmt.Fprintf(&sb, "  回测: %s\n", s.Backtest)
	fmt.Fprintf(&sb, "  移动止损: %s\n", s.Trailing)
	fmt.Fprintf(&sb, "  归档: %s\n", s.Archive)
	fmt.Fprintf(&sb, "  策略: %s\n", formatList(s.Strategies))
	sb.WriteString(strings.Repeat("=", 80) + "\n")
	return sb.String()
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
