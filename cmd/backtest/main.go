package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"exitpilot/internal/backtest"
	"exitpilot/internal/backtest/archive"
	"exitpilot/internal/config"
	"exitpilot/internal/logger"
	"exitpilot/internal/market"
	"exitpilot/internal/report"
	sig "exitpilot/internal/signal"
	"exitpilot/internal/strategy/exit"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "backtest failed: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	envFile    string
	dataFile   string
	symbol     string
	interval   string
	start      string
	end        string
	limit      int
	strategies string
	params     paramFlag
	capital    float64
	fee        float64
	leverage   float64
	tpPct      float64
	atrPeriod  int
	reportDir  string
	noReport   bool
	noArchive  bool
	showTrades bool
	parallel   int
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("backtest", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", os.Getenv("EXITPILOT_CONFIG"), "config file (defaults are used when empty)")
	fs.StringVar(&o.envFile, "env", ".env", "env file loaded before config resolution")
	fs.StringVar(&o.dataFile, "data", "", "candle file (.json/.csv); fetched from Binance when empty")
	fs.StringVar(&o.symbol, "symbol", "", "symbol override")
	fs.StringVar(&o.interval, "interval", "", "kline interval for Binance fetch")
	fs.StringVar(&o.start, "start", "", "fetch start (RFC3339 or 2006-01-02)")
	fs.StringVar(&o.end, "end", "", "fetch end (RFC3339 or 2006-01-02)")
	fs.IntVar(&o.limit, "limit", 1000, "max klines to fetch (0 fetches the whole start/end range)")
	fs.StringVar(&o.strategies, "strategy", "ema_cross", "comma separated strategy names")
	fs.Var(&o.params, "param", "strategy param key=value (repeatable, shared by all strategies)")
	fs.Float64Var(&o.capital, "capital", 0, "initial capital override")
	fs.Float64Var(&o.fee, "fee", -1, "fee rate override")
	fs.Float64Var(&o.leverage, "leverage", 0, "leverage override")
	fs.Float64Var(&o.tpPct, "tp", 0, "preview an exit plan for this take-profit fraction")
	fs.IntVar(&o.atrPeriod, "atr", 14, "ATR period for the exit plan preview")
	fs.StringVar(&o.reportDir, "out", "", "report directory override")
	fs.BoolVar(&o.noReport, "no-report", false, "skip HTML/XLSX reports")
	fs.BoolVar(&o.noArchive, "no-archive", false, "skip saving runs to the archive")
	fs.BoolVar(&o.showTrades, "trades", false, "print the trade ledger of each run")
	fs.IntVar(&o.parallel, "parallel", 4, "max strategies run concurrently")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(o.envFile); statErr == nil {
		if err := godotenv.Load(o.envFile); err != nil {
			return fmt.Errorf("load env %s: %w", o.envFile, err)
		}
	}
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.App.LogLevel)

	candles, err := loadCandles(ctx, o, cfg)
	if err != nil {
		return err
	}
	simCfg := simulation(o, cfg, candles)
	logger.Infof("loaded %d candles for %s", len(candles), simCfg.Symbol)

	items, err := buildStrategies(o)
	if err != nil {
		return err
	}
	results, err := backtest.RunBatch(ctx, items, candles, simCfg, o.parallel)
	if err != nil {
		return err
	}

	report.SummaryTable(out, results...)
	if o.showTrades {
		for _, res := range results {
			fmt.Fprintf(out, "\n%s\n", res.Strategy)
			report.TradesTable(out, res.Trades)
		}
	}
	if o.tpPct > 0 {
		fmt.Fprintln(out, exitPlanPreview(o.tpPct, candles, o.atrPeriod))
	}
	if !o.noReport {
		dir := o.reportDir
		if dir == "" {
			dir = cfg.Backtest.ReportDir
		}
		if err := writeReports(dir, results, candles); err != nil {
			return err
		}
	}
	if !o.noArchive && strings.TrimSpace(cfg.Backtest.StorePath) != "" {
		if err := archiveRuns(ctx, cfg.Backtest.StorePath, simCfg, results, len(candles), out); err != nil {
			return err
		}
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if strings.TrimSpace(path) == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func loadCandles(ctx context.Context, o options, cfg *config.Config) (market.Candles, error) {
	if o.dataFile != "" {
		return market.LoadFile(o.dataFile)
	}
	symbol := o.symbol
	if symbol == "" {
		symbol = cfg.Backtest.Symbol
	}
	interval := o.interval
	if interval == "" {
		interval = cfg.Backtest.Interval
	}
	start, err := parseTime(o.start)
	if err != nil {
		return nil, err
	}
	end, err := parseTime(o.end)
	if err != nil {
		return nil, err
	}
	src := market.NewBinanceSource(cfg.Market.Binance())
	req := market.FetchRequest{Symbol: symbol, Interval: interval, Start: start, End: end, Limit: o.limit}
	candles, err := market.FetchRange(ctx, src, req, market.RangeOptions{})
	if err != nil {
		return nil, err
	}
	if err := candles.Validate(); err != nil {
		return nil, err
	}
	return candles, nil
}

func simulation(o options, cfg *config.Config, candles market.Candles) backtest.Config {
	symbol := o.symbol
	if symbol == "" && len(candles) > 0 && candles[0].Symbol != "" {
		symbol = candles[0].Symbol
	}
	sim := cfg.Simulation(symbol)
	if o.capital > 0 {
		sim.InitialCapital = o.capital
	}
	if o.fee >= 0 {
		sim.FeeRate = o.fee
	}
	if o.leverage > 0 {
		sim.Leverage = o.leverage
	}
	return sim
}

func buildStrategies(o options) ([]backtest.BatchItem, error) {
	var items []backtest.BatchItem
	for _, name := range strings.Split(o.strategies, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		strat, err := sig.New(name, o.params.values())
		if err != nil {
			return nil, err
		}
		items = append(items, backtest.BatchItem{Strategy: strat})
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no strategy selected")
	}
	return items, nil
}

func exitPlanPreview(tpPct float64, candles market.Candles, atrPeriod int) string {
	plan := exit.CalculateExitStrategy(tpPct)
	label := "exit plan"
	if vol, ok := sig.ATRVolatility(candles, atrPeriod); ok {
		plan = exit.CalculateExitStrategyWithVolatility(tpPct, vol)
		label = fmt.Sprintf("exit plan (atr volatility %.2f%%)", vol*100)
	}
	return fmt.Sprintf("%s: %s", label, exit.Describe(&plan))
}

func writeReports(dir string, results []backtest.Result, candles market.Candles) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	for _, res := range results {
		base := filepath.Join(dir, reportName(res))
		f, err := os.Create(base + ".html")
		if err != nil {
			return err
		}
		err = report.EquityChart(f, res, candles)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("write chart: %w", err)
		}
		if err := report.WriteWorkbook(base+".xlsx", res); err != nil {
			return err
		}
		logger.Infof("report written: %s.{html,xlsx}", base)
	}
	return nil
}

func reportName(res backtest.Result) string {
	name := strings.NewReplacer("(", "_", ")", "", ",", "_", " ", "").Replace(res.Strategy)
	return fmt.Sprintf("%s_%s", strings.ToLower(res.Symbol), name)
}

func archiveRuns(ctx context.Context, path string, cfg backtest.Config, results []backtest.Result, candles int, out io.Writer) error {
	store, err := archive.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	for _, res := range results {
		sum, err := store.Save(ctx, cfg, res, candles)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "archived %s as %s\n", res.Strategy, sum.ID)
	}
	return nil
}

func parseTime(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("invalid time %q", raw)
}

// paramFlag 收集重复的 key=value 参数。
type paramFlag map[string]string

func (p *paramFlag) String() string {
	if p == nil {
		return ""
	}
	parts := make([]string, 0, len(*p))
	for k, v := range *p {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (p *paramFlag) Set(raw string) error {
	k, v, ok := strings.Cut(raw, "=")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return fmt.Errorf("param must be key=value, got %q", raw)
	}
	if *p == nil {
		*p = make(paramFlag)
	}
	(*p)[k] = strings.TrimSpace(v)
	return nil
}

func (p paramFlag) values() map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
