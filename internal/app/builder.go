package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"exitpilot/internal/backtest/archive"
	"exitpilot/internal/config"
	"exitpilot/internal/logger"
	apihttp "exitpilot/internal/transport/http/api"
)

// AppBuilder 负责按配置组装应用依赖。
type AppBuilder struct {
	cfg *config.Config
}

func NewAppBuilder(cfg *config.Config) *AppBuilder {
	return &AppBuilder{cfg: cfg}
}

// Build 打开回测归档库并构造 HTTP 服务；store_path 为空时不启用归档。
func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if b == nil || b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	var (
		store *archive.Store
		runs  apihttp.RunStore
	)
	if path := strings.TrimSpace(cfg.Backtest.StorePath); path != "" {
		st, err := archive.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open backtest archive: %w", err)
		}
		store, runs = st, st
		logger.Infof("backtest archive opened at %s", path)
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	server := apihttp.NewServer(apihttp.ServerConfig{
		Addr:     cfg.App.HTTPAddr,
		Policy:   apihttp.PolicyFromConfig(cfg),
		Runs:     runs,
		Registry: reg,
	})
	return &App{
		cfg:     cfg,
		http:    server,
		store:   store,
		Summary: newStartupSummary(cfg),
	}, nil
}
