package app

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"exitpilot/internal/backtest/archive"
	"exitpilot/internal/config"
	"exitpilot/internal/logger"
	apihttp "exitpilot/internal/transport/http/api"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 服务并跟随配置热更新。
type App struct {
	mu      sync.RWMutex
	cfg     *config.Config
	http    *apihttp.Server
	store   *archive.Store
	Summary *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Bind 订阅配置变更，新配置生效时原子替换 HTTP 策略并更新日志级别。
func (a *App) Bind(w *config.Watcher) {
	if a == nil || w == nil {
		return
	}
	w.Subscribe(a.Reload)
}

// Reload 应用一份已通过校验的新配置；http_addr 变化需要重启才生效。
func (a *App) Reload(cfg *config.Config) {
	if a == nil || cfg == nil {
		return
	}
	a.mu.Lock()
	prev := a.cfg
	a.cfg = cfg
	a.mu.Unlock()

	if prev == nil || cfg.App.LogPath != prev.App.LogPath {
		if err := logger.Setup(cfg.App.LogLevel, cfg.App.LogPath); err != nil {
			logger.Warnf("app.log_path %q 无法打开，继续使用原输出: %v", cfg.App.LogPath, err)
			logger.SetLevel(cfg.App.LogLevel)
		} else {
			logger.Infof("日志输出切换到 %q", cfg.App.LogPath)
		}
	} else {
		logger.SetLevel(cfg.App.LogLevel)
	}
	if prev != nil && cfg.App.HTTPAddr != prev.App.HTTPAddr {
		logger.Warnf("app.http_addr changed to %s, restart required", cfg.App.HTTPAddr)
	}
	a.http.SetPolicy(apihttp.PolicyFromConfig(cfg))
}

// Config 返回当前生效的配置。
func (a *App) Config() *config.Config {
	if a == nil {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Run 启动 HTTP 服务，ctx 取消后关闭归档库。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Config() == nil || a.http == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	return group.Wait()
}

// Server 暴露 HTTP 服务，供测试使用。
func (a *App) Server() *apihttp.Server {
	if a == nil {
		return nil
	}
	return a.http
}
