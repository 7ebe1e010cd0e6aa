// Package apihttp 提供仓位计算、止盈计划、交易评估与回测归档的 REST 接口。
package apihttp

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"exitpilot/internal/backtest"
	"exitpilot/internal/config"
	"exitpilot/internal/logger"
	"exitpilot/internal/monitor"
	"exitpilot/internal/risk"
	"exitpilot/internal/trade"
)

// Policy 为接口使用的风控与移动止损默认值，配置热更新时整体替换。
type Policy struct {
	Risk       risk.Config
	Trailing   trade.TrailingStopConfig
	Simulation backtest.Config
}

// PolicyFromConfig 从配置构造接口策略。
func PolicyFromConfig(cfg *config.Config) Policy {
	if cfg == nil {
		return Policy{Risk: risk.DefaultConfig()}
	}
	return Policy{
		Risk:       cfg.Risk,
		Trailing:   cfg.Trailing.Policy(),
		Simulation: cfg.Simulation(""),
	}
}

// ServerConfig 描述 HTTP 服务依赖。
type ServerConfig struct {
	Addr     string
	Policy   Policy
	Runs     RunStore
	Registry *prometheus.Registry
}

// Server 为 gin 实现的 REST 服务。
type Server struct {
	addr   string
	router *gin.Engine
	policy atomic.Pointer[Policy]
	runs   RunStore

	monitorMetrics  *monitor.Metrics
	backtestMetrics *backtest.Metrics
}

// NewServer 构建服务并注册路由；Runs 为空时归档接口返回 503。
func NewServer(cfg ServerConfig) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		addr:            cfg.Addr,
		router:          router,
		runs:            cfg.Runs,
		monitorMetrics:  monitor.NewMetrics(reg),
		backtestMetrics: backtest.NewMetrics(reg),
	}
	policy := cfg.Policy
	s.policy.Store(&policy)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	s.registerRoutes(router.Group("/api"))
	return s
}

// SetPolicy 原子替换策略，正在处理的请求继续使用旧值。
func (s *Server) SetPolicy(p Policy) {
	s.policy.Store(&p)
	logger.Infof("http policy updated: max_leverage=%g max_risk=%g trailing=%v", p.Risk.MaxLeverage, p.Risk.MaxRiskPerTrade, p.Trailing.Enabled)
}

// Policy 返回当前策略副本。
func (s *Server) Policy() Policy {
	return *s.policy.Load()
}

// Handler 暴露底层路由，便于测试与嵌入。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// requestLogger 以 debug 级别记录请求耗时。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			path += "?" + q
		}
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", c.Request.Method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("http server listening on %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
