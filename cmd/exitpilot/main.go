package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"exitpilot/internal/app"
	"exitpilot/internal/config"
	"exitpilot/internal/logger"
)

func main() {
	loadEnvFile(".env")
	cfgPath := os.Getenv("EXITPILOT_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	watcher, err := config.Watch(cfgPath, nil)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	cfg := watcher.Current()
	if err := logger.Setup(cfg.App.LogLevel, cfg.App.LogPath); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	logger.Infof("✓ 配置加载成功（环境=%s，路径=%s）", cfg.App.Env, cfgPath)

	a, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}
	a.Bind(watcher)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := a.Run(ctx); err != nil {
		log.Fatalf("运行失败: %v", err)
	}
	logger.Infof("exitpilot stopped")
}

func loadEnvFile(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		log.Printf("加载 %s 失败: %v", path, err)
	}
}
