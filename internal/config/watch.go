package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"exitpilot/internal/logger"
)

// ChangeListener 在配置重新加载并通过校验后被调用。
type ChangeListener func(*Config)

// Watcher 持有最近一次有效的配置，并在主配置文件变化时重新加载。
type Watcher struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	current   *Config
	version   int
	listeners []ChangeListener
}

// Watch 加载配置并开始监听文件变化；校验失败的新配置会被丢弃，保留旧值。
func Watch(path string, fn ChangeListener) (*Watcher, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: path, current: cfg, version: 1}
	if fn != nil {
		w.listeners = append(w.listeners, fn)
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config failed: %w", err)
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := w.reload(); err != nil {
			logger.Errorf("config reload failed (%s): %v", evt.Name, err)
		}
	})
	v.WatchConfig()
	w.v = v
	return w, nil
}

// Current 返回当前生效的配置。
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Version 从 1 开始，每次成功重载加一。
func (w *Watcher) Version() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.version
}

// Subscribe 注册额外的监听器。
func (w *Watcher) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

func (w *Watcher) reload() error {
	cfg, err := Load(w.path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.current = cfg
	w.version++
	version := w.version
	listeners := append([]ChangeListener(nil), w.listeners...)
	w.mu.Unlock()
	logger.Infof("config reloaded from %s (version %d)", w.path, version)
	for _, fn := range listeners {
		notify(fn, cfg)
	}
	return nil
}

func notify(fn ChangeListener, cfg *Config) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("config listener panic: %v", r)
		}
	}()
	fn(cfg)
}
