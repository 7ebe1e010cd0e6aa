package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const includeKey = "include"

// Load 读取主配置及其 include 列表（被引用文件先合并，主文件最后覆盖），补齐默认值并校验。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	r := includeReader{done: make(map[string]bool), open: make(map[string]bool)}
	if err := r.read(abs); err != nil {
		return nil, err
	}
	v := viper.New()
	for _, layer := range r.layers {
		if err := v.MergeConfigMap(layer.settings); err != nil {
			return nil, fmt.Errorf("merge config %s: %w", layer.file, err)
		}
	}
	return decode(v)
}

// Default 返回未读取任何文件时的默认配置。
func Default() *Config {
	var cfg Config
	cfg.applyDefaults(nil)
	return &cfg
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	set := make(keySet)
	markKeys("", v.AllSettings(), set)
	cfg.applyDefaults(set)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type configLayer struct {
	file     string
	settings map[string]any
}

// includeReader 深度优先展开 include，每个文件只读一次。
type includeReader struct {
	done   map[string]bool
	open   map[string]bool
	layers []configLayer
}

func (r *includeReader) read(path string) error {
	path = filepath.Clean(path)
	if r.open[path] {
		return fmt.Errorf("include cycle detected: %s", path)
	}
	if r.done[path] {
		return nil
	}
	r.open[path] = true
	defer delete(r.open, path)

	fv := viper.New()
	fv.SetConfigFile(path)
	if err := fv.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	settings := fv.AllSettings()
	includes, err := includeList(settings[includeKey])
	if err != nil {
		return fmt.Errorf("parsing include failed (%s): %w", path, err)
	}
	delete(settings, includeKey)

	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := r.read(inc); err != nil {
			return err
		}
	}
	r.done[path] = true
	r.layers = append(r.layers, configLayer{file: path, settings: settings})
	return nil
}

// includeList 接受字符串列表或单个字符串。
func includeList(raw any) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	if s, ok := raw.(string); ok {
		raw = []string{s}
	}
	items, err := cast.ToStringSliceE(raw)
	if err != nil {
		return nil, fmt.Errorf("include must be a string array: %w", err)
	}
	out := items[:0]
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out, nil
}

// markKeys 记录所有出现过的叶子键（viper 已统一为小写 map[string]any）。
func markKeys(prefix string, node any, dest keySet) {
	m, ok := node.(map[string]any)
	if !ok {
		if prefix != "" {
			dest.mark(prefix)
		}
		return
	}
	for k, child := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		markKeys(key, child, dest)
	}
}
