package market

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
)

var fieldAliases = map[string][]string{
	"timestamp": {"timestamp", "open_time", "opentime", "time", "t", "ts"},
	"open":      {"open", "o"},
	"high":      {"high", "h"},
	"low":       {"low", "l"},
	"close":     {"close", "c"},
	"volume":    {"volume", "v", "vol"},
	"symbol":    {"symbol", "s"},
}

// LoadFile 按扩展名读取 K 线文件（.json / .csv），结果按时间排序。
func LoadFile(path string) (Candles, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read candles failed: %w", err)
	}
	var out Candles
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		out, err = ParseJSON(raw)
	case ".csv":
		out, err = ParseCSV(bytes.NewReader(raw))
	default:
		return nil, fmt.Errorf("unsupported candle file: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return out.Normalize(), nil
}

// ParseJSON 兼容 Binance klines 数组格式（[[openTime,"o","h","l","c","v",...]]）
// 以及对象数组 / {"candles":[...]}。
func ParseJSON(raw []byte) (Candles, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("json 格式无效")
	}
	root := gjson.ParseBytes(raw)
	if root.IsObject() {
		root = root.Get("candles")
	}
	if !root.IsArray() {
		return nil, errors.New("根节点必须是 K 线数组")
	}
	out := make(Candles, 0, len(root.Array()))
	var parseErr error
	root.ForEach(func(key, value gjson.Result) bool {
		c, err := candleFromJSON(value)
		if err != nil {
			parseErr = fmt.Errorf("candle #%d: %w", key.Int(), err)
			return false
		}
		out = append(out, c)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return out, nil
}

func candleFromJSON(v gjson.Result) (Candle, error) {
	if v.IsArray() {
		row := v.Array()
		if len(row) < 6 {
			return Candle{}, fmt.Errorf("kline row needs 6 fields, got %d", len(row))
		}
		return Candle{
			Timestamp: row[0].Int(),
			Open:      row[1].Float(),
			High:      row[2].Float(),
			Low:       row[3].Float(),
			Close:     row[4].Float(),
			Volume:    row[5].Float(),
		}, nil
	}
	if !v.IsObject() {
		return Candle{}, errors.New("kline must be array or object")
	}
	get := func(field string) gjson.Result {
		for _, alias := range fieldAliases[field] {
			if r := v.Get(alias); r.Exists() {
				return r
			}
		}
		return gjson.Result{}
	}
	closeVal := get("close")
	if !closeVal.Exists() {
		return Candle{}, errors.New("close 缺失")
	}
	ts, err := parseTimestamp(get("timestamp").String())
	if err != nil {
		return Candle{}, err
	}
	return Candle{
		Symbol:    strings.ToUpper(get("symbol").String()),
		Timestamp: ts,
		Open:      get("open").Float(),
		High:      get("high").Float(),
		Low:       get("low").Float(),
		Close:     closeVal.Float(),
		Volume:    get("volume").Float(),
	}, nil
}

// ParseCSV 读取带表头的 CSV，列名大小写不敏感，支持常见别名。
func ParseCSV(r io.Reader) (Candles, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header failed: %w", err)
	}
	cols := make(map[string]int)
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		for field, aliases := range fieldAliases {
			for _, alias := range aliases {
				if name == alias {
					if _, seen := cols[field]; !seen {
						cols[field] = i
					}
				}
			}
		}
	}
	if _, ok := cols["close"]; !ok {
		return nil, errors.New("csv 缺少 close 列")
	}
	if _, ok := cols["timestamp"]; !ok {
		return nil, errors.New("csv 缺少 timestamp 列")
	}

	var out Candles
	line := 1
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv failed: %w", err)
		}
		line++
		c, err := candleFromRecord(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func candleFromRecord(rec []string, cols map[string]int) (Candle, error) {
	field := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[idx])
	}
	num := func(name string) (float64, error) {
		raw := field(name)
		if raw == "" {
			return 0, nil
		}
		v, err := cast.ToFloat64E(raw)
		if err != nil {
			return 0, fmt.Errorf("%s=%q: %w", name, raw, err)
		}
		return v, nil
	}
	ts, err := parseTimestamp(field("timestamp"))
	if err != nil {
		return Candle{}, err
	}
	c := Candle{Symbol: strings.ToUpper(field("symbol")), Timestamp: ts}
	for _, target := range []struct {
		name string
		dst  *float64
	}{
		{"open", &c.Open},
		{"high", &c.High},
		{"low", &c.Low},
		{"close", &c.Close},
		{"volume", &c.Volume},
	} {
		v, err := num(target.name)
		if err != nil {
			return Candle{}, err
		}
		*target.dst = v
	}
	return c, nil
}

// parseTimestamp 接受 Unix 毫秒/秒或 RFC3339 时间。
func parseTimestamp(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("timestamp 缺失")
	}
	if v, err := cast.ToInt64E(raw); err == nil {
		if v > 0 && v < 1e11 {
			return v * 1000, nil
		}
		return v, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, fmt.Errorf("timestamp %q 无法解析", raw)
	}
	return t.UnixMilli(), nil
}
