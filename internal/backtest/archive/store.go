// Package archive 持久化已完成的回测结果，仅保存报表，不保存实盘交易状态。
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"exitpilot/internal/backtest"
	pairs "exitpilot/internal/pkg/symbol"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("backtest run not found")

type runModel struct {
	ID              string         `gorm:"column:id;primaryKey"`
	Strategy        string         `gorm:"column:strategy;index"`
	Symbol          string         `gorm:"column:symbol;index"`
	Candles         int            `gorm:"column:candles"`
	InitialCapital  float64        `gorm:"column:initial_capital"`
	FinalEquity     float64        `gorm:"column:final_equity"`
	TotalReturn     float64        `gorm:"column:total_return"`
	MaxDrawdown     float64        `gorm:"column:max_drawdown"`
	BenchmarkReturn float64        `gorm:"column:benchmark_return"`
	WinRate         float64        `gorm:"column:win_rate"`
	TradeCount      int            `gorm:"column:trade_count"`
	ConfigJSON      datatypes.JSON `gorm:"column:config_json;type:TEXT"`
	ResultJSON      datatypes.JSON `gorm:"column:result_json;type:TEXT"`
	CreatedAt       int64          `gorm:"column:created_at;index"`
}

func (runModel) TableName() string { return "backtest_runs" }

// Summary 为列表展示用的回测摘要。
type Summary struct {
	ID              string  `json:"id"`
	Strategy        string  `json:"strategy"`
	Symbol          string  `json:"symbol"`
	Candles         int     `json:"candles"`
	InitialCapital  float64 `json:"initial_capital"`
	FinalEquity     float64 `json:"final_equity"`
	TotalReturn     float64 `json:"total_return"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	BenchmarkReturn float64 `json:"benchmark_return"`
	WinRate         float64 `json:"win_rate"`
	TradeCount      int     `json:"trade_count"`
	CreatedAt       int64   `json:"created_at"`
}

// Run 为完整的归档记录。
type Run struct {
	Summary
	Config backtest.Config `json:"config"`
	Result backtest.Result `json:"result"`
}

// Store 基于 gorm + modernc sqlite（纯 Go 驱动）。
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("archive: 路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&runModel{}); err != nil {
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save 归档一次回测，返回生成的 run ID。
func (s *Store) Save(ctx context.Context, cfg backtest.Config, res backtest.Result, candles int) (Summary, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return Summary{}, err
	}
	resJSON, err := json.Marshal(res)
	if err != nil {
		return Summary{}, err
	}
	m := runModel{
		ID:              uuid.NewString(),
		Strategy:        res.Strategy,
		Symbol:          res.Symbol,
		Candles:         candles,
		InitialCapital:  res.InitialCapital,
		FinalEquity:     res.FinalEquity,
		TotalReturn:     res.TotalReturn,
		MaxDrawdown:     res.MaxDrawdown,
		BenchmarkReturn: res.BenchmarkReturn,
		WinRate:         res.WinRate,
		TradeCount:      len(res.Trades),
		ConfigJSON:      datatypes.JSON(cfgJSON),
		ResultJSON:      datatypes.JSON(resJSON),
		CreatedAt:       s.now().UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return Summary{}, fmt.Errorf("archive: save run: %w", err)
	}
	return m.summary(), nil
}

// List 按创建时间倒序返回最近 limit 条摘要，可按 symbol 过滤。
func (s *Store) List(ctx context.Context, symbol string, limit int) ([]Summary, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Model(&runModel{}).Omit("config_json", "result_json")
	if sym := pairs.Canonical(symbol); sym != "" {
		q = q.Where("symbol = ?", sym)
	}
	var rows []runModel
	if err := q.Order("created_at desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("archive: list runs: %w", err)
	}
	out := make([]Summary, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.summary())
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	var m runModel
	err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("archive: get run: %w", err)
	}
	run := Run{Summary: m.summary()}
	if err := json.Unmarshal(m.ConfigJSON, &run.Config); err != nil {
		return Run{}, fmt.Errorf("archive: decode config: %w", err)
	}
	if err := json.Unmarshal(m.ResultJSON, &run.Result); err != nil {
		return Run{}, fmt.Errorf("archive: decode result: %w", err)
	}
	return run, nil
}

func (m runModel) summary() Summary {
	return Summary{
		ID:              m.ID,
		Strategy:        m.Strategy,
		Symbol:          m.Symbol,
		Candles:         m.Candles,
		InitialCapital:  m.InitialCapital,
		FinalEquity:     m.FinalEquity,
		TotalReturn:     m.TotalReturn,
		MaxDrawdown:     m.MaxDrawdown,
		BenchmarkReturn: m.BenchmarkReturn,
		WinRate:         m.WinRate,
		TradeCount:      m.TradeCount,
		CreatedAt:       m.CreatedAt,
	}
}
