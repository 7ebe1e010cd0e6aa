package backtest

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"exitpilot/internal/market"
)

// BatchItem 为批量回测中的一个策略。
type BatchItem struct {
	Name     string
	Strategy Strategy
}

type namedStrategy struct {
	Strategy
	name string
}

func (n namedStrategy) Name() string { return n.name }

// RunBatch 在同一组 K 线上并发回测多个策略，每个策略独立持有 Portfolio。
// 结果顺序与 items 一致；任一失败时返回第一个错误。
func RunBatch(ctx context.Context, items []BatchItem, candles []market.Candle, cfg Config, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 4
	}
	results := make([]Result, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			strategy := item.Strategy
			if item.Name != "" {
				strategy = namedStrategy{Strategy: item.Strategy, name: item.Name}
			}
			res, err := Run(strategy, candles, cfg)
			if err != nil {
				return fmt.Errorf("backtest %s: %w", item.Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
