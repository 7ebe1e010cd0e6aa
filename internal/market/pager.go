package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"exitpilot/internal/logger"
	"exitpilot/internal/pkg/circuit"
)

// RangeOptions 控制分页拉取；零值使用默认分页与重试。
type RangeOptions struct {
	PageLimit int
	Retries   int
	Breaker   *circuit.Breaker
}

// FetchRange 按周期网格分页拉取 [Start, End] 区间的 K 线。
// End 为 0 时持续翻页直到某页不足 PageLimit；req.Limit > 0 时截断总数。
func FetchRange(ctx context.Context, src Source, req FetchRequest, opts RangeOptions) (Candles, error) {
	tf, err := ParseTimeframe(req.Interval)
	if err != nil {
		return nil, err
	}
	req.Interval = tf.SourceInterval
	if opts.PageLimit <= 0 || opts.PageLimit > maxKlineLimit {
		opts.PageLimit = 1000
	}
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.Breaker == nil {
		opts.Breaker = circuit.NewBreaker(src.Name(), opts.Retries, 30*time.Second)
	}
	if req.Start <= 0 {
		return fetchPage(ctx, src, req, opts)
	}

	step := tf.Millis()
	cursor, end := req.Start, req.End
	if end > 0 {
		cursor, end = tf.AlignRange(req.Start, req.End)
	} else {
		cursor = alignDown(cursor, step)
	}
	var out Candles
	for end == 0 || cursor <= end {
		page := req
		page.Start, page.End, page.Limit = cursor, end, opts.PageLimit
		rows, err := fetchPage(ctx, src, page, opts)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}
		out = append(out, rows...)
		if req.Limit > 0 && len(out) >= req.Limit {
			break
		}
		next := rows[len(rows)-1].Timestamp + step
		if next <= cursor || len(rows) < opts.PageLimit {
			break
		}
		cursor = next
	}
	out = out.Normalize()
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	if missing := tf.Gaps(out); missing > 0 {
		logger.Warnf("%s %s: %d candles missing between %d and %d", req.Symbol, tf.Key, missing, req.Start, req.End)
	}
	return out, nil
}

func fetchPage(ctx context.Context, src Source, req FetchRequest, opts RangeOptions) (Candles, error) {
	var (
		rows    Candles
		lastErr error
	)
	for attempt := 1; attempt <= opts.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lastErr = opts.Breaker.Do(func() error {
			var err error
			rows, err = src.Fetch(ctx, req)
			return err
		})
		if lastErr == nil {
			return rows.Normalize(), nil
		}
		if errors.Is(lastErr, circuit.ErrOpen) {
			break
		}
		logger.Warnf("%s fetch %s attempt %d/%d failed: %v", src.Name(), req.Symbol, attempt, opts.Retries, lastErr)
	}
	return nil, fmt.Errorf("fetch %s %s from %s: %w", req.Symbol, req.Interval, src.Name(), lastErr)
}
