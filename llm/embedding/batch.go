package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/supportrag/types"
)

// BatchItem 待嵌入的一条文本
type BatchItem struct {
	ID       string
	Text     string
	Category string
}

// BatchOptions 批量嵌入的节流参数
type BatchOptions struct {
	// 每批条数
	BatchSize int
	// 批内相邻两条之间的间隔
	ItemDelay time.Duration
	// 相邻两批之间的间隔
	BatchDelay time.Duration
}

// DefaultBatchOptions 返回默认节流参数
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{
		BatchSize:  10,
		ItemDelay:  200 * time.Millisecond,
		BatchDelay: time.Second,
	}
}

// Embedded 成功嵌入的一条结果
type Embedded struct {
	Item   BatchItem
	Vector []float64
}

// BatchResult 批量嵌入结果
type BatchResult struct {
	Embedded []Embedded
	// 失败并被跳过的条目
	Failed int
	// 跳过条目的汇总错误，全部成功时为 nil
	Errors error
}

// EmbedBatch 分批顺序嵌入。批内逐条调用以遵守上游限流。
// 单条失败记录日志后跳过；PROVIDER_UNAVAILABLE 或 ctx 取消时中止并返回已完成部分。
func EmbedBatch(ctx context.Context, e Embedder, items []BatchItem, opts BatchOptions, logger *zap.Logger) (BatchResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "embed_batch"))

	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchOptions().BatchSize
	}

	var (
		result BatchResult
		errs   *multierror.Error
	)

	// 批内节流；首条立即放行
	itemLimit := rate.Inf
	if opts.ItemDelay > 0 {
		itemLimit = rate.Every(opts.ItemDelay)
	}

	totalBatches := (len(items) + opts.BatchSize - 1) / opts.BatchSize
	for b := 0; b < totalBatches; b++ {
		if b > 0 && opts.BatchDelay > 0 {
			if err := sleepCtx(ctx, opts.BatchDelay); err != nil {
				result.Errors = errs.ErrorOrNil()
				return result, err
			}
		}

		start := b * opts.BatchSize
		end := min(start+opts.BatchSize, len(items))
		logger.Info("processing batch",
			zap.Int("batch", b+1),
			zap.Int("total_batches", totalBatches),
			zap.Int("items", end-start))

		limiter := rate.NewLimiter(itemLimit, 1)
		for _, item := range items[start:end] {
			if err := limiter.Wait(ctx); err != nil {
				result.Errors = errs.ErrorOrNil()
				return result, err
			}

			vec, err := e.Embed(ctx, item.Text, item.Category)
			if err != nil {
				if types.IsErrorCode(err, types.ErrProviderUnavailable) {
					result.Errors = errs.ErrorOrNil()
					return result, err
				}
				if ctxErr := ctx.Err(); ctxErr != nil {
					result.Errors = errs.ErrorOrNil()
					return result, ctxErr
				}
				logger.Warn("embedding failed, skipping item",
					zap.String("id", item.ID),
					zap.Error(err))
				errs = multierror.Append(errs, fmt.Errorf("item %q: %w", item.ID, err))
				result.Failed++
				continue
			}

			result.Embedded = append(result.Embedded, Embedded{Item: item, Vector: vec})
		}
	}

	logger.Info("batch embedding completed",
		zap.Int("succeeded", len(result.Embedded)),
		zap.Int("failed", result.Failed))

	result.Errors = errs.ErrorOrNil()
	return result, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
