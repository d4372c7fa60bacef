package whatsapp

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"whatsapp-api-gateway/config"
	"whatsapp-api-gateway/metrics"
	"whatsapp-api-gateway/types"
)

// MaxBulkItems bounds one batch.
const MaxBulkItems = 100

type bulkSender interface {
	Send(ctx context.Context, msg types.OutboundMessage) (string, error)
}

// BulkCoordinator sequences a batch of text sends through the dispatcher.
// Items run strictly one after another with a fixed pacing delay so the
// transport's own rate limits are not tripped.
type BulkCoordinator struct {
	dispatcher bulkSender
	stats      *metrics.Aggregator
	log        zerolog.Logger
	delay      time.Duration
	pace       func(time.Duration)
}

func NewBulkCoordinator(d bulkSender, stats *metrics.Aggregator, cfg config.SendConfig, log zerolog.Logger) *BulkCoordinator {
	return &BulkCoordinator{
		dispatcher: d,
		stats:      stats,
		log:        log.With().Str("component", "bulk").Logger(),
		delay:      cfg.BulkDelay,
		pace:       time.Sleep,
	}
}

// SendBulk validates the batch shape, then dispatches each item in order.
// A single item's failure (including a validation failure of its recipient
// or message) never aborts the batch.
func (c *BulkCoordinator) SendBulk(ctx context.Context, items []types.BulkItem) (types.BulkSummary, error) {
	if len(items) == 0 {
		return types.BulkSummary{}, types.Validationf("messages array cannot be empty")
	}
	if len(items) > MaxBulkItems {
		return types.BulkSummary{}, types.Validationf("too many messages, maximum %d per bulk request", MaxBulkItems)
	}

	c.log.Info().Int("count", len(items)).Msg("processing bulk batch")

	summary := types.BulkSummary{Total: len(items)}
	for i, item := range items {
		summary.Results = append(summary.Results, c.sendItem(ctx, item))
		if summary.Results[i].Success {
			summary.Success++
		} else {
			summary.Failed++
		}
		if i < len(items)-1 {
			c.pace(c.delay)
		}
	}

	c.stats.Increment(metrics.BulkRequests)
	c.stats.Add(metrics.BulkMessagesSent, int64(summary.Success))
	c.stats.Add(metrics.BulkMessagesFail, int64(summary.Failed))

	c.log.Info().Int("total", summary.Total).Int("success", summary.Success).Int("failed", summary.Failed).Msg("bulk batch completed")
	return summary, nil
}

func (c *BulkCoordinator) sendItem(ctx context.Context, item types.BulkItem) types.BulkItemResult {
	result := types.BulkItemResult{To: item.To}

	to, err := NormalizeRecipient(item.To)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	text, err := ValidateMessage(item.Message)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	id, err := c.dispatcher.Send(ctx, types.OutboundMessage{To: to, Kind: types.KindText, Text: text})
	if err != nil {
		c.log.Warn().Err(err).Str("to", to).Msg("bulk item failed")
		result.Error = err.Error()
		return result
	}

	result.To = to
	result.Success = true
	result.MessageID = id
	return result
}
