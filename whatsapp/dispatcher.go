package whatsapp

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"whatsapp-api-gateway/config"
	"whatsapp-api-gateway/metrics"
	"whatsapp-api-gateway/types"
)

// stateSource is consulted at the start of every attempt; state is never
// cached across attempts because a scan in progress may resolve mid-retry.
type stateSource interface {
	State() ConnState
}

// Dispatcher sends a single message through the transport with bounded
// retries, a per-attempt timeout and exponential backoff between attempts.
type Dispatcher struct {
	transport Transport
	conn      stateSource
	sink      EventSink
	stats     *metrics.Aggregator
	log       zerolog.Logger

	maxAttempts  int
	textTimeout  time.Duration
	mediaTimeout time.Duration

	// sleep is swapped out in tests so backoff schedules can be asserted
	// without waiting.
	sleep func(time.Duration)
}

func NewDispatcher(t Transport, conn stateSource, sink EventSink, stats *metrics.Aggregator, cfg config.SendConfig, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		transport:    t,
		conn:         conn,
		sink:         sink,
		stats:        stats,
		log:          log.With().Str("component", "dispatcher").Logger(),
		maxAttempts:  cfg.MaxAttempts,
		textTimeout:  cfg.TextTimeout,
		mediaTimeout: cfg.MediaTimeout,
		sleep:        time.Sleep,
	}
}

// Send delivers msg, retrying transient failures up to the attempt cap. On
// success it returns the transport message id, emits one message.sent event
// and increments the sent counter. On terminal failure it emits an
// error.occurred event and returns a SendTimeoutError if the last cause was
// a timeout, the underlying error otherwise.
func (d *Dispatcher) Send(ctx context.Context, msg types.OutboundMessage) (string, error) {
	timeout := d.textTimeout
	if msg.Kind.IsMedia() {
		timeout = d.mediaTimeout
	}

	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if d.conn.State() != StateConnected {
			// Retryable like any other failure: a scan in progress may
			// resolve before attempts exhaust.
			lastErr = types.ErrNotConnected
		} else {
			attemptCtx, cancel := context.WithTimeout(ctx, timeout)
			id, err := d.transport.Send(attemptCtx, msg)
			cancel()
			if err == nil {
				d.log.Info().Str("to", msg.To).Str("kind", string(msg.Kind)).Int("attempt", attempt).Str("messageId", id).Msg("message sent")
				d.recordOutcome(msg.Kind, true)
				d.sink.MessageSent(id, msg.To, msg.Kind, contentSummary(msg))
				return id, nil
			}
			lastErr = err
		}

		d.log.Warn().Err(lastErr).Str("to", msg.To).Int("attempt", attempt).Int("maxAttempts", d.maxAttempts).Msg("send attempt failed")
		if attempt == d.maxAttempts {
			break
		}
		d.sleep(time.Duration(1<<attempt) * time.Second)
	}

	d.recordOutcome(msg.Kind, false)
	d.sink.ErrorOccurred("message.send.failed", lastErr.Error(), map[string]any{
		"to":       msg.To,
		"attempts": d.maxAttempts,
	})

	if isTimeout(lastErr) {
		return "", &types.SendTimeoutError{Attempts: d.maxAttempts}
	}
	return "", lastErr
}

func (d *Dispatcher) recordOutcome(kind types.MessageKind, ok bool) {
	switch {
	case kind.IsMedia() && ok:
		d.stats.Increment(metrics.MediaSent)
	case kind.IsMedia():
		d.stats.Increment(metrics.MediaFailed)
	case ok:
		d.stats.Increment(metrics.MessagesSent)
	default:
		d.stats.Increment(metrics.MessagesFailed)
	}
}

func contentSummary(msg types.OutboundMessage) map[string]any {
	if msg.Kind == types.KindText {
		return map[string]any{"text": msg.Text}
	}
	content := map[string]any{
		"caption":  msg.Text,
		"mimetype": msg.MimeType,
	}
	if msg.FileName != "" {
		content["fileName"] = msg.FileName
	}
	return content
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "timeout")
}
