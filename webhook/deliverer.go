package webhook

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"whatsapp-api-gateway/config"
	"whatsapp-api-gateway/media"
	"whatsapp-api-gateway/types"
)

// Envelope is the wire format POSTed to the sink.
type Envelope struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// Result reports one delivery outcome. Delivery failures never propagate to
// the caller whose action triggered the event.
type Result struct {
	Delivered bool `json:"delivered"`
	Attempts  int  `json:"attempts"`
}

type downloader interface {
	Download(ctx context.Context, msg types.InboundMessage) ([]byte, error)
}

// Deliverer converts internal events into outbound HTTP notifications with
// bounded retries and backoff. Asynchronous emissions run on a bounded
// worker pool so the primary send/receive path is never blocked.
type Deliverer struct {
	client      *resty.Client
	url         string
	maxAttempts int
	pool        *workerPool
	log         zerolog.Logger

	store      *media.Store
	downloader downloader

	sleep func(time.Duration)
	now   func() time.Time
}

func NewDeliverer(cfg config.WebhookConfig, log zerolog.Logger) *Deliverer {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "whatsapp-api-gateway/1.0")

	d := &Deliverer{
		client:      client,
		url:         cfg.URL,
		maxAttempts: cfg.MaxAttempts,
		pool:        newWorkerPool(cfg.Workers),
		log:         log.With().Str("component", "webhook").Logger(),
		sleep:       time.Sleep,
		now:         time.Now,
	}
	if d.Enabled() {
		d.log.Info().Str("url", cfg.URL).Msg("webhook delivery enabled")
	} else {
		d.log.Warn().Msg("webhook delivery disabled, no WEBHOOK_URL configured")
	}
	return d
}

// AttachMedia wires the attachment pipeline used by message.received
// payloads. Without it inbound media is reported without content.
func (d *Deliverer) AttachMedia(store *media.Store, dl downloader) {
	d.store = store
	d.downloader = dl
}

func (d *Deliverer) Enabled() bool { return d.url != "" }

func (d *Deliverer) URL() string { return d.url }

// Deliver POSTs one event envelope, retrying with exponential backoff up to
// the attempt cap. It reports the outcome but never fails its caller.
func (d *Deliverer) Deliver(ctx context.Context, event string, data any) Result {
	if !d.Enabled() {
		d.log.Debug().Str("event", event).Msg("webhook disabled, skipping event")
		return Result{}
	}

	envelope := Envelope{
		Event:     event,
		Timestamp: d.now().UTC().Format(time.RFC3339),
		Data:      data,
	}

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		resp, err := d.client.R().
			SetContext(ctx).
			SetBody(envelope).
			Post(d.url)

		if err == nil && resp.IsSuccess() {
			d.log.Info().Str("event", event).Int("attempt", attempt).Int("status", resp.StatusCode()).Msg("webhook delivered")
			return Result{Delivered: true, Attempts: attempt}
		}

		logEvt := d.log.Warn().Str("event", event).Int("attempt", attempt)
		if err != nil {
			logEvt = logEvt.Err(err)
		} else {
			logEvt = logEvt.Int("status", resp.StatusCode())
		}
		logEvt.Msg("webhook attempt failed")

		if attempt == d.maxAttempts {
			break
		}
		d.sleep(time.Duration(1<<attempt) * time.Second)
	}

	d.log.Error().Str("event", event).Int("attempts", d.maxAttempts).Msg("webhook abandoned after all attempts")
	return Result{Delivered: false, Attempts: d.maxAttempts}
}

// emit schedules an asynchronous delivery on the worker pool.
func (d *Deliverer) emit(event string, data any) {
	d.pool.submit(func() {
		d.Deliver(context.Background(), event, data)
	})
}

// Drain waits for in-flight asynchronous deliveries. Called on shutdown.
func (d *Deliverer) Drain() {
	d.pool.wait()
}
