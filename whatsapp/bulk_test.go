package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"whatsapp-api-gateway/metrics"
	"whatsapp-api-gateway/types"
)

type fakeDispatcher struct {
	calls []types.OutboundMessage
	send  func(msg types.OutboundMessage) (string, error)
}

func (f *fakeDispatcher) Send(ctx context.Context, msg types.OutboundMessage) (string, error) {
	f.calls = append(f.calls, msg)
	if f.send != nil {
		return f.send(msg)
	}
	return fmt.Sprintf("MSG-%d", len(f.calls)), nil
}

func newTestCoordinator(d *fakeDispatcher, stats *metrics.Aggregator) (*BulkCoordinator, *int) {
	c := NewBulkCoordinator(d, stats, testSendConfig(), zerolog.Nop())
	var paced int
	c.pace = func(time.Duration) { paced++ }
	return c, &paced
}

func TestSendBulkRejectsEmptyBatch(t *testing.T) {
	c, _ := newTestCoordinator(&fakeDispatcher{}, metrics.New())

	_, err := c.SendBulk(context.Background(), nil)
	if !types.IsValidation(err) {
		t.Fatalf("SendBulk(empty) error = %v, want validation error", err)
	}
}

func TestSendBulkRejectsOversizedBatch(t *testing.T) {
	d := &fakeDispatcher{}
	c, _ := newTestCoordinator(d, metrics.New())

	items := make([]types.BulkItem, MaxBulkItems+1)
	for i := range items {
		items[i] = types.BulkItem{To: "15551234567", Message: "hello"}
	}
	_, err := c.SendBulk(context.Background(), items)
	if !types.IsValidation(err) {
		t.Fatalf("SendBulk(101 items) error = %v, want validation error", err)
	}
	if len(d.calls) != 0 {
		t.Errorf("dispatched %d items before rejecting batch, want 0", len(d.calls))
	}
}

func TestSendBulkMixedOutcomes(t *testing.T) {
	d := &fakeDispatcher{}
	stats := metrics.New()
	c, paced := newTestCoordinator(d, stats)

	items := []types.BulkItem{
		{To: "15551234567", Message: "first"},
		{To: "123", Message: "bad recipient"},
		{To: "15557654321", Message: "third"},
	}
	summary, err := c.SendBulk(context.Background(), items)
	if err != nil {
		t.Fatalf("SendBulk() error = %v", err)
	}

	if summary.Total != 3 || summary.Success != 2 || summary.Failed != 1 {
		t.Errorf("summary = {total %d success %d failed %d}, want {3 2 1}", summary.Total, summary.Success, summary.Failed)
	}
	if summary.Success+summary.Failed != summary.Total {
		t.Errorf("success+failed = %d, want total %d", summary.Success+summary.Failed, summary.Total)
	}
	if len(summary.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(summary.Results))
	}
	if summary.Results[1].Success || summary.Results[1].Error == "" {
		t.Errorf("invalid item result = %+v, want failure with error text", summary.Results[1])
	}
	if len(d.calls) != 2 {
		t.Errorf("dispatched %d items, want 2 (invalid item skips dispatch)", len(d.calls))
	}
	if *paced != 2 {
		t.Errorf("pacing pauses = %d, want 2 for a 3-item batch", *paced)
	}

	counters := stats.Snapshot().Counters
	if counters[metrics.BulkRequests] != 1 {
		t.Errorf("bulkRequests = %d, want 1", counters[metrics.BulkRequests])
	}
	if counters[metrics.BulkMessagesSent] != 2 || counters[metrics.BulkMessagesFail] != 1 {
		t.Errorf("bulk counters = {sent %d failed %d}, want {2 1}",
			counters[metrics.BulkMessagesSent], counters[metrics.BulkMessagesFail])
	}
}

func TestSendBulkDispatchFailureDoesNotAbortBatch(t *testing.T) {
	d := &fakeDispatcher{
		send: func(msg types.OutboundMessage) (string, error) {
			if msg.Text == "boom" {
				return "", errors.New("stream closed")
			}
			return "MSG-OK", nil
		},
	}
	c, _ := newTestCoordinator(d, metrics.New())

	items := []types.BulkItem{
		{To: "15551234567", Message: "boom"},
		{To: "15557654321", Message: "fine"},
	}
	summary, err := c.SendBulk(context.Background(), items)
	if err != nil {
		t.Fatalf("SendBulk() error = %v", err)
	}
	if summary.Success != 1 || summary.Failed != 1 {
		t.Errorf("summary = {success %d failed %d}, want {1 1}", summary.Success, summary.Failed)
	}
	if !summary.Results[1].Success {
		t.Errorf("second item result = %+v, want success after earlier failure", summary.Results[1])
	}
}
