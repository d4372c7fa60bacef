package whatsapp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"whatsapp-api-gateway/config"
	"whatsapp-api-gateway/metrics"
	"whatsapp-api-gateway/types"
)

func testSendConfig() config.SendConfig {
	return config.SendConfig{
		MaxAttempts:  3,
		TextTimeout:  30 * time.Second,
		MediaTimeout: 60 * time.Second,
		BulkDelay:    time.Second,
	}
}

func newTestDispatcher(t *fakeTransport, state ConnState, sink *fakeSink, stats *metrics.Aggregator) (*Dispatcher, *[]time.Duration) {
	d := NewDispatcher(t, fixedState(state), sink, stats, testSendConfig(), zerolog.Nop())
	var slept []time.Duration
	d.sleep = func(dur time.Duration) { slept = append(slept, dur) }
	return d, &slept
}

func TestSendSuccessFirstAttempt(t *testing.T) {
	transport := newFakeTransport()
	sink := &fakeSink{}
	stats := metrics.New()
	d, slept := newTestDispatcher(transport, StateConnected, sink, stats)

	id, err := d.Send(context.Background(), types.OutboundMessage{To: "1@s.whatsapp.net", Kind: types.KindText, Text: "hi"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if id != "MSG-1" {
		t.Errorf("message id = %q, want MSG-1", id)
	}
	if transport.sendCalls != 1 {
		t.Errorf("transport send calls = %d, want 1", transport.sendCalls)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %v, want no backoff on first-attempt success", *slept)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("sink sent events = %d, want 1", len(sink.sent))
	}
	if sink.sent[0].messageID != "MSG-1" || sink.sent[0].kind != types.KindText {
		t.Errorf("sent event = %+v", sink.sent[0])
	}
	if got := stats.Snapshot().Counters[metrics.MessagesSent]; got != 1 {
		t.Errorf("messagesSent = %d, want 1", got)
	}
}

func TestSendBackoffSchedule(t *testing.T) {
	transport := newFakeTransport()
	transport.sendErr = errors.New("stream closed")
	sink := &fakeSink{}
	stats := metrics.New()
	d, slept := newTestDispatcher(transport, StateConnected, sink, stats)

	_, err := d.Send(context.Background(), types.OutboundMessage{To: "1@s.whatsapp.net", Kind: types.KindText, Text: "hi"})
	if err == nil {
		t.Fatal("Send() succeeded, want terminal failure")
	}
	if transport.sendCalls != 3 {
		t.Errorf("transport send calls = %d, want 3", transport.sendCalls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("backoff sleeps = %v, want %v", *slept, want)
	}
	for i, dur := range want {
		if (*slept)[i] != dur {
			t.Errorf("sleep %d = %v, want %v", i, (*slept)[i], dur)
		}
	}
	if got := stats.Snapshot().Counters[metrics.MessagesFailed]; got != 1 {
		t.Errorf("messagesFailed = %d, want 1", got)
	}
	if len(sink.errors) != 1 || sink.errors[0].kind != "message.send.failed" {
		t.Errorf("sink errors = %+v, want one message.send.failed", sink.errors)
	}
}

func TestSendNotConnectedRetriesThenFails(t *testing.T) {
	transport := newFakeTransport()
	sink := &fakeSink{}
	stats := metrics.New()
	d, slept := newTestDispatcher(transport, StateDisconnected, sink, stats)

	_, err := d.Send(context.Background(), types.OutboundMessage{To: "1@s.whatsapp.net", Kind: types.KindText, Text: "hi"})
	if !errors.Is(err, types.ErrNotConnected) {
		t.Fatalf("Send() error = %v, want ErrNotConnected", err)
	}
	if transport.sendCalls != 0 {
		t.Errorf("transport touched %d times while disconnected, want 0", transport.sendCalls)
	}
	if len(*slept) != 2 {
		t.Errorf("backoff sleeps = %d, want 2", len(*slept))
	}
}

func TestSendTimeoutClassified(t *testing.T) {
	transport := newFakeTransport()
	transport.sendErr = context.DeadlineExceeded
	sink := &fakeSink{}
	stats := metrics.New()
	d, _ := newTestDispatcher(transport, StateConnected, sink, stats)

	_, err := d.Send(context.Background(), types.OutboundMessage{To: "1@s.whatsapp.net", Kind: types.KindText, Text: "hi"})
	var ste *types.SendTimeoutError
	if !errors.As(err, &ste) {
		t.Fatalf("Send() error = %v, want SendTimeoutError", err)
	}
	if ste.Attempts != 3 {
		t.Errorf("timeout attempts = %d, want 3", ste.Attempts)
	}
}

func TestSendMediaFailureCountsMediaFailed(t *testing.T) {
	transport := newFakeTransport()
	transport.sendErr = errors.New("upload rejected")
	sink := &fakeSink{}
	stats := metrics.New()
	d, _ := newTestDispatcher(transport, StateConnected, sink, stats)

	_, err := d.Send(context.Background(), types.OutboundMessage{
		To:       "1@s.whatsapp.net",
		Kind:     types.KindImage,
		Media:    []byte{0xff},
		MimeType: "image/jpeg",
	})
	if err == nil {
		t.Fatal("Send() succeeded, want failure")
	}
	counters := stats.Snapshot().Counters
	if counters[metrics.MediaFailed] != 1 {
		t.Errorf("mediaFailed = %d, want 1", counters[metrics.MediaFailed])
	}
	if counters[metrics.MessagesFailed] != 0 {
		t.Errorf("messagesFailed = %d, want 0 for media send", counters[metrics.MessagesFailed])
	}
}
