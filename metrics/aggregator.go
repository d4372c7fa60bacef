package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counter names. The aggregator accepts arbitrary names, but these are the
// ones the rest of the service emits and the snapshot always reports.
const (
	MessagesSent     = "messagesSent"
	MessagesFailed   = "messagesFailed"
	MediaSent        = "mediaSent"
	MediaFailed      = "mediaFailed"
	BulkRequests     = "bulkRequests"
	BulkMessagesSent = "bulkMessagesSent"
	BulkMessagesFail = "bulkMessagesFailed"
	QRCodeRequests   = "qrCodeRequests"
	APIRequests      = "apiRequests"
	APIErrors        = "apiErrors"
)

var knownCounters = []string{
	MessagesSent, MessagesFailed, MediaSent, MediaFailed,
	BulkRequests, BulkMessagesSent, BulkMessagesFail,
	QRCodeRequests, APIRequests, APIErrors,
}

const (
	hourKey = "2006-01-02T15"
	dayKey  = "2006-01-02"

	hourlyRetention = 24 * time.Hour
	dailyRetention  = 7 * 24 * time.Hour
)

// Snapshot is the read-only view returned to callers.
type Snapshot struct {
	Counters      map[string]int64            `json:"counters"`
	UptimeSeconds int64                       `json:"uptime"`
	LastActivity  int64                       `json:"lastActivity"`
	SuccessRate   int                         `json:"successRate"`
	HourlyStats   map[string]map[string]int64 `json:"hourlyStats"`
	DailyStats    map[string]map[string]int64 `json:"dailyStats"`
}

// Aggregator keeps process-wide counters plus UTC hourly and daily rollups.
// Every counter is mirrored into a prometheus CounterVec on the aggregator's
// own registry.
type Aggregator struct {
	mu           sync.Mutex
	counters     map[string]int64
	hourly       map[string]map[string]int64
	daily        map[string]map[string]int64
	startTime    time.Time
	lastActivity time.Time
	now          func() time.Time

	registry *prometheus.Registry
	events   *prometheus.CounterVec
}

func New() *Aggregator {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	a := &Aggregator{
		counters: make(map[string]int64),
		hourly:   make(map[string]map[string]int64),
		daily:    make(map[string]map[string]int64),
		now:      time.Now,
		registry: reg,
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "whatsapp_api_events_total",
			Help: "Total count of service events by counter name",
		}, []string{"counter"}),
	}
	for _, name := range knownCounters {
		a.counters[name] = 0
	}
	a.startTime = a.now()
	a.lastActivity = a.startTime
	return a
}

// Registry exposes the prometheus registry for the /metrics/prometheus
// endpoint.
func (a *Aggregator) Registry() *prometheus.Registry { return a.registry }

func (a *Aggregator) Increment(name string) { a.Add(name, 1) }

func (a *Aggregator) Add(name string, n int64) {
	a.events.WithLabelValues(name).Add(float64(n))

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now().UTC()
	a.counters[name] += n
	a.lastActivity = now

	hour := now.Format(hourKey)
	if a.hourly[hour] == nil {
		a.hourly[hour] = make(map[string]int64)
	}
	a.hourly[hour][name] += n

	day := now.Format(dayKey)
	if a.daily[day] == nil {
		a.daily[day] = make(map[string]int64)
	}
	a.daily[day][name] += n
}

func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	counters := make(map[string]int64, len(a.counters))
	for k, v := range a.counters {
		counters[k] = v
	}

	return Snapshot{
		Counters:      counters,
		UptimeSeconds: int64(now.Sub(a.startTime).Seconds()),
		LastActivity:  int64(now.Sub(a.lastActivity).Seconds()),
		SuccessRate:   successRate(a.counters),
		HourlyStats:   copyStats(a.hourly),
		DailyStats:    copyStats(a.daily),
	}
}

// successRate is successful sends over all terminal sends across the text,
// media and bulk categories, as a rounded percentage. Zero when nothing has
// been sent.
func successRate(c map[string]int64) int {
	sent := c[MessagesSent] + c[MediaSent] + c[BulkMessagesSent]
	failed := c[MessagesFailed] + c[MediaFailed] + c[BulkMessagesFail]
	total := sent + failed
	if total == 0 {
		return 0
	}
	return int((sent*100 + total/2) / total)
}

func copyStats(src map[string]map[string]int64) map[string]map[string]int64 {
	out := make(map[string]map[string]int64, len(src))
	for bucket, stats := range src {
		inner := make(map[string]int64, len(stats))
		for k, v := range stats {
			inner[k] = v
		}
		out[bucket] = inner
	}
	return out
}

func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.counters = make(map[string]int64)
	for _, name := range knownCounters {
		a.counters[name] = 0
	}
	a.hourly = make(map[string]map[string]int64)
	a.daily = make(map[string]map[string]int64)
	a.startTime = a.now()
	a.lastActivity = a.startTime
}

// StartSweeper evicts rollup buckets past retention once per hour until ctx
// is cancelled.
func (a *Aggregator) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (a *Aggregator) sweep() {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now().UTC()
	hourCutoff := now.Add(-hourlyRetention).Format(hourKey)
	for hour := range a.hourly {
		if hour < hourCutoff {
			delete(a.hourly, hour)
		}
	}
	dayCutoff := now.Add(-dailyRetention).Format(dayKey)
	for day := range a.daily {
		if day < dayCutoff {
			delete(a.daily, day)
		}
	}
}
