package stats

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const dayFormat = "2006-01-02"

// DayStats is one day bucket of connection statistics.
type DayStats struct {
	Date    string           `json:"date"`
	Total   int64            `json:"total"`
	Domains map[string]int64 `json:"domains"`
}

func (d DayStats) clone() DayStats {
	out := DayStats{Date: d.Date, Total: d.Total, Domains: make(map[string]int64, len(d.Domains))}
	for k, v := range d.Domains {
		out.Domains[k] = v
	}
	return out
}

// Aggregator accumulates per-domain connection counts into day buckets and
// persists them as a single JSON document. Counts only grow within a day;
// retention pruning is the only way entries disappear.
type Aggregator struct {
	store         *DocumentStore
	retentionDays int
	logger        *zap.SugaredLogger
	clock         func() time.Time

	mu   sync.Mutex
	days map[string]*DayStats
}

// NewAggregator creates an aggregator backed by store, loading any previously
// persisted buckets and dropping those beyond the retention window. A missing
// or corrupt document starts the history empty.
func NewAggregator(store *DocumentStore, retentionDays int, logger *zap.SugaredLogger) *Aggregator {
	a := &Aggregator{
		store:         store,
		retentionDays: retentionDays,
		logger:        logger,
		clock:         time.Now,
		days:          make(map[string]*DayStats),
	}
	a.store.Load(&a.days)
	for date, day := range a.days {
		if day.Domains == nil {
			day.Domains = make(map[string]int64)
		}
		day.Date = date
	}
	a.pruneLocked()
	return a
}

// RecordDomain counts one connection to host against today's bucket.
func (a *Aggregator) RecordDomain(host string) {
	if host == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	day := a.dayLocked(a.clock().Format(dayFormat))
	day.Total++
	day.Domains[host]++
}

// Today returns a copy of the current day's bucket, materializing an empty
// one if no connection has been counted yet.
func (a *Aggregator) Today() DayStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dayLocked(a.clock().Format(dayFormat)).clone()
}

// Day returns the bucket for date (dayFormat) and whether it exists.
func (a *Aggregator) Day(date string) (DayStats, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	day, ok := a.days[date]
	if !ok {
		return DayStats{}, false
	}
	return day.clone(), true
}

// History returns all retained buckets ordered by date ascending. Reads force
// a flush first so the on-disk document never lags a served snapshot.
func (a *Aggregator) History() []DayStats {
	if err := a.Flush(); err != nil {
		a.logger.Warnw("Failed to flush statistics before read", "error", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]DayStats, 0, len(a.days))
	for _, day := range a.days {
		out = append(out, day.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Flush prunes buckets beyond the retention window and writes the document.
func (a *Aggregator) Flush() error {
	a.mu.Lock()
	a.pruneLocked()
	snapshot := make(map[string]DayStats, len(a.days))
	for date, day := range a.days {
		snapshot[date] = day.clone()
	}
	a.mu.Unlock()

	return a.store.Save(snapshot)
}

// Run flushes on the given interval until ctx is cancelled, then once more
// on the way out.
func (a *Aggregator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := a.Flush(); err != nil {
				a.logger.Warnw("Final statistics flush failed", "error", err)
			}
			return
		case <-ticker.C:
			if err := a.Flush(); err != nil {
				a.logger.Warnw("Periodic statistics flush failed", "error", err)
			}
		}
	}
}

func (a *Aggregator) dayLocked(date string) *DayStats {
	day, ok := a.days[date]
	if !ok {
		day = &DayStats{Date: date, Domains: make(map[string]int64)}
		a.days[date] = day
	}
	return day
}

func (a *Aggregator) pruneLocked() {
	if a.retentionDays <= 0 {
		return
	}
	cutoff := a.clock().AddDate(0, 0, -a.retentionDays).Format(dayFormat)
	for date := range a.days {
		if date < cutoff {
			delete(a.days, date)
		}
	}
}
