package stats

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// trafficWindow is how far back traffic samples are retained.
const trafficWindow = 24 * time.Hour

// TrafficSample is one windowed traffic delta.
type TrafficSample struct {
	Time  time.Time `json:"time"`
	Label string    `json:"label"`
	Bytes int64     `json:"bytes"`
}

// TotalsSource yields the kernel's cumulative transferred byte count
// (upload plus download) as reported by its connections endpoint.
type TotalsSource interface {
	Totals(ctx context.Context) (int64, error)
}

// Sampler polls cumulative kernel totals on a fixed interval and records the
// per-interval delta. Deltas are never negative: a total below the previous
// baseline means the kernel restarted, so the sample is zero and the baseline
// resyncs to the new total.
type Sampler struct {
	source TotalsSource
	store  *DocumentStore
	logger *zap.SugaredLogger
	clock  func() time.Time

	mu        sync.Mutex
	samples   []TrafficSample
	lastTotal int64
	baselined bool
}

// NewSampler creates a sampler backed by store, loading any persisted window.
func NewSampler(source TotalsSource, store *DocumentStore, logger *zap.SugaredLogger) *Sampler {
	s := &Sampler{
		source: source,
		store:  store,
		logger: logger,
		clock:  time.Now,
	}
	s.store.Load(&s.samples)
	return s
}

// Tick takes one sample. Source failures skip the sample entirely; the
// baseline survives so a transient control-plane outage does not fabricate
// a giant delta afterwards.
func (s *Sampler) Tick(ctx context.Context) {
	total, err := s.source.Totals(ctx)
	if err != nil {
		s.logger.Debugw("Traffic totals unavailable, skipping sample", "error", err)
		return
	}

	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	var delta int64
	switch {
	case !s.baselined:
		s.baselined = true
	case total < s.lastTotal:
		// Kernel counter reset.
	default:
		delta = total - s.lastTotal
	}
	s.lastTotal = total

	s.samples = append(s.samples, TrafficSample{
		Time:  now,
		Label: now.Format("15:04"),
		Bytes: delta,
	})
	s.pruneLocked(now)
}

// Samples returns the retained window oldest first, flushing beforehand.
func (s *Sampler) Samples() []TrafficSample {
	if err := s.Flush(); err != nil {
		s.logger.Warnw("Failed to flush traffic samples before read", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TrafficSample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Flush prunes expired samples and writes the document.
func (s *Sampler) Flush() error {
	s.mu.Lock()
	s.pruneLocked(s.clock())
	snapshot := make([]TrafficSample, len(s.samples))
	copy(snapshot, s.samples)
	s.mu.Unlock()

	return s.store.Save(snapshot)
}

// Run samples and flushes on the given interval until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := s.Flush(); err != nil {
				s.logger.Warnw("Final traffic flush failed", "error", err)
			}
			return
		case <-ticker.C:
			s.Tick(ctx)
			if err := s.Flush(); err != nil {
				s.logger.Warnw("Periodic traffic flush failed", "error", err)
			}
		}
	}
}

func (s *Sampler) pruneLocked(now time.Time) {
	cutoff := now.Add(-trafficWindow)
	idx := 0
	for idx < len(s.samples) && s.samples[idx].Time.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		s.samples = append([]TrafficSample(nil), s.samples[idx:]...)
	}
}
