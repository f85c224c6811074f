package stats

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAggregator(t *testing.T, retentionDays int) (*Aggregator, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stats.json")
	a := NewAggregator(NewDocumentStore(path, zap.NewNop().Sugar()), retentionDays, zap.NewNop().Sugar())
	a.clock = func() time.Time {
		return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	}
	return a, path
}

func TestRecordDomainCountsGrowMonotonically(t *testing.T) {
	a, _ := newTestAggregator(t, 90)

	a.RecordDomain("example.com")
	a.RecordDomain("example.com")
	a.RecordDomain("dns.google")

	day := a.Today()
	assert.Equal(t, int64(3), day.Total)
	assert.Equal(t, int64(2), day.Domains["example.com"])
	assert.Equal(t, int64(1), day.Domains["dns.google"])

	a.RecordDomain("example.com")
	assert.Equal(t, int64(3), a.Today().Domains["example.com"])
	assert.Equal(t, int64(4), a.Today().Total)
}

func TestTodayMaterializesEmptyBucket(t *testing.T) {
	a, _ := newTestAggregator(t, 90)

	day := a.Today()
	assert.Equal(t, "2026-09-01", day.Date)
	assert.Zero(t, day.Total)
	assert.Empty(t, day.Domains)
}

func TestEmptyDomainIsIgnored(t *testing.T) {
	a, _ := newTestAggregator(t, 90)

	a.RecordDomain("")
	assert.Zero(t, a.Today().Total)
}

func TestStatsRoundTripThroughDisk(t *testing.T) {
	a, path := newTestAggregator(t, 90)

	a.RecordDomain("example.com")
	a.RecordDomain("cdn.example.net")
	require.NoError(t, a.Flush())

	reloaded := NewAggregator(NewDocumentStore(path, zap.NewNop().Sugar()), 90, zap.NewNop().Sugar())
	reloaded.clock = a.clock

	day := reloaded.Today()
	assert.Equal(t, int64(2), day.Total)
	assert.Equal(t, int64(1), day.Domains["example.com"])

	// Counts keep growing on top of the reloaded state.
	reloaded.RecordDomain("example.com")
	assert.Equal(t, int64(2), reloaded.Today().Domains["example.com"])
}

func TestCorruptStoreStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	a := NewAggregator(NewDocumentStore(path, zap.NewNop().Sugar()), 90, zap.NewNop().Sugar())
	assert.Empty(t, a.History())
}

func TestRetentionPrunesOldBuckets(t *testing.T) {
	a, _ := newTestAggregator(t, 90)

	a.mu.Lock()
	a.days["2026-05-01"] = &DayStats{Date: "2026-05-01", Total: 7, Domains: map[string]int64{"old.example": 7}}
	a.days["2026-08-31"] = &DayStats{Date: "2026-08-31", Total: 2, Domains: map[string]int64{"recent.example": 2}}
	a.mu.Unlock()
	a.RecordDomain("example.com")

	history := a.History()
	require.Len(t, history, 2)
	assert.Equal(t, "2026-08-31", history[0].Date)
	assert.Equal(t, "2026-09-01", history[1].Date)
}

func TestLoadPrunesExpiredBuckets(t *testing.T) {
	// Buckets past the retention window must disappear at load, not linger
	// until the first flush.
	path := filepath.Join(t.TempDir(), "stats.json")
	today := time.Now().UTC().Format(dayFormat)
	doc := map[string]DayStats{
		"2000-01-01": {Date: "2000-01-01", Total: 9, Domains: map[string]int64{"ancient.example": 9}},
		today:        {Date: today, Total: 1, Domains: map[string]int64{"recent.example": 1}},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	a := NewAggregator(NewDocumentStore(path, zap.NewNop().Sugar()), 90, zap.NewNop().Sugar())

	_, ok := a.Day("2000-01-01")
	assert.False(t, ok, "expired bucket must be pruned at load")
	day, ok := a.Day(today)
	require.True(t, ok)
	assert.Equal(t, int64(1), day.Total)
}

func TestHistoryFlushesToDisk(t *testing.T) {
	a, path := newTestAggregator(t, 90)

	a.RecordDomain("example.com")
	_ = a.History()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]DayStats
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, int64(1), doc["2026-09-01"].Total)
}
