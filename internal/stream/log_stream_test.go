package stream

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExtractHost(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{
			"tcp with ports",
			"[TCP] 192.168.1.5:52814 --> example.com:443 match DomainSuffix",
			"example.com",
		},
		{
			"udp with ports",
			"[UDP] 10.0.0.2:5353 --> dns.google:853",
			"dns.google",
		},
		{
			"host without port",
			"[TCP] 192.168.1.5:52814 --> intranet",
			"intranet",
		},
		{
			"host followed by whitespace",
			"[UDP] 10.0.0.2:40000 --> cdn.example.net using Proxy",
			"cdn.example.net",
		},
		{"unrelated line", "dns resolved example.com to 1.2.3.4", ""},
		{"wrong bracket tag", "[DNS] query example.com", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractHost(tt.payload))
		})
	}
}

type captureDomains struct{ hosts []string }

func (c *captureDomains) RecordDomain(host string) { c.hosts = append(c.hosts, host) }

func newTestLogStream(t *testing.T) (*LogStream, *captureDomains, string) {
	t.Helper()
	dir := t.TempDir()
	domains := &captureDomains{}
	s := NewLogStream(
		func() string { return "ws://127.0.0.1:0/logs" },
		3,
		NewRecorder(dir, zap.NewNop().Sugar()),
		domains,
		zap.NewNop().Sugar(),
	)
	s.clock = func() time.Time {
		return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	}
	t.Cleanup(s.Close)
	return s, domains, dir
}

func TestHandleMessageAppendsRingAndDayFile(t *testing.T) {
	s, _, dir := newTestLogStream(t)

	s.handleMessage([]byte(`{"type":"info","payload":"proxy started"}`))

	recent := s.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, "info", recent[0].Level)
	assert.Equal(t, "proxy started", recent[0].Payload)

	data, err := os.ReadFile(filepath.Join(dir, "2026-09-01.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[info] proxy started")
}

func TestHandleMessageDiscardsMalformedFrames(t *testing.T) {
	s, domains, dir := newTestLogStream(t)

	s.handleMessage([]byte(`not json at all`))
	s.handleMessage([]byte(`{"type":`))

	assert.Empty(t, s.Recent())
	assert.Empty(t, domains.hosts)
	_, err := os.ReadFile(filepath.Join(dir, "2026-09-01.log"))
	assert.True(t, os.IsNotExist(err))
}

func TestHandleMessageForwardsConnectionHosts(t *testing.T) {
	s, domains, _ := newTestLogStream(t)

	s.handleMessage([]byte(`{"type":"info","payload":"[TCP] 10.0.0.1:1234 --> example.com:443 match"}`))
	s.handleMessage([]byte(`{"type":"info","payload":"dns resolution finished"}`))
	s.handleMessage([]byte(`{"type":"info","payload":"[UDP] 10.0.0.1:5353 --> dns.google:853"}`))

	assert.Equal(t, []string{"example.com", "dns.google"}, domains.hosts)
}

func TestSideEffectsHappenOncePerMessage(t *testing.T) {
	s, domains, dir := newTestLogStream(t)

	// Two distinct messages around a (simulated) reconnect: each is
	// processed exactly once, so the day file carries exactly two lines.
	s.handleMessage([]byte(`{"type":"info","payload":"[TCP] a:1 --> one.example:80"}`))
	s.handleMessage([]byte(`{"type":"info","payload":"[TCP] a:1 --> two.example:80"}`))

	data, err := os.ReadFile(filepath.Join(dir, "2026-09-01.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 2)
	assert.Equal(t, []string{"one.example", "two.example"}, domains.hosts)
}

func TestSubscribeReceivesEvents(t *testing.T) {
	s, _, _ := newTestLogStream(t)

	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	s.handleMessage([]byte(`{"type":"warning","payload":"hello"}`))

	select {
	case ev := <-ch:
		assert.Equal(t, "warning", ev.Level)
	case <-time.After(time.Second):
		t.Fatal("no event delivered to subscriber")
	}
}

func TestRecorderSwitchesDayFiles(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir, zap.NewNop().Sugar())
	defer r.Close()

	r.Append(time.Date(2026, 8, 31, 23, 59, 0, 0, time.UTC), "last line of august")
	r.Append(time.Date(2026, 9, 1, 0, 0, 1, 0, time.UTC), "first line of september")

	aug, err := os.ReadFile(filepath.Join(dir, "2026-08-31.log"))
	require.NoError(t, err)
	assert.Contains(t, string(aug), "last line of august")

	sep, err := os.ReadFile(filepath.Join(dir, "2026-09-01.log"))
	require.NoError(t, err)
	assert.Contains(t, string(sep), "first line of september")
	assert.NotContains(t, string(sep), "august")
}
