// Package profile manages remote kernel configuration profiles: the
// persisted profile list, subscription downloads, body sanitization and
// activation against the running kernel.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"clashflux-go/internal/config"
)

const downloadUserAgent = "clash-verge/1.0"

var (
	// ErrNotFound is returned for an unknown profile id.
	ErrNotFound = errors.New("profile not found")
	// ErrNotDownloaded is returned when activation is attempted before the
	// profile body has ever been fetched.
	ErrNotDownloaded = errors.New("profile has not been downloaded yet")
)

// Subscription carries provider quota data parsed from the
// subscription-userinfo response header.
type Subscription struct {
	Upload   int64     `json:"upload"`
	Download int64     `json:"download"`
	Total    int64     `json:"total"`
	Expire   time.Time `json:"expire,omitempty"`
}

// Profile is one managed remote configuration.
type Profile struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	URL          string        `json:"url"`
	Path         string        `json:"path,omitempty"`
	UpdatedAt    time.Time     `json:"updatedAt,omitempty"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

// ActiveMarker persists which profile the kernel currently runs.
type ActiveMarker interface {
	SetActiveProfile(id string) error
	GetActiveProfile() (string, error)
	ClearActiveProfile() error
}

// ConfigSwitcher points the running kernel at a new configuration file.
type ConfigSwitcher interface {
	SwitchConfig(ctx context.Context, path string) error
}

// Manager owns the profile list and its on-disk documents.
type Manager struct {
	cfg        *config.Config
	marker     ActiveMarker
	httpClient *http.Client
	logger     *zap.SugaredLogger
	clock      func() time.Time

	mu       sync.Mutex
	profiles []*Profile
}

// NewManager creates the manager and loads the persisted profile list. A
// missing or corrupt list starts empty.
func NewManager(cfg *config.Config, marker ActiveMarker, logger *zap.SugaredLogger) *Manager {
	m := &Manager{
		cfg:        cfg,
		marker:     marker,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		clock:      time.Now,
	}
	m.load()
	return m
}

// List returns copies of all profiles in insertion order.
func (m *Manager) List() []Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, *p)
	}
	return out
}

// Get returns the profile with the given id.
func (m *Manager) Get(id string) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.findLocked(id)
	if p == nil {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *p, nil
}

// Add registers a new remote profile and persists the list. The body is not
// fetched until Update is called.
func (m *Manager) Add(name, url string) (Profile, error) {
	p := &Profile{
		ID:   uuid.NewString(),
		Name: name,
		URL:  url,
	}

	m.mu.Lock()
	m.profiles = append(m.profiles, p)
	err := m.persistLocked()
	out := *p
	m.mu.Unlock()

	if err != nil {
		return Profile{}, err
	}
	m.logger.Infow("Profile added", "id", out.ID, "name", out.Name)
	return out, nil
}

// Update downloads the profile body, sanitizes it and writes the per-profile
// document. Provider quota headers are captured when present.
func (m *Manager) Update(ctx context.Context, id string) (Profile, error) {
	m.mu.Lock()
	p := m.findLocked(id)
	if p == nil {
		m.mu.Unlock()
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	url := p.URL
	m.mu.Unlock()

	body, sub, err := m.download(ctx, url)
	if err != nil {
		return Profile{}, err
	}

	path := m.cfg.ProfilePath(id)
	if err := os.WriteFile(path, Sanitize(body), 0o644); err != nil {
		return Profile{}, fmt.Errorf("failed to write profile document: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p = m.findLocked(id)
	if p == nil {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	p.Path = path
	p.UpdatedAt = m.clock()
	if sub != nil {
		p.Subscription = sub
	}
	if err := m.persistLocked(); err != nil {
		return Profile{}, err
	}
	m.logger.Infow("Profile updated", "id", id, "path", path)
	return *p, nil
}

// Activate points the kernel at the profile's document and persists the
// active marker. The profile must have been downloaded at least once.
func (m *Manager) Activate(ctx context.Context, id string, switcher ConfigSwitcher) error {
	m.mu.Lock()
	p := m.findLocked(id)
	if p == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	path := p.Path
	m.mu.Unlock()

	if path == "" {
		return fmt.Errorf("%w: %s", ErrNotDownloaded, id)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrNotDownloaded, id)
	}

	if err := switcher.SwitchConfig(ctx, path); err != nil {
		return fmt.Errorf("failed to switch kernel configuration: %w", err)
	}
	if err := m.marker.SetActiveProfile(id); err != nil {
		return fmt.Errorf("failed to persist active profile: %w", err)
	}
	m.logger.Infow("Profile activated", "id", id)
	return nil
}

// Active returns the persisted active profile id, or "" when none is set.
func (m *Manager) Active() string {
	id, err := m.marker.GetActiveProfile()
	if err != nil {
		m.logger.Warnw("Failed to read active profile marker", "error", err)
		return ""
	}
	return id
}

// Delete removes the profile, its document and, when it was active, the
// active marker.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	idx := -1
	for i, p := range m.profiles {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	path := m.profiles[idx].Path
	m.profiles = append(m.profiles[:idx], m.profiles[idx+1:]...)
	err := m.persistLocked()
	m.mu.Unlock()
	if err != nil {
		return err
	}

	if path != "" {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			m.logger.Warnw("Failed to remove profile document", "id", id, "error", rmErr)
		}
	}
	if m.Active() == id {
		if mErr := m.marker.ClearActiveProfile(); mErr != nil {
			m.logger.Warnw("Failed to clear active profile marker", "id", id, "error", mErr)
		}
	}
	m.logger.Infow("Profile deleted", "id", id)
	return nil
}

func (m *Manager) download(ctx context.Context, url string) ([]byte, *Subscription, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build profile request: %w", err)
	}
	req.Header.Set("User-Agent", downloadUserAgent)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("profile download returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read profile body: %w", err)
	}

	return body, parseSubscriptionInfo(resp.Header.Get("subscription-userinfo")), nil
}

// parseSubscriptionInfo parses the provider quota header, e.g.
// "upload=1024; download=2048; total=1073741824; expire=1735689600".
func parseSubscriptionInfo(header string) *Subscription {
	if header == "" {
		return nil
	}
	sub := &Subscription{}
	found := false
	for _, part := range strings.Split(header, ";") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(kv[1]), 10, 64)
		if err != nil {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "upload":
			sub.Upload = n
		case "download":
			sub.Download = n
		case "total":
			sub.Total = n
		case "expire":
			if n > 0 {
				sub.Expire = time.Unix(n, 0).UTC()
			}
		default:
			continue
		}
		found = true
	}
	if !found {
		return nil
	}
	return sub
}

func (m *Manager) findLocked(id string) *Profile {
	for _, p := range m.profiles {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (m *Manager) load() {
	data, err := os.ReadFile(m.cfg.ProfilesPath())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			m.logger.Warnw("Failed to read profile list, starting empty", "error", err)
		}
		return
	}
	if err := json.Unmarshal(data, &m.profiles); err != nil {
		m.logger.Warnw("Corrupt profile list, starting empty", "error", err)
		m.profiles = nil
	}
}

func (m *Manager) persistLocked() error {
	data, err := json.MarshalIndent(m.profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode profile list: %w", err)
	}
	tmp := m.cfg.ProfilesPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write profile list: %w", err)
	}
	if err := os.Rename(tmp, m.cfg.ProfilesPath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace profile list: %w", err)
	}
	return nil
}
