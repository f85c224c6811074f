// Package runtime wires the application together: kernel supervision, the
// control client, stream consumers, statistics, profiles and the event bus
// every observer surface hangs off.
package runtime

import (
	"context"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"clashflux-go/internal/config"
	"clashflux-go/internal/control"
	"clashflux-go/internal/kernel"
	"clashflux-go/internal/profile"
	"clashflux-go/internal/stats"
	"clashflux-go/internal/storage"
	"clashflux-go/internal/stream"
	"clashflux-go/internal/sysproxy"
)

// Status is the aggregate state snapshot served to both observer surfaces.
type Status struct {
	Connected     bool                 `json:"connected"`
	Version       string               `json:"version,omitempty"`
	Mode          string               `json:"mode,omitempty"`
	TunEnabled    bool                 `json:"tun_enabled"`
	SystemProxy   bool                 `json:"system_proxy"`
	MixedPort     int                  `json:"mixed_port"`
	ActiveProfile string               `json:"active_profile,omitempty"`
	Kernel        *kernel.RuntimeStats `json:"kernel,omitempty"`
}

// connectionTotals adapts the control client's connections snapshot into the
// cumulative byte counter the traffic sampler polls.
type connectionTotals struct {
	client *control.Client
}

func (c connectionTotals) Totals(ctx context.Context) (int64, error) {
	info, err := c.client.GetConnections(ctx)
	if err != nil {
		return 0, err
	}
	return info.UploadTotal + info.DownloadTotal, nil
}

// Runtime owns every long-lived component and coordinates state changes.
type Runtime struct {
	cfg    *config.Config
	logger *zap.SugaredLogger

	kctx       *kernel.Context
	supervisor *kernel.Supervisor
	client     *control.Client
	store      *storage.BoltDB
	sysProxy   *sysproxy.Manager
	profiles   *profile.Manager
	aggregator *stats.Aggregator
	sampler    *stats.Sampler
	logStream  *stream.LogStream
	traffic    *stream.TrafficStream
	bus        *Bus

	mu        sync.Mutex
	connected bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New assembles the runtime from configuration. Nothing is spawned yet;
// call Start.
func New(cfg *config.Config, logger *zap.SugaredLogger) (*Runtime, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := storage.NewBoltDB(cfg.StateDBPath(), logger)
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		cfg:      cfg,
		logger:   logger,
		kctx:     kernel.NewContext(),
		store:    store,
		sysProxy: sysproxy.NewManager(logger),
		bus:      NewBus(logger),
	}

	r.supervisor = kernel.NewSupervisor(cfg, r.kctx, r.sysProxy, logger)
	r.client = control.NewClient(cfg.ControllerBaseURL(), r.kctx, logger)
	r.profiles = profile.NewManager(cfg, store, logger)

	r.aggregator = stats.NewAggregator(
		stats.NewDocumentStore(cfg.StatsPath(), logger), cfg.Stats.RetentionDays, logger)
	r.sampler = stats.NewSampler(
		connectionTotals{client: r.client},
		stats.NewDocumentStore(cfg.TrafficPath(), logger), logger)

	r.logStream = stream.NewLogStream(
		func() string {
			return r.client.StreamURL("/logs", url.Values{"level": {"info"}})
		},
		cfg.Stats.RingCapacity,
		stream.NewRecorder(cfg.KernelLogsDir(), logger),
		r.aggregator,
		logger,
	)
	r.traffic = stream.NewTrafficStream(
		func() string { return r.client.StreamURL("/traffic", nil) },
		logger,
	)

	return r, nil
}

// Start spawns the kernel and all background loops. It returns immediately;
// readiness is observable through Status and the event bus.
func (r *Runtime) Start() error {
	if err := r.supervisor.Start(); err != nil {
		return err
	}

	// Re-apply the persisted system proxy choice across app restarts.
	if enabled, err := r.store.GetSystemProxyEnabled(); err == nil && enabled {
		if err := r.sysProxy.Enable(r.cfg.MixedPort); err != nil {
			r.logger.Warnw("Failed to re-enable system proxy", "error", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.runLoop(ctx, func(c context.Context) { r.logStream.Run(c) })
	r.runLoop(ctx, func(c context.Context) { r.traffic.Run(c) })
	r.runLoop(ctx, func(c context.Context) { r.aggregator.Run(c, r.cfg.Stats.FlushInterval) })
	r.runLoop(ctx, func(c context.Context) { r.sampler.Run(c, r.cfg.Stats.SampleInterval) })
	r.runLoop(ctx, r.healthLoop)

	return nil
}

func (r *Runtime) runLoop(ctx context.Context, fn func(context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn(ctx)
	}()
}

// Close stops every loop, the kernel, and the state store.
func (r *Runtime) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	r.logStream.Close()
	r.traffic.Close()
	r.wg.Wait()

	r.supervisor.Stop()
	if err := r.store.Close(); err != nil {
		r.logger.Warnw("Failed to close state store", "error", err)
	}
}

// healthLoop polls the control plane and publishes connectivity transitions.
func (r *Runtime) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.TrayPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := r.client.Version(ctx)
			r.recordHealth(err == nil)
		}
	}
}

func (r *Runtime) recordHealth(up bool) {
	r.mu.Lock()
	changed := up != r.connected
	r.connected = up
	r.mu.Unlock()

	if !changed {
		return
	}
	if up {
		r.logger.Info("Kernel control plane reachable")
		r.bus.Publish(Event{Type: EventKernelConnected})
	} else {
		r.logger.Warn("Kernel control plane unreachable")
		r.bus.Publish(Event{Type: EventKernelDisconnected})
	}
	r.bus.Publish(Event{Type: EventStateChanged})
}

// settleAndNotify waits the settle delay and then tells every observer
// surface to re-fetch. The delay gives the kernel time to actually apply the
// change before anyone reads it back.
func (r *Runtime) settleAndNotify() {
	delay := r.cfg.SettleDelay
	go func() {
		time.Sleep(delay)
		r.bus.Publish(Event{Type: EventStateChanged})
	}()
}

// Status assembles the aggregate state snapshot. Control-plane reads are
// best-effort: an unreachable kernel yields a disconnected snapshot, not an
// error.
func (r *Runtime) Status(ctx context.Context) *Status {
	r.mu.Lock()
	connected := r.connected
	r.mu.Unlock()

	st := &Status{
		Connected:     connected,
		MixedPort:     r.cfg.MixedPort,
		ActiveProfile: r.profiles.Active(),
	}
	if enabled, err := r.store.GetSystemProxyEnabled(); err == nil {
		st.SystemProxy = enabled
	}
	if ks, err := r.supervisor.Stats(); err == nil {
		st.Kernel = ks
	}
	if !connected {
		return st
	}

	if v, err := r.client.Version(ctx); err == nil {
		st.Version = v.Version
	}
	if cc, err := r.client.GetConfigs(ctx); err == nil {
		st.Mode = cc.Mode
		st.TunEnabled = cc.Tun != nil && cc.Tun.Enable
	}
	return st
}

// SetMode switches the kernel's routing mode (rule, global or direct).
func (r *Runtime) SetMode(ctx context.Context, mode string) error {
	if err := r.client.PatchConfigs(ctx, control.ConfigPatch{Mode: &mode}); err != nil {
		return err
	}
	r.logger.Infow("Routing mode changed", "mode", mode)
	r.settleAndNotify()
	return nil
}

// SetTun toggles the kernel's TUN stack.
func (r *Runtime) SetTun(ctx context.Context, enable bool) error {
	patch := control.ConfigPatch{Tun: &control.TunConfig{Enable: enable}}
	if err := r.client.PatchConfigs(ctx, patch); err != nil {
		return err
	}
	r.logger.Infow("TUN stack toggled", "enable", enable)
	r.settleAndNotify()
	return nil
}

// SetSystemProxy toggles the OS proxy and persists the choice.
func (r *Runtime) SetSystemProxy(enable bool) error {
	var err error
	if enable {
		err = r.sysProxy.Enable(r.cfg.MixedPort)
	} else {
		err = r.sysProxy.Disable()
	}
	if err != nil {
		return err
	}
	if err := r.store.SetSystemProxyEnabled(enable); err != nil {
		r.logger.Warnw("Failed to persist system proxy flag", "error", err)
	}
	r.settleAndNotify()
	return nil
}

// SelectProxy picks a node inside a selector group.
func (r *Runtime) SelectProxy(ctx context.Context, group, name string) error {
	if err := r.client.SelectProxy(ctx, group, name); err != nil {
		return err
	}
	r.logger.Infow("Proxy selected", "group", group, "proxy", name)
	r.settleAndNotify()
	return nil
}

// RestartKernel bounces the kernel subprocess and refreshes the token cache.
func (r *Runtime) RestartKernel() error {
	if err := r.supervisor.Restart(); err != nil {
		return err
	}
	r.settleAndNotify()
	return nil
}

// ActivateProfile points the kernel at a downloaded profile.
func (r *Runtime) ActivateProfile(ctx context.Context, id string) error {
	if err := r.profiles.Activate(ctx, id, r.client); err != nil {
		return err
	}
	r.bus.Publish(Event{Type: EventProfilesChanged})
	r.settleAndNotify()
	return nil
}

// UpdateProfile re-downloads a profile body.
func (r *Runtime) UpdateProfile(ctx context.Context, id string) (profile.Profile, error) {
	p, err := r.profiles.Update(ctx, id)
	if err != nil {
		return profile.Profile{}, err
	}
	r.bus.Publish(Event{Type: EventProfilesChanged})
	return p, nil
}

// Proxies returns the kernel's current proxy and group snapshot.
func (r *Runtime) Proxies(ctx context.Context) (map[string]control.Proxy, error) {
	return r.client.GetProxies(ctx)
}

// Connected reports the last observed control-plane health.
func (r *Runtime) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// Accessors for the observer surfaces.

func (r *Runtime) Bus() *Bus                             { return r.bus }
func (r *Runtime) Client() *control.Client               { return r.client }
func (r *Runtime) Profiles() *profile.Manager            { return r.profiles }
func (r *Runtime) Stats() *stats.Aggregator              { return r.aggregator }
func (r *Runtime) Traffic() *stream.TrafficStream        { return r.traffic }
func (r *Runtime) TrafficSamples() []stats.TrafficSample { return r.sampler.Samples() }
func (r *Runtime) Logs() *stream.LogStream               { return r.logStream }
