// Package kernel supervises the external proxy-core subprocess: working
// directory and bootstrap config setup, spawn, stop/restart, and the cached
// auth token all dependents authenticate with.
package kernel

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"

	"clashflux-go/internal/config"
)

const stopGracePeriod = 3 * time.Second

// SystemProxyDisabler turns the OS-wide proxy off. The supervisor disables
// it best-effort on every stop: a system proxy pointing at a dead listener
// would cut the machine off the network.
type SystemProxyDisabler interface {
	Disable() error
}

// RuntimeStats is a point-in-time resource snapshot of the kernel process.
type RuntimeStats struct {
	PID        int     `json:"pid"`
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
}

// Supervisor owns the kernel subprocess lifecycle. Exactly one live process
// at a time; callers must Stop before Start (Restart does both).
type Supervisor struct {
	cfg      *config.Config
	ctx      *Context
	sysproxy SystemProxyDisabler
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	cmd     *exec.Cmd
	running bool
	waitCh  chan struct{}
}

// NewSupervisor creates a supervisor. sysproxy may be nil when the platform
// has no system-proxy integration.
func NewSupervisor(cfg *config.Config, kctx *Context, sysproxy SystemProxyDisabler, logger *zap.SugaredLogger) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		ctx:      kctx,
		sysproxy: sysproxy,
		logger:   logger,
	}
}

// Start ensures the working directory and bootstrap config exist, re-derives
// the auth token, and spawns the kernel bound to the data directory. It
// returns once the spawn has been issued; readiness is observed only through
// health polling. A spawn failure is logged and swallowed: the process simply
// never reports liveness. Bootstrap config creation failure is returned, as
// nothing can work without it.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create kernel working directory: %w", err)
	}
	if err := EnsureBootstrapConfig(s.cfg.BootstrapConfigPath(), config.FixedBlock); err != nil {
		return err
	}

	// Token must be re-derived before spawn so concurrent dependents never
	// observe a started kernel with a stale credential.
	token := ReadSecret(s.cfg.BootstrapConfigPath())
	s.ctx.setToken(token)

	cmd := exec.Command(s.cfg.KernelBin, "-d", s.cfg.DataDir)
	cmd.Dir = s.cfg.DataDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		// Surfaced only as "no liveness" to health polling.
		s.logger.Errorw("Failed to spawn kernel binary",
			"binary", s.cfg.KernelBin, "error", err)
		s.cmd = nil
		s.running = false
		return nil
	}

	s.cmd = cmd
	s.running = true
	s.waitCh = make(chan struct{})
	s.logger.Infow("Kernel started", "pid", cmd.Process.Pid, "dir", s.cfg.DataDir)

	go s.reap(cmd, s.waitCh)
	return nil
}

// reap waits for the process so it never becomes a zombie and records exit.
func (s *Supervisor) reap(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()
	close(done)

	s.mu.Lock()
	if s.cmd == cmd {
		s.running = false
		s.cmd = nil
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warnw("Kernel exited", "error", err)
	} else {
		s.logger.Info("Kernel exited normally")
	}
}

// Stop disables the system proxy best-effort and terminates the kernel if
// one is tracked. Safe to call when nothing is running.
func (s *Supervisor) Stop() {
	if s.sysproxy != nil {
		if err := s.sysproxy.Disable(); err != nil {
			s.logger.Warnw("Failed to disable system proxy", "error", err)
		}
	}

	s.mu.Lock()
	cmd := s.cmd
	waitCh := s.waitCh
	s.cmd = nil
	s.running = false
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}

	pid := cmd.Process.Pid
	s.logger.Infow("Stopping kernel", "pid", pid)

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		// Already gone or signalling unsupported; fall through to Kill.
		s.logger.Debugw("SIGINT failed, killing", "pid", pid, "error", err)
		_ = cmd.Process.Kill()
		return
	}

	select {
	case <-waitCh:
	case <-time.After(stopGracePeriod):
		s.logger.Warnw("Kernel did not exit in time, killing", "pid", pid)
		_ = cmd.Process.Kill()
		<-waitCh
	}
}

// Restart stops the kernel, waits the settle delay for the OS to reclaim the
// controller port, and starts it again. The token cache is refreshed
// implicitly by Start.
func (s *Supervisor) Restart() error {
	s.Stop()
	time.Sleep(s.cfg.RestartDelay)
	return s.Start()
}

// Alive reports whether a spawned kernel process is still tracked. This is
// process-level liveness only; control-plane readiness is a separate
// /version poll.
func (s *Supervisor) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// PID returns the kernel's process id, or 0 when not running.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Stats samples the kernel process's resource usage, for the status surface.
func (s *Supervisor) Stats() (*RuntimeStats, error) {
	pid := s.PID()
	if pid == 0 {
		return nil, fmt.Errorf("kernel not running")
	}

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect kernel process: %w", err)
	}

	stats := &RuntimeStats{PID: pid}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		stats.RSSBytes = mem.RSS
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	return stats, nil
}
