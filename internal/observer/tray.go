//go:build !nogui && !headless

package observer

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"fyne.io/systray"
	"go.uber.org/zap"

	apprt "clashflux-go/internal/runtime"
)

type groupEntry struct {
	item  *systray.MenuItem
	nodes map[string]*systray.MenuItem
}

// Coordinator is the system tray application.
type Coordinator struct {
	controller Controller
	notifier   *Notifier
	logger     *zap.SugaredLogger
	listenAddr string
	interval   time.Duration
	shutdown   func()

	statusItem   *systray.MenuItem
	modeRule     *systray.MenuItem
	modeGlobal   *systray.MenuItem
	modeDirect   *systray.MenuItem
	tunItem      *systray.MenuItem
	sysProxyItem *systray.MenuItem
	groupsMenu   *systray.MenuItem

	groups map[string]*groupEntry

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates the tray coordinator. listenAddr is the UI bridge bind address
// the dashboard entry opens; shutdown is invoked when the user quits.
func New(controller Controller, listenAddr string, interval time.Duration, logger *zap.SugaredLogger, shutdown func()) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		controller: controller,
		notifier:   NewNotifier(logger),
		logger:     logger,
		listenAddr: listenAddr,
		interval:   interval,
		shutdown:   shutdown,
		groups:     make(map[string]*groupEntry),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run starts the tray. Blocking; must be called from the main goroutine on
// platforms where the event loop requires it.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("Starting system tray")

	go func() {
		<-ctx.Done()
		c.cancel()
		systray.Quit()
	}()

	systray.Run(c.onReady, c.onExit)
	return ctx.Err()
}

func (c *Coordinator) onReady() {
	systray.SetTitle("ClashFlux")
	systray.SetTooltip("ClashFlux proxy manager")

	c.statusItem = systray.AddMenuItem("Status: starting...", "Kernel state")
	c.statusItem.Disable()

	systray.AddSeparator()

	modeMenu := systray.AddMenuItem("Outbound Mode", "Kernel routing mode")
	c.modeRule = modeMenu.AddSubMenuItemCheckbox("Rule", "Route by rules", false)
	c.modeGlobal = modeMenu.AddSubMenuItemCheckbox("Global", "Route everything through the proxy", false)
	c.modeDirect = modeMenu.AddSubMenuItemCheckbox("Direct", "Bypass the proxy", false)

	c.tunItem = systray.AddMenuItemCheckbox("TUN Mode", "Kernel TUN stack", false)
	c.sysProxyItem = systray.AddMenuItemCheckbox("System Proxy", "Route system traffic through the kernel", false)

	systray.AddSeparator()

	c.groupsMenu = systray.AddMenuItem("Proxy Groups", "Select proxies per group")

	systray.AddSeparator()

	dashboardItem := systray.AddMenuItem("Open Dashboard", "Open the web dashboard")
	restartItem := systray.AddMenuItem("Restart Kernel", "Restart the proxy kernel")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit ClashFlux")

	go func() {
		for {
			select {
			case <-c.modeRule.ClickedCh:
				go c.setMode("rule")
			case <-c.modeGlobal.ClickedCh:
				go c.setMode("global")
			case <-c.modeDirect.ClickedCh:
				go c.setMode("direct")
			case <-c.tunItem.ClickedCh:
				go c.toggleTun()
			case <-c.sysProxyItem.ClickedCh:
				go c.toggleSystemProxy()
			case <-dashboardItem.ClickedCh:
				go c.openDashboard()
			case <-restartItem.ClickedCh:
				go func() {
					if err := c.controller.RestartKernel(); err != nil {
						c.logger.Errorw("Kernel restart failed", "error", err)
					}
				}()
			case <-quitItem.ClickedCh:
				c.logger.Info("Quit selected from tray menu")
				if c.shutdown != nil {
					c.shutdown()
				}
				systray.Quit()
				return
			case <-c.ctx.Done():
				return
			}
		}
	}()

	go c.watch()
	c.refresh()
}

func (c *Coordinator) onExit() {
	c.cancel()
	c.logger.Info("System tray stopped")
}

// watch refreshes the menu on the poll interval and on runtime events, and
// raises desktop notifications on connectivity transitions.
func (c *Coordinator) watch() {
	events := c.controller.Bus().Subscribe()
	defer c.controller.Bus().Unsubscribe(events)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.refresh()
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case apprt.EventKernelConnected:
				c.notifier.ConnectionChanged(true)
			case apprt.EventKernelDisconnected:
				c.notifier.ConnectionChanged(false)
			}
			c.refresh()
		}
	}
}

// refresh re-fetches kernel state and redraws every menu item. On fetch
// failure the group menu is disabled but the static controls stay usable.
func (c *Coordinator) refresh() {
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()

	st := c.controller.Status(ctx)
	if st.Connected {
		if st.Version != "" {
			c.statusItem.SetTitle(fmt.Sprintf("Status: connected (%s)", st.Version))
		} else {
			c.statusItem.SetTitle("Status: connected")
		}
	} else {
		c.statusItem.SetTitle("Status: disconnected")
	}

	setChecked(c.modeRule, st.Mode == "rule")
	setChecked(c.modeGlobal, st.Mode == "global")
	setChecked(c.modeDirect, st.Mode == "direct")
	setChecked(c.tunItem, st.TunEnabled)
	setChecked(c.sysProxyItem, st.SystemProxy)

	proxies, err := c.controller.Proxies(ctx)
	if err != nil {
		c.groupsMenu.Disable()
		return
	}
	c.groupsMenu.Enable()
	c.renderGroups(SelectorGroups(proxies))
}

func (c *Coordinator) renderGroups(groups []Group) {
	seen := make(map[string]bool, len(groups))
	for _, g := range groups {
		seen[g.Name] = true
		entry, ok := c.groups[g.Name]
		if !ok {
			entry = &groupEntry{
				item:  c.groupsMenu.AddSubMenuItem(g.Name, "Proxy group"),
				nodes: make(map[string]*systray.MenuItem),
			}
			c.groups[g.Name] = entry
		}
		entry.item.Show()

		nodesSeen := make(map[string]bool, len(g.All))
		for _, node := range g.All {
			nodesSeen[node] = true
			item, ok := entry.nodes[node]
			if !ok {
				item = entry.item.AddSubMenuItemCheckbox(node, "", false)
				entry.nodes[node] = item
				go c.watchNodeClicks(g.Name, node, item)
			}
			item.Show()
			setChecked(item, node == g.Now)
		}
		for name, item := range entry.nodes {
			if !nodesSeen[name] {
				item.Hide()
			}
		}
	}
	for name, entry := range c.groups {
		if !seen[name] {
			entry.item.Hide()
		}
	}
}

func (c *Coordinator) watchNodeClicks(group, node string, item *systray.MenuItem) {
	for {
		select {
		case <-item.ClickedCh:
			ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
			if err := c.controller.SelectProxy(ctx, group, node); err != nil {
				c.logger.Errorw("Proxy selection failed",
					"group", group, "proxy", node, "error", err)
			}
			cancel()
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Coordinator) setMode(mode string) {
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	if err := c.controller.SetMode(ctx, mode); err != nil {
		c.logger.Errorw("Mode change failed", "mode", mode, "error", err)
	}
}

func (c *Coordinator) toggleTun() {
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	if err := c.controller.SetTun(ctx, !c.tunItem.Checked()); err != nil {
		c.logger.Errorw("TUN toggle failed", "error", err)
	}
}

func (c *Coordinator) toggleSystemProxy() {
	if err := c.controller.SetSystemProxy(!c.sysProxyItem.Checked()); err != nil {
		c.logger.Errorw("System proxy toggle failed", "error", err)
	}
}

func (c *Coordinator) openDashboard() {
	url := "http://" + c.listenAddr
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		c.logger.Errorw("Failed to open dashboard", "url", url, "error", err)
	}
}

func setChecked(item *systray.MenuItem, checked bool) {
	if checked {
		item.Check()
	} else {
		item.Uncheck()
	}
}
