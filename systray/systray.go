// Package systray is the tray icon: progress display, triggers and the
// profile switcher.
package systray

import (
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"

	"github.com/getlantern/systray"

	"markestedt/tokenspark/config"
	"markestedt/tokenspark/pipeline"
)

const (
	title       = "TokenSpark"
	idleTooltip = "TokenSpark - select text and press the hotkey"
)

// Invoker starts pipeline invocations
type Invoker interface {
	Invoke(mode pipeline.Mode) bool
}

// SystrayManager manages the system tray icon and menu
type SystrayManager struct {
	webPort  int
	iconData []byte
	store    *config.Store
	invoker  Invoker
	quit     chan struct{}
	quitOnce sync.Once

	mu       sync.Mutex
	ready    bool
	status   *systray.MenuItem
	profiles map[string]*systray.MenuItem
}

// NewSystrayManager creates a new systray manager. webPort 0 hides the
// dashboard entry.
func NewSystrayManager(webPort int, iconData []byte, store *config.Store, invoker Invoker) *SystrayManager {
	return &SystrayManager{
		webPort:  webPort,
		iconData: iconData,
		store:    store,
		invoker:  invoker,
		quit:     make(chan struct{}),
		profiles: make(map[string]*systray.MenuItem),
	}
}

// Run starts the system tray (blocking call)
func (m *SystrayManager) Run() {
	systray.Run(m.onReady, m.onExit)
}

// Stop stops the system tray
func (m *SystrayManager) Stop() {
	systray.Quit()
}

// WaitForQuit returns a channel that will be closed when user clicks Quit
func (m *SystrayManager) WaitForQuit() <-chan struct{} {
	return m.quit
}

// Show implements pipeline.Progress
func (m *SystrayManager) Show(message string) {
	m.setStatus(message)
}

// Update implements pipeline.Progress
func (m *SystrayManager) Update(message string) {
	m.setStatus(message)
}

// Hide implements pipeline.Progress
func (m *SystrayManager) Hide() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return
	}
	systray.SetTitle(title)
	systray.SetTooltip(idleTooltip)
	m.status.SetTitle("Ready")
}

func (m *SystrayManager) setStatus(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return
	}
	systray.SetTitle(title + ": " + message)
	systray.SetTooltip(message)
	m.status.SetTitle(message)
}

// onReady is called when the systray is ready
func (m *SystrayManager) onReady() {
	if len(m.iconData) > 0 {
		systray.SetIcon(m.iconData)
	}

	systray.SetTitle(title)
	systray.SetTooltip(idleTooltip)

	status := systray.AddMenuItem("Ready", "Current status")
	status.Disable()
	systray.AddSeparator()

	mReplace := systray.AddMenuItem("Transform selection", "Replace the selected text with the result")
	mDisplay := systray.AddMenuItem("Transform and show", "Show the result without touching the selection")

	mProfiles := systray.AddMenuItem("Profile", "Choose the active profile")
	cfg := m.store.Current()
	profiles := make(map[string]*systray.MenuItem, len(cfg.Profiles))
	for _, p := range cfg.Profiles {
		profiles[p.ID] = mProfiles.AddSubMenuItemCheckbox(p.Name, p.Name, p.ID == cfg.ActiveProfile)
	}

	// Stays nil, and never fires, without a dashboard
	var openWebUI chan struct{}
	if m.webPort > 0 {
		openWebUI = systray.AddMenuItem("Open dashboard", "Open the TokenSpark web dashboard").ClickedCh
	}
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Exit TokenSpark")

	m.mu.Lock()
	m.status = status
	m.profiles = profiles
	m.ready = true
	m.mu.Unlock()

	for id, item := range profiles {
		go m.watchProfile(id, item)
	}

	go func() {
		for {
			select {
			case <-mReplace.ClickedCh:
				m.trigger(pipeline.Replace)
			case <-mDisplay.ClickedCh:
				m.trigger(pipeline.Display)
			case <-openWebUI:
				m.openWebUI()
			case <-mQuit.ClickedCh:
				slog.Info("User requested quit from system tray")
				m.quitOnce.Do(func() { close(m.quit) })
				systray.Quit()
				return
			}
		}
	}()
}

// onExit is called when the systray is exiting
func (m *SystrayManager) onExit() {
	slog.Info("System tray exited")
}

func (m *SystrayManager) trigger(mode pipeline.Mode) {
	if !m.invoker.Invoke(mode) {
		slog.Debug("Tray trigger ignored, invocation in progress", "mode", mode)
	}
}

func (m *SystrayManager) watchProfile(id string, item *systray.MenuItem) {
	for range item.ClickedCh {
		if err := m.SelectProfile(id); err != nil {
			slog.Error("Failed to switch profile", "profile", id, "error", err)
		}
	}
}

// SelectProfile makes the profile active, saves the configuration and
// updates the check marks
func (m *SystrayManager) SelectProfile(id string) error {
	if err := m.store.Update(func(c *config.Config) error { return c.SetActive(id) }); err != nil {
		return err
	}
	active := m.store.Current().ActiveProfile
	slog.Info("Active profile changed", "profile", active)

	m.mu.Lock()
	defer m.mu.Unlock()
	for pid, item := range m.profiles {
		if pid == active {
			item.Check()
		} else {
			item.Uncheck()
		}
	}
	return nil
}

// openWebUI opens the web UI in the default browser
func (m *SystrayManager) openWebUI() {
	url := fmt.Sprintf("http://localhost:%d", m.webPort)
	slog.Info("Opening web UI", "url", url)

	if err := OpenURL(url); err != nil {
		slog.Error("Failed to open web UI", "error", err)
	}
}

// OpenURL opens url in the default browser without waiting for it
func OpenURL(url string) error {
	cmd, err := browserCommand(runtime.GOOS, url)
	if err != nil {
		return err
	}
	return cmd.Start()
}

func browserCommand(goos, url string) (*exec.Cmd, error) {
	switch goos {
	case "windows":
		return exec.Command("cmd", "/c", "start", url), nil
	case "darwin":
		return exec.Command("open", url), nil
	case "linux", "freebsd", "openbsd":
		return exec.Command("xdg-open", url), nil
	default:
		return nil, fmt.Errorf("unsupported platform for opening browser: %s", goos)
	}
}
