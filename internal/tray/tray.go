// Package tray provides a system tray menu for the TrafficCV speed detector.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/trafficcv/internal/track"
	"github.com/ayusman/trafficcv/internal/units"
)

// Tray is the system tray menu. It shows the last latched speed and the
// number of vehicles measured, and stops the detector on Quit.
type Tray struct {
	units       string
	onDashboard func()
	onQuit      func()
	lastSpeed   float64
	measured    int
	mu          sync.RWMutex

	// Menu items stored for later updates
	menuLastSpeed *systray.MenuItem
	menuCount     *systray.MenuItem
}

// New creates a new Tray reporting speeds in unit.
func New(unit string) *Tray {
	if u, err := units.Normalize(unit); err == nil {
		unit = u
	} else {
		unit = units.KPH
	}
	return &Tray{units: unit}
}

// OnDashboard sets the callback for the dashboard menu item. The item is
// only shown when a callback is set before Run.
func (t *Tray) OnDashboard(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDashboard = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit removes the tray icon and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("TrafficCV")
	systray.SetTooltip("TrafficCV speed detector")

	t.mu.Lock()
	t.menuLastSpeed = systray.AddMenuItem(t.lastSpeedTitle(), "Last measured speed")
	t.menuLastSpeed.Disable()
	t.menuCount = systray.AddMenuItem(t.countTitle(), "Vehicles measured this run")
	t.menuCount.Disable()
	hasDashboard := t.onDashboard != nil
	t.mu.Unlock()
	systray.AddSeparator()

	var dashboardCh chan struct{}
	if hasDashboard {
		menuDashboard := systray.AddMenuItem("Open Dashboard...", "Open the live dashboard in a browser")
		dashboardCh = menuDashboard.ClickedCh
		systray.AddSeparator()
	}

	menuQuit := systray.AddMenuItem("Quit", "Stop the speed detector")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-dashboardCh:
				t.handleDashboard()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {}

func (t *Tray) handleDashboard() {
	t.mu.RLock()
	callback := t.onDashboard
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// OnEvent implements track.Observer by updating the speed display.
func (t *Tray) OnEvent(e track.Event) {
	if e.Kind != track.EventSpeed {
		return
	}
	t.SetLastSpeed(e.SpeedMPS)
}

// SetLastSpeed records a measured speed in metres per second.
func (t *Tray) SetLastSpeed(mps float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastSpeed = units.FromMPS(mps, t.units)
	t.measured++

	if t.menuLastSpeed != nil {
		t.menuLastSpeed.SetTitle(t.lastSpeedTitle())
	}
	if t.menuCount != nil {
		t.menuCount.SetTitle(t.countTitle())
	}
}

// Measured returns how many speeds were recorded.
func (t *Tray) Measured() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.measured
}

// lastSpeedTitle must be called with t.mu held.
func (t *Tray) lastSpeedTitle() string {
	if t.measured == 0 {
		return "Last: none"
	}
	return fmt.Sprintf("Last: %.0f %s", t.lastSpeed, units.Label(t.units))
}

// countTitle must be called with t.mu held.
func (t *Tray) countTitle() string {
	return fmt.Sprintf("Vehicles: %d", t.measured)
}
