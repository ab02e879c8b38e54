package tray

import (
	"testing"

	"github.com/ayusman/trafficcv/internal/track"
)

func TestTray_OnEventTracksSpeeds(t *testing.T) {
	tr := New("kph")

	if got := tr.lastSpeedTitle(); got != "Last: none" {
		t.Errorf("initial title = %q, want %q", got, "Last: none")
	}

	tr.OnEvent(track.Event{Kind: track.EventCreated, TrackID: 1})
	tr.OnEvent(track.Event{Kind: track.EventSpeed, TrackID: 1, SpeedMPS: 20})
	tr.OnEvent(track.Event{Kind: track.EventEvicted, TrackID: 1})

	if tr.Measured() != 1 {
		t.Errorf("Measured() = %d, want 1", tr.Measured())
	}
	if got := tr.lastSpeedTitle(); got != "Last: 72 km/hr" {
		t.Errorf("title = %q, want %q", got, "Last: 72 km/hr")
	}
	if got := tr.countTitle(); got != "Vehicles: 1" {
		t.Errorf("count = %q, want %q", got, "Vehicles: 1")
	}
}

func TestTray_Units(t *testing.T) {
	tr := New("mph")
	tr.SetLastSpeed(20)
	if got := tr.lastSpeedTitle(); got != "Last: 45 mph" {
		t.Errorf("title = %q, want %q", got, "Last: 45 mph")
	}

	if got := New("parsecs").units; got != "kph" {
		t.Errorf("unknown units = %q, want kph", got)
	}
}

func TestTray_Callbacks(t *testing.T) {
	tr := New("kph")

	var dashboard bool
	tr.OnDashboard(func() { dashboard = true })
	tr.handleDashboard()
	if !dashboard {
		t.Error("dashboard callback not called")
	}
}
