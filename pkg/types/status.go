package types

import (
	"time"

	"github.com/chargeguru/chargeguru/pkg/b6"
	"github.com/chargeguru/chargeguru/pkg/form"
	"github.com/chargeguru/chargeguru/pkg/session"
)

// Status is the status bar and charging info panel of the daemon.
// This struct is shared between the daemon and client packages.
type Status struct {
	Connected  bool           `json:"connected"`
	Transport  string         `json:"transport"`
	Device     *b6.DeviceInfo `json:"device,omitempty"`
	Charging   bool           `json:"charging"`
	State      uint8          `json:"state"`
	StateLabel string         `json:"stateLabel"`
	// Readout is the last telemetry snapshot, kept while idle.
	Readout          *session.Readout `json:"readout,omitempty"`
	Session          string           `json:"session"`
	SessionStartedAt time.Time        `json:"sessionStartedAt"`
	LastError        string           `json:"lastError,omitempty"`
	Enablement       form.Enablement  `json:"enablement"`
	LastPoll         time.Time        `json:"lastPoll"`
	RecentPolls      int              `json:"recentPolls"`
}

// ScheduleStatus describes the scheduled start of a preset.
type ScheduleStatus struct {
	Cron     string      `json:"cron,omitempty"`
	Preset   string      `json:"preset,omitempty"`
	Enabled  bool        `json:"enabled"`
	NextRuns []time.Time `json:"nextRuns,omitempty"`
}

// ScheduleRequest sets or replaces the schedule.
type ScheduleRequest struct {
	Cron   string `json:"cron"`
	Preset string `json:"preset"`
}

// TelemetryEvent is the payload of charge.telemetry.
type TelemetryEvent struct {
	Session string          `json:"session"`
	Info    b6.ChargeInfo   `json:"info"`
	Readout session.Readout `json:"readout"`
}
