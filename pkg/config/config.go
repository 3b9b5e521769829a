package config

import (
	"time"

	"github.com/chargeguru/chargeguru/pkg/form"
)

// Transport names accepted by the daemon.
const (
	TransportHID    = "hid"
	TransportSerial = "serial"
	TransportMock   = "mock"
)

type Config interface {
	PollInterval() time.Duration
	Transport() string
	SerialPort() string
	Baud() int
	VendorID() uint16
	ProductID() uint16
	PresetsDir() string
	AllowNonRootAccess() bool
	// Form returns the cached form selections and whether any were saved.
	Form() (form.State, bool)
	Schedule() (cronExpr, preset string)

	SetPollInterval(time.Duration)
	SetTransport(string)
	SetSerialPort(string)
	SetBaud(int)
	SetAllowNonRootAccess(bool)
	SetForm(form.State)
	SetSchedule(cronExpr, preset string)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
