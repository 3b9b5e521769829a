package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/chargeguru/chargeguru/pkg/b6"
	"github.com/chargeguru/chargeguru/pkg/form"
	"github.com/chargeguru/chargeguru/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		PollInterval:       ptr.To("1s"),
		Transport:          ptr.To(TransportHID),
		SerialPort:         ptr.To("/dev/ttyUSB0"),
		Baud:               ptr.To(115200),
		VendorID:           ptr.To(b6.DefaultVendorID),
		ProductID:          ptr.To(b6.DefaultProductID),
		PresetsDir:         ptr.To("/var/lib/chargeguru"),
		AllowNonRootAccess: ptr.To(false),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	PollInterval       *string     `json:"pollInterval,omitempty"`
	Transport          *string     `json:"transport,omitempty"`
	SerialPort         *string     `json:"serialPort,omitempty"`
	Baud               *int        `json:"baud,omitempty"`
	VendorID           *uint16     `json:"vendorId,omitempty"`
	ProductID          *uint16     `json:"productId,omitempty"`
	PresetsDir         *string     `json:"presetsDir,omitempty"`
	AllowNonRootAccess *bool       `json:"allowNonRootAccess,omitempty"`
	Form               *form.State `json:"form,omitempty"`
	ScheduleCron       *string     `json:"scheduleCron,omitempty"`
	SchedulePreset     *string     `json:"schedulePreset,omitempty"`
}

func (r *RawFileConfig) validate() error {
	if r.PollInterval != nil {
		d, err := time.ParseDuration(*r.PollInterval)
		if err != nil {
			return pkgerrors.Wrapf(err, "invalid poll interval %q", *r.PollInterval)
		}
		if d < 100*time.Millisecond {
			return pkgerrors.Errorf("poll interval must be at least 100ms, got %s", d)
		}
	}
	if r.Transport != nil {
		switch *r.Transport {
		case TransportHID, TransportSerial, TransportMock:
		default:
			return pkgerrors.Errorf("unknown transport %q", *r.Transport)
		}
	}
	return nil
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	cronExpr, preset := c.Schedule()
	rawConfig := &RawFileConfig{
		PollInterval:       ptr.To(c.PollInterval().String()),
		Transport:          ptr.To(c.Transport()),
		SerialPort:         ptr.To(c.SerialPort()),
		Baud:               ptr.To(c.Baud()),
		VendorID:           ptr.To(c.VendorID()),
		ProductID:          ptr.To(c.ProductID()),
		PresetsDir:         ptr.To(c.PresetsDir()),
		AllowNonRootAccess: ptr.To(c.AllowNonRootAccess()),
	}
	if s, ok := c.Form(); ok {
		rawConfig.Form = &s
	}
	if cronExpr != "" {
		rawConfig.ScheduleCron = ptr.To(cronExpr)
		rawConfig.SchedulePreset = ptr.To(preset)
	}

	return rawConfig, nil
}

func (f *File) PollInterval() time.Duration {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	d, err := time.ParseDuration(ptr.Deref(f.c.PollInterval, *defaultFileConfig.PollInterval))
	if err != nil {
		d, _ = time.ParseDuration(*defaultFileConfig.PollInterval)
	}
	return d
}

func (f *File) Transport() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.Transport, *defaultFileConfig.Transport)
}

func (f *File) SerialPort() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.SerialPort, *defaultFileConfig.SerialPort)
}

func (f *File) Baud() int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.Baud, *defaultFileConfig.Baud)
}

func (f *File) VendorID() uint16 {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.VendorID, *defaultFileConfig.VendorID)
}

func (f *File) ProductID() uint16 {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.ProductID, *defaultFileConfig.ProductID)
}

func (f *File) PresetsDir() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.PresetsDir, *defaultFileConfig.PresetsDir)
}

func (f *File) AllowNonRootAccess() bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.AllowNonRootAccess, *defaultFileConfig.AllowNonRootAccess)
}

func (f *File) Form() (form.State, bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.Form == nil {
		return form.DefaultState(), false
	}
	return *f.c.Form, true
}

func (f *File) Schedule() (string, string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.ScheduleCron, ""), ptr.Deref(f.c.SchedulePreset, "")
}

func (f *File) SetPollInterval(d time.Duration) {
	if f.c == nil {
		panic("config is nil")
	}
	if d < 100*time.Millisecond {
		panic("poll interval must be at least 100ms")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.PollInterval = ptr.To(d.String())
}

func (f *File) SetTransport(t string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.Transport = &t
}

func (f *File) SetSerialPort(p string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.SerialPort = &p
}

func (f *File) SetBaud(b int) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.Baud = &b
}

func (f *File) SetAllowNonRootAccess(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.c.AllowNonRootAccess = &b
}

func (f *File) SetForm(s form.State) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.c.Form = &s
}

func (f *File) SetSchedule(cronExpr, preset string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if cronExpr == "" {
		f.c.ScheduleCron = nil
		f.c.SchedulePreset = nil
		return
	}
	f.c.ScheduleCron = &cronExpr
	f.c.SchedulePreset = &preset
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	if err := conf.validate(); err != nil {
		return pkgerrors.Wrapf(err, "invalid config in file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	cronExpr, preset := f.Schedule()
	return logrus.Fields{
		"pollInterval":       f.PollInterval().String(),
		"transport":          f.Transport(),
		"serialPort":         f.SerialPort(),
		"baud":               f.Baud(),
		"vid":                f.VendorID(),
		"pid":                f.ProductID(),
		"presetsDir":         f.PresetsDir(),
		"allowNonRootAccess": f.AllowNonRootAccess(),
		"scheduleCron":       cronExpr,
		"schedulePreset":     preset,
	}
}
