package b6

import (
	"errors"
	"io"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	hid "github.com/sstallion/go-hid"
	"github.com/tarm/serial"
)

// Default USB identifiers of B6 family chargers.
const (
	DefaultVendorID  uint16 = 0x0000
	DefaultProductID uint16 = 0x0001
)

var (
	hidInitOnce sync.Once
	hidInitErr  error
)

// hidConn talks to the charger as a USB HID device.
type hidConn struct {
	dev *hid.Device
}

// hidInit is replaced in tests.
var hidInit = hid.Init

// initHID initializes hidapi once. A failure is kept and returned to every
// later caller.
func initHID() error {
	hidInitOnce.Do(func() {
		if err := hidInit(); err != nil {
			hidInitErr = pkgerrors.Wrap(err, "failed to initialize hidapi")
		}
	})
	return hidInitErr
}

// OpenHID opens the first HID device matching vid and pid.
func OpenHID(vid, pid uint16) (Conn, error) {
	if err := initHID(); err != nil {
		return nil, err
	}

	dev, err := hid.OpenFirst(vid, pid)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"vid": vid,
			"pid": pid,
		}).Trace("no hid charger found")
		return nil, pkgerrors.Wrapf(ErrNotFound, "hid %04x:%04x: %v", vid, pid, err)
	}
	return &hidConn{dev: dev}, nil
}

func (c *hidConn) WriteReport(r []byte) error {
	// Report ID 0 for devices without numbered reports.
	buf := make([]byte, 0, len(r)+1)
	buf = append(buf, 0x00)
	buf = append(buf, r...)
	_, err := c.dev.Write(buf)
	return err
}

func (c *hidConn) ReadReport(timeout time.Duration) ([]byte, error) {
	buf := make([]byte, ReportSize)
	n, err := c.dev.ReadWithTimeout(buf, timeout)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrTimeout
	}
	return buf[:n], nil
}

func (c *hidConn) Close() error {
	return c.dev.Close()
}

// serialConn talks to chargers behind a USB-serial bridge. Reports are
// sent back to back without extra framing.
type serialConn struct {
	port *serial.Port
}

// OpenSerial opens a serial port carrying charger reports.
func OpenSerial(name string, baud int) (Conn, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		return nil, pkgerrors.Wrapf(ErrNotFound, "serial %s: %v", name, err)
	}
	return &serialConn{port: port}, nil
}

func (c *serialConn) WriteReport(r []byte) error {
	_, err := c.port.Write(r)
	return err
}

func (c *serialConn) ReadReport(timeout time.Duration) ([]byte, error) {
	buf := make([]byte, ReportSize)
	got := 0
	deadline := time.Now().Add(timeout)

	for got < ReportSize {
		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		n, err := c.port.Read(buf[got:])
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		got += n
	}
	return buf, nil
}

func (c *serialConn) Close() error {
	if err := c.port.Flush(); err != nil {
		logrus.Warnf("failed to flush serial port: %v", err)
	}
	return c.port.Close()
}
