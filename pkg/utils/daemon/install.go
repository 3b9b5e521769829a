package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	unitPath  = "/etc/systemd/system/chargeguru.service"
	rulesPath = "/etc/udev/rules.d/99-chargeguru.rules"

	// runCommand runs an init system helper.
	runCommand = func(name string, args ...string) error {
		out, err := exec.Command(name, args...).CombinedOutput()
		if err != nil {
			return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
		}
		return nil
	}
)

const unitTemplate = `[Unit]
Description=chargeguru charger monitor daemon
After=network.target

[Service]
Type=simple
ExecStart=/path/to/chargeguru daemon
ExecReload=/bin/kill -HUP $MAINPID
Restart=on-failure

[Install]
WantedBy=multi-user.target
`

// udev grants the daemon's group access to the charger's hidraw node.
const rulesTemplate = `SUBSYSTEM=="hidraw", ATTRS{idVendor}=="%04x", ATTRS{idProduct}=="%04x", MODE="0660", GROUP="plugdev"
`

// Install writes a systemd unit running the current binary and a udev rule
// for the charger, then enables and starts the service.
func Install(vid, pid uint16) error {
	// Get the path to the current executable
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)

	unit := strings.ReplaceAll(unitTemplate, "/path/to/chargeguru", exePath)
	if err := writeRootFile(unitPath, unit); err != nil {
		return err
	}
	if err := writeRootFile(rulesPath, fmt.Sprintf(rulesTemplate, vid, pid)); err != nil {
		return err
	}

	logrus.Infof("reloading udev rules")
	if err := runCommand("udevadm", "control", "--reload-rules"); err != nil {
		// Not fatal: the rule applies the next time the charger is plugged in.
		logrus.WithError(err).Warn("failed to reload udev rules")
	}

	logrus.Infof("starting chargeguru")
	if err := runCommand("systemctl", "daemon-reload"); err != nil {
		return err
	}
	return runCommand("systemctl", "enable", "--now", filepath.Base(unitPath))
}

func writeRootFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}

	// warn if the file already exists
	if _, err := os.Stat(path); err == nil {
		logrus.Warnf("%s already exists, overwriting", path)
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
