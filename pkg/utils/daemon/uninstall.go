package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Uninstall stops the service and removes the unit and the udev rule.
func Uninstall() error {
	logrus.Infof("stopping chargeguru")

	err := runCommand("systemctl", "disable", "--now", filepath.Base(unitPath))
	if err != nil {
		return fmt.Errorf("failed to stop %s: %w. Are you root?", filepath.Base(unitPath), err)
	}

	logrus.Infof("removing service unit and udev rule")

	for _, path := range []string{unitPath, rulesPath} {
		// if the file doesn't exist, we don't need to remove it
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w. Are you root?", path, err)
		}
	}

	return runCommand("systemctl", "daemon-reload")
}
