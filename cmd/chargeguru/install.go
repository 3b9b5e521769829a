package main

import (
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chargeguru/chargeguru/pkg/config"
	daemonutils "github.com/chargeguru/chargeguru/pkg/utils/daemon"
)

func init() {
	commandGroups = append(commandGroups, gInstallation)
}

var gInstallation = "Installation:"

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	allowNonRootAccess := false

	cmd := &cobra.Command{
		Use:     "install",
		Short:   "Install chargeguru daemon as a systemd service",
		GroupID: gInstallation,
		Long: `Install chargeguru daemon as a systemd service (system-wide).

This makes the daemon run in the background and start on boot, and adds a udev
rule so the charger's HID device can be opened. You must run this command as root.

By default, only root user is allowed to access the daemon. Use the
--allow-non-root-access flag to let other users run chargeguru without sudo.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}

			conf.SetAllowNonRootAccess(allowNonRootAccess)
			if allowNonRootAccess {
				logrus.Info("non-root users are allowed to access the chargeguru daemon.")
			} else {
				logrus.Info("only root user is allowed to access the chargeguru daemon.")
			}

			err = daemonutils.Install(conf.VendorID(), conf.ProductID())
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %v. Are you root?", err)
			}

			err = conf.Save()
			if err != nil {
				return pkgerrors.Wrapf(err, "failed to save config")
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()

			cmd.Printf("systemd will use the current binary (%s) at startup so please make sure you do not move it. Once it is moved or deleted, run ``chargeguru install'' again.\n", exePath)

			return nil
		},
	}

	cmd.Flags().BoolVar(&allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to access chargeguru daemon.")

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall",
		Short:   "Uninstall chargeguru daemon (system-wide)",
		GroupID: gInstallation,
		Long: `Uninstall chargeguru daemon from systemd (system-wide).

This stops the daemon and removes its service unit and udev rule. Presets and
the config file are kept.

You must run this command as root.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			err := daemonutils.Uninstall()
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to uninstall daemon: %v", err)
			}

			logrus.Infof("chargeguru daemon uninstalled")
			return nil
		},
	}
}
