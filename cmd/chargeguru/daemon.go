package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chargeguru/chargeguru/pkg/daemon"
	"github.com/chargeguru/chargeguru/pkg/version"
)

// NewDaemonCommand .
func NewDaemonCommand() *cobra.Command {
	var (
		allowNonRootAccess bool
		simulate           bool
	)

	cmd := &cobra.Command{
		Use:     "daemon",
		Short:   "Run chargeguru daemon in the foreground",
		GroupID: gAdvanced,
		Long: `Run chargeguru daemon in the foreground.

The daemon opens the charger on the configured transport (hid, serial or mock),
polls it once a second and serves the API on a unix socket. With --simulate it
drives a simulated charger instead of hardware.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			logrus.WithFields(logrus.Fields{
				"version":  version.Version,
				"commit":   version.GitCommit,
				"simulate": simulate,
			}).Info("chargeguru daemon starting")
			return daemon.Run(daemon.Options{
				ConfigPath:     configPath,
				UnixSocketPath: unixSocketPath,
				AllowNonRoot:   allowNonRootAccess,
				Simulate:       simulate,
			})
		},
	}

	f := cmd.Flags()

	f.BoolVar(&allowNonRootAccess, "allow-non-root-access", false,
		"Allow non-root users to access the daemon.")
	f.BoolVar(&simulate, "simulate", false,
		"Use a simulated charger instead of the configured transport.")

	return cmd
}
