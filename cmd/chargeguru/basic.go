package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chargeguru/chargeguru/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

// getVersion returns the versions of this binary and of the daemon.
func getVersion() (string, string, error) {
	daemonVersion, err := apiClient.GetVersion()
	if err != nil {
		return version.Version, "", err
	}
	return version.Version, daemonVersion, nil
}

func NewStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "start",
		Short:   "Start a charge cycle with the current parameters",
		GroupID: gBasic,
		Long: `Start a charge cycle with the current parameters.

The parameters set with "chargeguru form set" or "chargeguru configure" are
layered onto the charger defaults for the selected battery type. The charts are
cleared when the cycle starts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.StartCharging()
			if err != nil {
				return err
			}
			logrus.WithField("session", st.Session).Info("charging started")
			printReadout(cmd, st.Readout)
			return nil
		},
	}
}

func NewStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "stop",
		Short:   "Stop the running charge cycle",
		GroupID: gBasic,
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			st, err := apiClient.StopCharging()
			if err != nil {
				return err
			}
			logrus.WithField("session", st.Session).Info("charging stopped")
			return nil
		},
	}
}

func NewChartsCommand() *cobra.Command {
	var (
		output string
		hide   []string
	)

	cmd := &cobra.Command{
		Use:     "charts",
		Short:   "Save the charts of the current cycle as an HTML page",
		GroupID: gBasic,
		Long: fmt.Sprintf(`Save the charts of the current cycle as an HTML page.

Charts can be left out with --hide. Known charts: %s.`, strings.Join(chartNames, ", ")),
		Example: `  chargeguru charts -o cycle.html
  chargeguru charts --hide cells,temperature`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, err := apiClient.GetChartsHTML(hide)
			if err != nil {
				return err
			}
			if output == "-" {
				cmd.Print(page)
				return nil
			}
			if err := os.WriteFile(output, []byte(page), 0644); err != nil {
				return fmt.Errorf("failed to write charts: %w", err)
			}
			logrus.Infof("charts saved to %s", output)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", "chargeguru-charts.html", "output file, - for stdout")
	f.StringSliceVar(&hide, "hide", nil, "charts to leave out")

	return cmd
}
