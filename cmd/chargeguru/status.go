package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/chargeguru/chargeguru/pkg/b6"
	"github.com/chargeguru/chargeguru/pkg/session"
	"github.com/chargeguru/chargeguru/pkg/types"
)

var chartNames = func() []string {
	names := make([]string, 0, len(session.ChartIDs))
	for _, id := range session.ChartIDs {
		names = append(names, string(id))
	}
	return names
}()

type statusJSON struct {
	Status   *types.Status         `json:"status"`
	Form     *types.FormResponse   `json:"form,omitempty"`
	Schedule *types.ScheduleStatus `json:"schedule,omitempty"`
}

func NewStatusCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of the charger",
		Long:    `Get the connection, charging state, last telemetry readout and the charge parameters.`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.GetStatus()
			if err != nil {
				return err
			}
			f, err := apiClient.GetForm()
			if err != nil {
				return err
			}
			sch, err := apiClient.GetSchedule()
			if err != nil {
				return err
			}

			if asJSON {
				b, err := json.MarshalIndent(statusJSON{Status: st, Form: f, Schedule: sch}, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
				return nil
			}

			// Connection.
			cmd.Println(bold("Charger:"))
			cmd.Printf("  Connected: %s (%s)\n", bool2Text(st.Connected), st.Transport)
			if st.Device != nil {
				cmd.Printf("  Core type: %s\n", bold("%s", st.Device.CoreType))
				cmd.Printf("  Hardware: %s  Firmware: %s\n", bold("%.2f", st.Device.HWVersion), bold("%.2f", st.Device.SWVersion))
				cmd.Printf("  Cells: %s\n", bold("%d", st.Device.CellCount))
			}
			if !st.LastPoll.IsZero() {
				cmd.Printf("  Last poll: %s (%d in the last minute)\n", st.LastPoll.Local().Format(time.TimeOnly), st.RecentPolls)
			}
			if st.LastError != "" {
				cmd.Printf("  Last error: %s\n", color.RedString("%s", st.LastError))
			}
			cmd.Println()

			// Charging.
			cmd.Println(bold("Charging:"))
			cmd.Printf("  State: %s\n", stateText(st.State, st.StateLabel))
			cmd.Printf("  Charging: %s\n", bool2Text(st.Charging))
			cmd.Printf("  Session: %s (since %s)\n", st.Session, st.SessionStartedAt.Local().Format(time.DateTime))
			printReadout(cmd, st.Readout)
			cmd.Println()

			// Parameters.
			cmd.Println(bold("Charge parameters:"))
			printForm(cmd, f)

			if sch.Cron != "" {
				cmd.Println()
				cmd.Println(bold("Schedule:"))
				printSchedule(cmd, sch)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")

	return cmd
}

func stateText(state uint8, label string) string {
	switch state {
	case b6.StateCharging:
		return color.GreenString("%s", label)
	case b6.StateComplete:
		return color.New(color.Bold, color.FgGreen).Sprint(label)
	case b6.StateError:
		return color.RedString("%s", label)
	}
	return label
}

func printReadout(cmd *cobra.Command, r *session.Readout) {
	if r == nil {
		return
	}
	cmd.Printf("  Time: %s\n", bold("%s", r.Elapsed))
	cmd.Printf("  Current: %s  Voltage: %s  Capacity: %s\n", bold("%s", r.Current), bold("%s", r.Voltage), bold("%s", r.Capacity))
	cmd.Printf("  Temperature: int %s  ext %s\n", bold("%s", r.TempInt), bold("%s", r.TempExt))
	for i, v := range r.Cells {
		cmd.Printf("  Cell %d: %s\n", i+1, v)
	}
}

func printForm(cmd *cobra.Command, f *types.FormResponse) {
	s := f.State
	en := f.Enablement
	mode := ""
	if s.Mode != nil {
		mode = s.Mode.String()
	}
	cmd.Printf("  Battery: %s  Mode: %s\n", bold("%s", s.BatteryType), bold("%s", mode))
	field := func(name string, enabled bool, format string, v ...any) {
		text := bold(format, v...)
		if !enabled {
			text = color.New(color.Faint).Sprintf(format, v...)
		}
		cmd.Printf("  %s: %s\n", name, text)
	}
	field("Cells", en.CellCount, "%d", s.CellCount)
	field("Charge current", en.ChargeCurrent, "%d mA", s.ChargeCurrent)
	field("Discharge current", en.DischargeCurrent, "%d mA", s.DischargeCurrent)
	field("Cell discharge voltage", en.CellDischargeVoltage, "%d mV", s.CellDischargeVoltage)
	field("End voltage", en.EndVoltage, "%d mV", s.EndVoltage)
	field("Repeak count", en.RepeakCount, "%d", s.RepeakCount)
	field("Cycle count", en.CycleCount, "%d", s.CycleCount)
}

func printSchedule(cmd *cobra.Command, s *types.ScheduleStatus) {
	cmd.Printf("  Cron: %s  Preset: %s  Enabled: %s\n", bold("%s", s.Cron), bold("%s", s.Preset), bool2Text(s.Enabled))
	for _, run := range s.NextRuns {
		cmd.Printf("  - %s\n", run.Local().Format(time.DateTime))
	}
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

func parseIntArg(s string, valueName string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", valueName, err)
	}
	return v, nil
}
