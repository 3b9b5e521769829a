package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chargeguru/chargeguru/pkg/events"
	"github.com/chargeguru/chargeguru/pkg/types"
)

func NewWatchCommand() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:     "watch",
		Short:   "Follow telemetry and charger events",
		GroupID: gBasic,
		Long: `Follow telemetry and charger events until interrupted.

Every telemetry sample prints one readout line. Completion, charging errors,
disconnects and scheduled starts are highlighted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ch, err := apiClient.SubscribeEvents(ctx)
			if err != nil {
				return err
			}
			logrus.Debug("subscribed to daemon events")

			for ev := range ch {
				if quiet && ev.Name == events.Telemetry {
					continue
				}
				if line := formatEvent(ev); line != "" {
					cmd.Println(time.Now().Format(time.TimeOnly) + " " + line)
				}
			}
			if ctx.Err() == nil {
				logrus.Warn("daemon closed the event stream")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only print state changes, no telemetry")

	return cmd
}

// formatEvent renders one event as a line of text. Unknown events are
// printed raw.
func formatEvent(ev events.Event) string {
	switch ev.Name {
	case events.Telemetry:
		t, err := events.DecodeAs[types.TelemetryEvent](ev)
		if err != nil {
			break
		}
		r := t.Readout
		return strings.Join([]string{
			r.Elapsed, r.Current, r.Voltage, r.Capacity, "int " + r.TempInt, "ext " + r.TempExt,
			"cells " + strings.Join(r.Cells, " "),
		}, "  ")
	case events.ChargeStarted:
		p, err := events.DecodeAs[events.ChargeEvent](ev)
		if err != nil {
			break
		}
		msg := "Charging started: " + p.Battery + " " + p.Mode
		if p.External {
			msg += " (on the charger)"
		}
		return color.GreenString("%s", msg)
	case events.ChargeStopped:
		p, err := events.DecodeAs[events.ChargeEvent](ev)
		if err != nil {
			break
		}
		msg := "Charging stopped"
		if p.Message != "" {
			msg += ": " + p.Message
		}
		return color.YellowString("%s", msg)
	case events.ChargeComplete:
		p, err := events.DecodeAs[events.ChargeEvent](ev)
		if err != nil {
			break
		}
		return color.New(color.Bold, color.FgGreen).Sprintf("Charging complete. Time: %s, Capacity: %d mAh", p.Elapsed, p.Capacity)
	case events.ChargeError:
		p, err := events.DecodeAs[events.ChargeEvent](ev)
		if err != nil {
			break
		}
		return color.New(color.Bold, color.FgRed).Sprintf("Error! %s", p.Message)
	case events.DeviceConnected:
		p, err := events.DecodeAs[events.DeviceEvent](ev)
		if err != nil {
			break
		}
		return color.GreenString("Charger connected: core %s, HW %.2f, SW %.2f, %d cells", p.CoreType, p.HWVersion, p.SWVersion, p.Cells)
	case events.DeviceDisconnected:
		p, err := events.DecodeAs[events.DeviceEvent](ev)
		if err != nil {
			break
		}
		return color.RedString("Charger disconnected: %s", p.Reason)
	case events.DeviceWarning:
		p, err := events.DecodeAs[events.WarningEvent](ev)
		if err != nil {
			break
		}
		return color.YellowString("Warning: %s: %s", p.Op, p.Message)
	case events.ScheduleUpcoming:
		p, err := events.DecodeAs[events.ScheduleEvent](ev)
		if err != nil {
			break
		}
		return color.CyanString("%s", p.Message)
	case events.ScheduleError:
		p, err := events.DecodeAs[events.ScheduleEvent](ev)
		if err != nil {
			break
		}
		return color.RedString("Scheduled start of %s failed: %s", p.Preset, p.Message)
	}
	return ev.Name + " " + string(ev.Data)
}
