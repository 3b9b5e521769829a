package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func NewScheduleCommand() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:     "schedule [cron-expression]",
		Aliases: []string{"sch", "sched"},
		Short:   "Manage the scheduled start of a preset",
		Long: `Manage the scheduled start of a preset.

The schedule command can be used in multiple ways:
  chargeguru schedule 'minute hour day month weekday' --preset NAME   Set schedule
  chargeguru schedule clear                                           Clear the schedule
  chargeguru schedule postpone [duration]                             Postpone next run
  chargeguru schedule skip                                            Skip next run
  chargeguru schedule show                                            Show current schedule

Before each run the daemon checks that the charger is connected and idle.`,
		Example: `  chargeguru schedule '0 7 * * *' --preset lipo-3s-storage (At 07:00 every day)
  chargeguru schedule '30 22 * * 5' --preset nimh-refresh   (At 22:30 on Friday)`,
		GroupID: gPresets,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// If no arguments, show the current schedule
			if len(args) == 0 {
				return runScheduleShow(cmd)
			}
			return runScheduleSet(cmd, args[0], preset)
		},
	}

	cmd.Flags().StringVarP(&preset, "preset", "p", "", "preset to load and start")

	cmd.AddCommand(
		newScheduleClearCommand(),
		newSchedulePostponeCommand(),
		newScheduleSkipCommand(),
		newScheduleShowCommand(),
	)

	return cmd
}

func newScheduleClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "clear",
		Aliases: []string{"disable"},
		Short:   "Clear the schedule",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := apiClient.ClearSchedule(); err != nil {
				return err
			}
			cmd.Println("Schedule cleared.")
			return nil
		},
	}
}

func newSchedulePostponeCommand() *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "postpone [duration]",
		Short: "Postpone the next scheduled start",
		Example: `  chargeguru schedule postpone      (Postpone by 1 hour)
  chargeguru schedule postpone 90m  (Postpone by 90 minutes)`,
		Long: `Postpone the next scheduled start by a specified duration.
If no duration is provided, defaults to 1 hour.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := duration
			if len(args) > 0 {
				parsed, err := time.ParseDuration(args[0])
				if err != nil {
					return fmt.Errorf("invalid duration %q: %w", args[0], err)
				}
				d = parsed
			}
			if _, err := apiClient.PostponeSchedule(d); err != nil {
				return err
			}
			cmd.Printf("Next start postponed by %s.\n", d)
			return nil
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", time.Hour, "Duration to postpone (e.g., 1h, 90m)")
	return cmd
}

func newScheduleSkipCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "skip",
		Short: "Skip the next scheduled start",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.SkipSchedule()
			if err != nil {
				return err
			}
			cmd.Println("Next scheduled start skipped.")
			printSchedule(cmd, st)
			return nil
		},
	}
}

func newScheduleShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduleShow(cmd)
		},
	}
}

func runScheduleSet(cmd *cobra.Command, cronExpr, preset string) error {
	if cronExpr == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}
	if preset == "" {
		return fmt.Errorf("--preset is required")
	}
	st, err := apiClient.SetSchedule(cronExpr, preset)
	if err != nil {
		return err
	}
	cmd.Printf("Preset %s scheduled. Next %d run(s):\n", st.Preset, len(st.NextRuns))
	for _, run := range st.NextRuns {
		cmd.Printf("  - %s\n", run.Local().Format(time.DateTime))
	}
	return nil
}

func runScheduleShow(cmd *cobra.Command) error {
	st, err := apiClient.GetSchedule()
	if err != nil {
		return err
	}
	if st.Cron == "" {
		cmd.Println("No charge is scheduled.")
		return nil
	}
	printSchedule(cmd, st)
	return nil
}
