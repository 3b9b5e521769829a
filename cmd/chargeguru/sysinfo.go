package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewSysInfoCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sysinfo",
		Aliases: []string{"settings"},
		Short:   "Show or change the charger's system settings",
		GroupID: gAdvanced,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSysInfoGet(cmd)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Load the system settings from the charger",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runSysInfoGet(cmd)
			},
		},
		newSysInfoSetCommand(),
	)

	return cmd
}

func runSysInfoGet(cmd *cobra.Command) error {
	s, err := apiClient.GetSysInfo()
	if err != nil {
		return err
	}
	cmd.Println(bold("System settings:"))
	cmd.Printf("  Cycle time: %s\n", bold("%d min", s.CycleTime))
	cmd.Printf("  Safety timer: %s %s\n", bool2Text(s.TimeLimitOn), bold("%d min", s.TimeLimit))
	cmd.Printf("  Capacity cut-off: %s %s\n", bool2Text(s.CapLimitOn), bold("%d mAh", s.CapLimit))
	cmd.Printf("  Temperature cut-off: %s\n", bold("%d°C", s.TempLimit))
	cmd.Printf("  Key buzzer: %s  System buzzer: %s\n", bool2Text(s.KeyBuzzer), bool2Text(s.SystemBuzzer))
	cmd.Printf("  Input low cut-off: %s\n", bold("%.2f V", float64(s.LowDCLimit)/1000))
	cmd.Printf("  Input voltage: %s\n", bold("%.2f V", float64(s.InputVoltage)/1000))
	return nil
}

func newSysInfoSetCommand() *cobra.Command {
	var (
		cycleTime    int
		timeLimit    int
		capLimit     int
		tempLimit    int
		timeLimitOn  bool
		capLimitOn   bool
		keyBuzzer    bool
		systemBuzzer bool
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Save system settings to the charger",
		Long: `Save system settings to the charger.

Settings not given on the command line keep their current value. Every
setting is written back to the charger.`,
		Example: `  chargeguru sysinfo set --cap-limit-on --cap-limit 2200
  chargeguru sysinfo set --key-buzzer=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := apiClient.GetSysInfo()
			if err != nil {
				return err
			}

			f := cmd.Flags()
			if f.Changed("cycle-time") {
				s.CycleTime = cycleTime
			}
			if f.Changed("time-limit") {
				s.TimeLimit = timeLimit
			}
			if f.Changed("time-limit-on") {
				s.TimeLimitOn = timeLimitOn
			}
			if f.Changed("cap-limit") {
				s.CapLimit = capLimit
			}
			if f.Changed("cap-limit-on") {
				s.CapLimitOn = capLimitOn
			}
			if f.Changed("temp-limit") {
				s.TempLimit = tempLimit
			}
			if f.Changed("key-buzzer") {
				s.KeyBuzzer = keyBuzzer
			}
			if f.Changed("system-buzzer") {
				s.SystemBuzzer = systemBuzzer
			}

			if err := apiClient.SetSysInfo(*s); err != nil {
				return err
			}
			logrus.Info("system settings saved")
			return runSysInfoGet(cmd)
		},
	}

	f := cmd.Flags()
	f.IntVar(&cycleTime, "cycle-time", 0, "rest time between cycles in minutes (0-60)")
	f.IntVar(&timeLimit, "time-limit", 0, "safety timer in minutes (0-720)")
	f.BoolVar(&timeLimitOn, "time-limit-on", false, "enable the safety timer")
	f.IntVar(&capLimit, "cap-limit", 0, "capacity cut-off in mAh (0-50000)")
	f.BoolVar(&capLimitOn, "cap-limit-on", false, "enable the capacity cut-off")
	f.IntVar(&tempLimit, "temp-limit", 0, "temperature cut-off in °C (20-80)")
	f.BoolVar(&keyBuzzer, "key-buzzer", false, "key beep")
	f.BoolVar(&systemBuzzer, "system-buzzer", false, "system buzzer")

	return cmd
}
