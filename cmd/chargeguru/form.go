package main

import (
	"fmt"
	"strconv"

	"github.com/manifoldco/promptui"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chargeguru/chargeguru/pkg/form"
	"github.com/chargeguru/chargeguru/pkg/types"
)

func NewFormCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "form",
		Short:   "Show or edit the charge parameters",
		GroupID: gBasic,
		Long: `Show or edit the charge parameters used by "chargeguru start".

Only the parameters the selected mode uses can be set, and nothing can be
changed while a cycle is running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFormShow(cmd)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show the charge parameters",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runFormShow(cmd)
			},
		},
		newFormSetCommand(),
	)

	return cmd
}

func runFormShow(cmd *cobra.Command) error {
	f, err := apiClient.GetForm()
	if err != nil {
		return err
	}
	printForm(cmd, f)
	cmd.Printf("\n  Battery types: %v\n", f.Options.BatteryTypes)
	cmd.Printf("  Modes: %v\n", f.Options.Modes)
	return nil
}

func newFormSetCommand() *cobra.Command {
	var (
		battery string
		mode    string
		u       form.Update
		ints    = map[string]**int{}
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set charge parameters",
		Example: `  chargeguru form set --battery LiPo --mode Balance --cells 3 --charge-current 2000
  chargeguru form set --battery NiMH --mode Re-peak --repeak 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := cmd.Flags()
			if f.Changed("battery") {
				u.BatteryType = &battery
			}
			if f.Changed("mode") {
				u.Mode = &mode
			}
			for name, dst := range ints {
				if !f.Changed(name) {
					*dst = nil
				}
			}

			resp, err := apiClient.SetForm(u)
			if err != nil {
				return err
			}
			logrus.Info("charge parameters updated")
			printForm(cmd, resp)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&battery, "battery", "", "battery type")
	f.StringVar(&mode, "mode", "", "charging mode of the battery type")

	intFlag := func(name, usage string, dst **int) {
		v := new(int)
		*dst = v
		ints[name] = dst
		f.IntVar(v, name, 0, usage)
	}
	intFlag("cells", "cell count", &u.CellCount)
	intFlag("charge-current", "charge current in mA", &u.ChargeCurrent)
	intFlag("discharge-current", "discharge current in mA", &u.DischargeCurrent)
	intFlag("discharge-voltage", "cell discharge voltage in mV", &u.CellDischargeVoltage)
	intFlag("end-voltage", "end voltage in mV", &u.EndVoltage)
	intFlag("repeak", "repeak count", &u.RepeakCount)
	intFlag("cycles", "cycle count", &u.CycleCount)

	return cmd
}

// NewConfigureCommand walks through the parameters like the charger's own
// menu: battery type, then one of its modes, then only the values that mode
// uses.
func NewConfigureCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "configure",
		Short:   "Set the charge parameters interactively",
		GroupID: gBasic,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := apiClient.GetForm()
			if err != nil {
				return err
			}
			if !f.Enablement.BatteryType {
				return fmt.Errorf("charge parameters cannot be changed while charging")
			}

			battery, err := selectItem("Battery type", f.Options.BatteryTypes, f.State.BatteryType.String())
			if err != nil {
				return err
			}
			f, err = apiClient.SetForm(form.Update{BatteryType: &battery})
			if err != nil {
				return err
			}

			current := ""
			if f.State.Mode != nil {
				current = f.State.Mode.String()
			}
			mode, err := selectItem("Mode", f.Options.Modes, current)
			if err != nil {
				return err
			}
			f, err = apiClient.SetForm(form.Update{Mode: &mode})
			if err != nil {
				return err
			}

			u, err := promptFields(f)
			if err != nil {
				return err
			}
			f, err = apiClient.SetForm(u)
			if err != nil {
				return err
			}

			cmd.Println()
			printForm(cmd, f)
			return nil
		},
	}
}

func selectItem(label string, items []string, current string) (string, error) {
	cursor := 0
	for i, it := range items {
		if it == current {
			cursor = i
		}
	}
	prompt := promptui.Select{
		Label:     label,
		Items:     items,
		CursorPos: cursor,
		Size:      len(items),
	}
	_, result, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	return result, nil
}

// promptFields asks for every numeric value the selected mode uses.
func promptFields(f *types.FormResponse) (form.Update, error) {
	var u form.Update
	en := f.Enablement
	s := f.State

	fields := []struct {
		label   string
		enabled bool
		value   int
		dst     **int
	}{
		{"Cells", en.CellCount, s.CellCount, &u.CellCount},
		{"Charge current (mA)", en.ChargeCurrent, s.ChargeCurrent, &u.ChargeCurrent},
		{"Discharge current (mA)", en.DischargeCurrent, s.DischargeCurrent, &u.DischargeCurrent},
		{"Cell discharge voltage (mV)", en.CellDischargeVoltage, s.CellDischargeVoltage, &u.CellDischargeVoltage},
		{"End voltage (mV)", en.EndVoltage, s.EndVoltage, &u.EndVoltage},
		{"Repeak count", en.RepeakCount, s.RepeakCount, &u.RepeakCount},
		{"Cycle count", en.CycleCount, s.CycleCount, &u.CycleCount},
	}
	for _, field := range fields {
		if !field.enabled {
			continue
		}
		prompt := promptui.Prompt{
			Label:   field.label,
			Default: strconv.Itoa(field.value),
			Validate: func(in string) error {
				_, err := parseIntArg(in, "number")
				return err
			},
		}
		in, err := prompt.Run()
		if err != nil {
			return u, fmt.Errorf("prompt failed: %w", err)
		}
		v, err := parseIntArg(in, field.label)
		if err != nil {
			return u, err
		}
		*field.dst = &v
	}
	return u, nil
}
