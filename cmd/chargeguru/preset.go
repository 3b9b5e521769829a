package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chargeguru/chargeguru/pkg/presets"
)

func NewPresetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "preset",
		Aliases: []string{"presets"},
		Short:   "Manage named charge parameter presets",
		GroupID: gPresets,
		Long: `Manage named charge parameter presets.

A preset is a saved set of charge parameters. Applying one loads it into the
form, and can start charging right away. Presets can be exported to and
imported from YAML files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPresetList(cmd)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List presets",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runPresetList(cmd)
			},
		},
		newPresetSaveCommand(),
		newPresetApplyCommand(),
		&cobra.Command{
			Use:   "delete NAME",
			Short: "Delete a preset",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				if err := apiClient.DeletePreset(args[0]); err != nil {
					return err
				}
				logrus.Infof("preset %s deleted", args[0])
				return nil
			},
		},
		newPresetExportCommand(),
		newPresetImportCommand(),
	)

	return cmd
}

func runPresetList(cmd *cobra.Command) error {
	list, err := apiClient.ListPresets()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		cmd.Println("No presets saved. Save the current parameters with \"chargeguru preset save NAME\".")
		return nil
	}
	for _, p := range list {
		mode := ""
		if p.Form.Mode != nil {
			mode = p.Form.Mode.String()
		}
		cmd.Printf("%s  %s %s, %d cell(s)  %s\n", bold("%-20s", p.Name), p.Form.BatteryType, mode, p.Form.CellCount, p.UpdatedAt.Local().Format(time.DateTime))
		if p.Description != "" {
			cmd.Printf("    %s\n", p.Description)
		}
	}
	return nil
}

func newPresetSaveCommand() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "save NAME",
		Short: "Save the current charge parameters as a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			p, err := apiClient.SavePreset(args[0], description, nil)
			if err != nil {
				return err
			}
			logrus.WithField("battery", p.Form.BatteryType.String()).Infof("preset %s saved", p.Name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "what the preset is for")

	return cmd
}

func newPresetApplyCommand() *cobra.Command {
	var start bool

	cmd := &cobra.Command{
		Use:   "apply NAME",
		Short: "Load a preset into the charge parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := apiClient.ApplyPreset(args[0], start)
			if err != nil {
				return err
			}
			if start {
				logrus.Infof("preset %s applied, charging started", args[0])
			} else {
				logrus.Infof("preset %s applied", args[0])
			}
			printForm(cmd, f)
			return nil
		},
	}

	cmd.Flags().BoolVar(&start, "start", false, "start charging after applying")

	return cmd
}

func newPresetExportCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export [NAME...]",
		Short: "Export presets as YAML",
		Long:  "Export presets as YAML. Without names every preset is exported.",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := apiClient.ListPresets()
			if err != nil {
				return err
			}
			if len(args) > 0 {
				list, err = pickPresets(list, args)
				if err != nil {
					return err
				}
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := presets.Export(w, list); err != nil {
				return fmt.Errorf("failed to export presets: %w", err)
			}
			if output != "-" {
				logrus.Infof("%d preset(s) exported to %s", len(list), output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file, - for stdout")

	return cmd
}

func pickPresets(list []presets.Preset, names []string) ([]presets.Preset, error) {
	byName := make(map[string]presets.Preset, len(list))
	for _, p := range list {
		byName[p.Name] = p
	}
	out := make([]presets.Preset, 0, len(names))
	for _, n := range names {
		p, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("preset %s: %w", n, presets.ErrNotFound)
		}
		out = append(out, p)
	}
	return out, nil
}

func newPresetImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import presets from a YAML file",
		Long:  "Import presets from a YAML file, - for stdin. Presets with the same name are replaced.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			list, err := presets.Import(r)
			if err != nil {
				return err
			}
			for _, p := range list {
				state := p.Form
				if _, err := apiClient.SavePreset(p.Name, p.Description, &state); err != nil {
					return err
				}
				logrus.Infof("preset %s imported", p.Name)
			}
			return nil
		},
	}
	return cmd
}
