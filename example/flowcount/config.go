package main

import (
	"fmt"
	"github.com/spf13/cobra"
	"github.com/swdee/go-planktrack/config"
	"gopkg.in/yaml.v3"
	"os"
)

func configCommand(a *app) *cobra.Command {

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	initCmd := &cobra.Command{
		Use:         "init [file]",
		Short:       "Write the default configuration",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {

			file := "planktrack.yaml"

			if len(args) == 1 {
				file = args[0]
			}

			if err := config.WriteDefault(file); err != nil {
				return err
			}

			fmt.Printf("Default configuration written to %s\n", file)

			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the configuration after files, environment and flags are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)

			if err := enc.Encode(a.cfg); err != nil {
				return err
			}

			return enc.Close()
		},
	}

	cmd.AddCommand(initCmd, showCmd)

	return cmd
}
