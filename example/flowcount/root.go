package main

import (
	"fmt"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/swdee/go-planktrack/config"
	"github.com/swdee/go-planktrack/logger"
)

// skipConfig marks commands that run without loading the configuration
const skipConfig = "skip-config"

// app holds the state shared by the sub commands
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
	// bindings are the config keys of each command's flags, bound only for
	// the command being run as commands share keys
	bindings map[*cobra.Command]map[string]string
}

func rootCommand(v *viper.Viper) *cobra.Command {

	a := &app{
		v:        v,
		bindings: make(map[*cobra.Command]map[string]string),
	}

	root := &cobra.Command{
		Use:           "flowcount",
		Short:         "Count unique plankton in flow cell footage",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "",
		"YAML config file, PLANKTRACK_ environment variables override it")
	root.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")
	root.PersistentFlags().String("log-format", "console", "Log format: console or json")

	bind(v, root.PersistentFlags(), map[string]string{
		"log-level":  "log.level",
		"log-format": "log.format",
	})

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {

		if _, ok := cmd.Annotations[skipConfig]; ok {
			return nil
		}

		if keys, ok := a.bindings[cmd]; ok {
			bind(a.v, cmd.Flags(), keys)
		}

		return a.load()
	}

	root.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if a.log != nil {
			a.log.Sync()
		}
	}

	root.AddCommand(
		runCommand(a),
		replayCommand(a),
		historyCommand(a),
		configCommand(a),
	)

	return root
}

// load reads the configuration and creates the logger
func (a *app) load() error {

	cfg, err := config.Load(a.v, a.cfgFile)

	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)

	if err != nil {
		return fmt.Errorf("error creating logger: %w", err)
	}

	a.cfg = cfg
	a.log = log

	return nil
}

// bindFlags records the config keys of cmd's flags
func (a *app) bindFlags(cmd *cobra.Command, keys map[string]string) {
	a.bindings[cmd] = keys
}

// bind maps flag names to config keys
func bind(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for flag, key := range keys {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", flag, err))
		}
	}
}
