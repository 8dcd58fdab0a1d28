package main

import (
	"context"
	"github.com/spf13/cobra"
	"github.com/swdee/go-planktrack"
	"github.com/swdee/go-planktrack/detect"
	"github.com/swdee/go-planktrack/pipeline"
	"go.uber.org/multierr"
	"os"
	"path/filepath"
)

func replayCommand(a *app) *cobra.Command {

	cmd := &cobra.Command{
		Use:   "replay <detections.jsonl>",
		Short: "Recount a recorded detection dump with the current tracker and counter settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.replay(cmd.Context(), args[0])
		},
	}

	f := cmd.Flags()
	f.Int("grace-period", 0, "Frames a track may be missing before it is inactive")
	f.String("label-policy", "", "Class of a track: first or majority")
	f.String("export-dir", "", "Directory for the counts, tracks and report")
	f.String("location", "", "Sampling location stored with the session")
	f.Float64("flow-rate", 0, "Pump flow rate in mL/min for concentration")

	a.bindFlags(cmd, map[string]string{
		"grace-period": "counter.grace_period",
		"label-policy": "counter.label_policy",
		"export-dir":   "output.export_dir",
		"location":     "session.location",
		"flow-rate":    "session.flow_rate",
	})

	return cmd
}

func (a *app) replay(ctx context.Context, file string) (err error) {

	rp, err := detect.LoadReplay(file)

	if err != nil {
		return err
	}

	// labels only colour the overlay so a missing file is not an error
	var labels []string

	if _, serr := os.Stat(a.cfg.Model.Labels); serr == nil {
		if labels, err = planktrack.LoadLabels(a.cfg.Model.Labels); err != nil {
			return err
		}
	}

	env, err := a.newEnv(labels, false)

	if err != nil {
		return err
	}

	defer func() {
		err = multierr.Append(err, env.close())
	}()

	env.opts.Session.Source = filepath.Base(file)
	env.opts.Session.Model = "replay"

	a.log.Info("replaying detections", "file", file, "frames", len(rp.Frames()))

	res, err := pipeline.New(env.opts).Replay(ctx, rp)
	a.report(os.Stdout, res)

	return err
}
