package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/spf13/cobra"
	"github.com/swdee/go-planktrack"
	"github.com/swdee/go-planktrack/counter"
	"github.com/swdee/go-planktrack/detect"
	"github.com/swdee/go-planktrack/export"
	"github.com/swdee/go-planktrack/metrics"
	"github.com/swdee/go-planktrack/pipeline"
	"github.com/swdee/go-planktrack/server"
	"github.com/swdee/go-planktrack/source"
	"github.com/swdee/go-planktrack/store"
	"go.uber.org/multierr"
	"io"
	"os"
	"path/filepath"
	"time"
)

func runCommand(a *app) *cobra.Command {

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Detect, track and count organisms from a video, camera or image",
		Long: "Run counts each organism once as it passes through the field of view.\n" +
			"Keys in the display window and the dashboard accept q to quit, r to\n" +
			"reset the counts and s to save a snapshot.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.StringP("source", "s", "", "Video file, image file or camera device index")
	f.String("model", "", "YOLOv8 ONNX model file")
	f.String("labels", "", "Model labels file, one class per line")
	f.Float32("confidence", 0, "Minimum detection confidence")
	f.StringSlice("classes", nil, "Only count these classes")
	f.Bool("tiled", false, "Detect on overlapping tiles of large frames")
	f.Int("grace-period", 0, "Frames a track may be missing before it is inactive")
	f.String("label-policy", "", "Class of a track: first or majority")
	f.Bool("display", false, "Show the annotated frames in a window")
	f.String("video-out", "", "Write the annotated video to this file")
	f.String("export-dir", "", "Directory for the counts, tracks and report")
	f.String("dump", "", "Record detections as JSON lines for replay")
	f.String("http", "", "Dashboard listen address, eg: :8080")
	f.Int("max-frames", 0, "Stop after this many frames")
	f.String("location", "", "Sampling location stored with the session")
	f.Float64("flow-rate", 0, "Pump flow rate in mL/min for concentration")

	a.bindFlags(cmd, map[string]string{
		"source":       "source",
		"model":        "model.path",
		"labels":       "model.labels",
		"confidence":   "model.confidence",
		"classes":      "model.classes",
		"tiled":        "model.tiled",
		"grace-period": "counter.grace_period",
		"label-policy": "counter.label_policy",
		"display":      "display",
		"video-out":    "output.video",
		"export-dir":   "output.export_dir",
		"dump":         "output.dump_detections",
		"http":         "http.addr",
		"max-frames":   "max_frames",
		"location":     "session.location",
		"flow-rate":    "session.flow_rate",
	})

	return cmd
}

func (a *app) run(ctx context.Context) (err error) {

	cfg := a.cfg

	if cfg.Source == "" {
		return errors.New("no source given, use --source or set source in the config")
	}

	labels, err := planktrack.LoadLabels(cfg.Model.Labels)

	if err != nil {
		return err
	}

	src, err := source.Open(cfg.Source)

	if err != nil {
		return err
	}

	defer func() {
		err = multierr.Append(err, src.Close())
	}()

	opts := detect.DefaultYOLOOptions()
	opts.Model = cfg.Model.Path
	opts.Labels = labels
	opts.InputWidth = cfg.Model.InputWidth
	opts.InputHeight = cfg.Model.InputHeight
	opts.Confidence = cfg.Model.Confidence
	opts.NMS = cfg.Model.NMS
	opts.Classes = cfg.Model.Classes
	opts.Backend = cfg.Model.Backend
	opts.Target = cfg.Model.Target
	opts.Tiled = cfg.Model.Tiled
	opts.TileOverlap = cfg.Model.TileOverlap

	det, err := detect.NewYOLO(opts)

	if err != nil {
		return err
	}

	defer func() {
		err = multierr.Append(err, det.Close())
	}()

	env, err := a.newEnv(labels, true)

	if err != nil {
		return err
	}

	defer func() {
		err = multierr.Append(err, env.close())
	}()

	env.opts.Source = src
	env.opts.Detector = det
	env.opts.Display = cfg.Display
	env.opts.VideoOut = cfg.Output.Video
	env.opts.Session.Source = src.Info().Name
	env.opts.Session.Model = filepath.Base(cfg.Model.Path)

	p := pipeline.New(env.opts)

	if cfg.HTTP.Addr != "" {
		srv := server.New(p, env.opts.Metrics, env.opts.Store, a.log)

		if err := srv.Start(cfg.HTTP.Addr); err != nil {
			return err
		}

		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = multierr.Append(err, srv.Stop(sctx))
		}()
	}

	res, err := p.Run(ctx)
	a.report(os.Stdout, res)

	return err
}

// env is the pipeline options with the resources the commands open
type env struct {
	opts pipeline.Options
	dump *export.DetectionDump
}

// newEnv opens the exporter, session store and, when dump is set and
// configured, the detection dump
func (a *app) newEnv(labels []string, dump bool) (*env, error) {

	cfg := a.cfg

	exp, err := export.NewExporter(cfg.Output.ExportDir)

	if err != nil {
		return nil, err
	}

	e := &env{
		opts: pipeline.Options{
			Tracker: cfg.Tracker,
			Counter: counter.Config{
				GracePeriod: cfg.Counter.GracePeriod,
				LabelPolicy: cfg.LabelPolicy(),
			},
			Labels:            labels,
			Logger:            a.log,
			Metrics:           metrics.New(),
			Exporter:          exp,
			SnapshotDir:       cfg.Output.SnapshotDir,
			MaxFrames:         cfg.MaxFrames,
			MaxDetectorErrors: cfg.MaxDetectorErrors,
			TrailLength:       cfg.Output.TrailLength,
			JPEGQuality:       cfg.HTTP.JPEGQuality,
			Session: export.Session{
				Location:       cfg.Session.Location,
				FlowRate:       cfg.Session.FlowRate,
				BloomThreshold: cfg.Session.BloomThreshold,
			},
		},
	}

	if cfg.Database != "" {
		st, err := store.Open(cfg.Database)

		if err != nil {
			return nil, err
		}

		e.opts.Store = st
	}

	if dump && cfg.Output.DumpDetections != "" {
		d, err := export.CreateDetectionDump(cfg.Output.DumpDetections)

		if err != nil {
			return nil, multierr.Append(err, e.close())
		}

		e.dump = d
		e.opts.Dump = d
	}

	return e, nil
}

func (e *env) close() error {

	var err error

	if e.dump != nil {
		err = multierr.Append(err, e.dump.Close())
	}

	if e.opts.Store != nil {
		err = multierr.Append(err, e.opts.Store.Close())
	}

	return err
}

// report prints the summary of a finished run to w
func (a *app) report(w io.Writer, res pipeline.Result) {

	if res.Reason == "" {
		return
	}

	fmt.Fprintln(w)

	if err := export.WriteSummary(w, res.Report); err != nil {
		a.log.Warn("error printing summary", "error", err)
	}

	if res.Files.Counts != "" {
		fmt.Fprintf(w, "Results saved to %s\n", filepath.Dir(res.Files.Counts))
	}

	a.log.Info("run finished", "reason", res.Reason, "frames", res.Frames,
		"unique", res.Statistics.TotalUnique, "session", res.SessionID)
}
