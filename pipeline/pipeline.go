// Package pipeline runs the frame loop of the flow counter: read a frame,
// detect organisms, track them, count unique tracks and render the overlay.
// Frames are processed one at a time on the goroutine calling Run, other
// goroutines interact through Send, Statistics and Subscribe.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/swdee/go-planktrack/counter"
	"github.com/swdee/go-planktrack/detect"
	"github.com/swdee/go-planktrack/export"
	"github.com/swdee/go-planktrack/logger"
	"github.com/swdee/go-planktrack/metrics"
	"github.com/swdee/go-planktrack/render"
	"github.com/swdee/go-planktrack/source"
	"github.com/swdee/go-planktrack/store"
	"github.com/swdee/go-planktrack/tracker"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"
	"io"
	"path/filepath"
	"sync/atomic"
	"time"
)

var (
	// ErrSourceFailed is returned by Run when frames can no longer be read
	ErrSourceFailed = errors.New("frame source failed")
	// ErrDetectorFailed is returned by Run when detection failed on more
	// consecutive frames than allowed
	ErrDetectorFailed = errors.New("detector failed")
)

// Stop reasons reported in Result
const (
	ReasonEndOfStream = "end of stream"
	ReasonQuit        = "quit"
	ReasonMaxFrames   = "max frames"
	ReasonCancelled   = "cancelled"
	ReasonFailed      = "failed"
)

// commandQueueSize is the number of commands that can wait for the loop
const commandQueueSize = 16

// Options configure a Pipeline
type Options struct {
	// Source provides frames to Run, not needed for Replay
	Source source.Source
	// Detector finds organisms in each frame, not needed for Replay
	Detector detect.Detector
	Tracker  tracker.Config
	Counter  counter.Config
	// Labels are the model classes, used to give each species a colour
	Labels []string
	Logger *logger.Logger
	// Metrics, Exporter, Store and Dump are optional
	Metrics  *metrics.Metrics
	Exporter *export.Exporter
	Store    *store.Store
	Dump     *export.DetectionDump
	Session  export.Session
	// SnapshotDir receives snapshot images and exports
	SnapshotDir string
	// VideoOut is the annotated output video, empty disables it
	VideoOut string
	// Display shows the annotated frames in a window with keyboard
	// commands
	Display bool
	// MaxFrames stops the run after this many frames, zero for no limit
	MaxFrames int
	// MaxDetectorErrors is the number of consecutive detector failures
	// tolerated, each failed frame is skipped
	MaxDetectorErrors int
	// TrailLength is the number of centre points kept per track
	TrailLength int
	// JPEGQuality of streamed and snapshot frames
	JPEGQuality int
	// Clock is used for session times, nil uses the wall clock
	Clock clock.Clock
}

// Result summarises a finished run
type Result struct {
	Statistics counter.RunStatistics
	Report     export.Report
	// Files are the exported files, empty when no Exporter was set
	Files export.Files
	// SessionID is the ID the session was stored under
	SessionID string
	Frames    int
	Reason    string
}

// Pipeline owns the tracker and aggregator of one frame source
type Pipeline struct {
	opts  Options
	log   *logger.Logger
	clock clock.Clock

	agg     *counter.Aggregator
	track   *tracker.Adapter
	trail   *tracker.Trail
	palette *render.Palette

	commands chan Command
	stats    atomic.Pointer[counter.RunStatistics]
	frames   *broadcaster

	session export.Session
	// annotated is the last rendered frame, used for snapshots
	annotated gocv.Mat
	writer    *gocv.VideoWriter
	window    *gocv.Window
	snapshots *export.Exporter
}

// New returns a Pipeline for the options
func New(opts Options) *Pipeline {

	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}

	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	if opts.Counter.Clock == nil {
		opts.Counter.Clock = opts.Clock
	}

	if opts.TrailLength <= 0 {
		opts.TrailLength = 30
	}

	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 80
	}

	p := &Pipeline{
		opts:     opts,
		log:      opts.Logger,
		clock:    opts.Clock,
		agg:      counter.New(opts.Counter),
		track:    tracker.NewAdapter(opts.Tracker),
		trail:    tracker.NewTrail(opts.TrailLength),
		palette:  render.NewPalette(opts.Labels),
		commands: make(chan Command, commandQueueSize),
		frames:   newBroadcaster(),
		session:  opts.Session,
	}

	p.newSession()
	p.publish(p.agg.Statistics())

	return p
}

// newSession starts the session clock and assigns an ID when missing
func (p *Pipeline) newSession() {

	if p.session.ID == "" {
		p.session.ID = uuid.NewString()
	}

	p.session.Started = p.clock.Now()
	p.log = p.opts.Logger.With("session", p.session.ID)
}

// Send queues a command for the frame loop
func (p *Pipeline) Send(cmd Command) error {
	select {
	case p.commands <- cmd:
		return nil
	default:
		return ErrCommandQueueFull
	}
}

// Statistics returns the snapshot published after the last frame
func (p *Pipeline) Statistics() counter.RunStatistics {
	return *p.stats.Load()
}

// Session returns the current session details
func (p *Pipeline) Session() export.Session {
	return p.session
}

// Subscribe returns a channel receiving each annotated frame as a JPEG
func (p *Pipeline) Subscribe() (int, <-chan []byte) {
	return p.frames.subscribe()
}

// Unsubscribe stops frames being sent to the subscriber
func (p *Pipeline) Unsubscribe(id int) {
	p.frames.unsubscribe(id)
}

func (p *Pipeline) publish(stats counter.RunStatistics) {
	p.stats.Store(&stats)

	if p.opts.Metrics != nil {
		p.opts.Metrics.ObserveStats(stats)
	}
}

// Run processes frames until the stream ends, Quit is sent, MaxFrames is
// reached or ctx is cancelled.  The counts are exported and the session
// stored in every case.  A source failure, or too many detector failures,
// returns the partial Result with an error wrapping ErrSourceFailed or
// ErrDetectorFailed.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {

	if p.opts.Source == nil || p.opts.Detector == nil {
		return Result{}, errors.New("pipeline needs a source and a detector")
	}

	p.annotated = gocv.NewMat()

	img := gocv.NewMat()

	defer func() {
		if err := p.teardown(img); err != nil {
			p.log.Warn("error releasing resources", "error", err)
		}
	}()

	info := p.opts.Source.Info()
	p.log.Info("counting started", "source", info.Name, "kind", info.Kind.String(),
		"width", info.Width, "height", info.Height, "fps", info.FPS)

	if p.opts.Display {
		p.window = gocv.NewWindow("Plankton Flow Tracker")
	}

	frameIndex := 0
	failures := 0
	reason := ReasonEndOfStream

	var runErr error

loop:
	for {
		if ctx.Err() != nil {
			reason = ReasonCancelled
			break
		}

		if p.drainCommands(&img) {
			reason = ReasonQuit
			break
		}

		if p.opts.MaxFrames > 0 && frameIndex >= p.opts.MaxFrames {
			reason = ReasonMaxFrames
			break
		}

		start := p.clock.Now()
		err := p.opts.Source.Read(&img)
		p.observe(metrics.StageRead, start)

		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			p.log.Error("frame read failed", err, "frame", frameIndex)
			p.inc(func(m *metrics.Metrics) { m.SourceErrors.Inc() })
			runErr = fmt.Errorf("%w: %w", ErrSourceFailed, err)
			reason = ReasonFailed
			break
		}

		start = p.clock.Now()
		obs, err := p.opts.Detector.Detect(frameIndex, img)
		inference := p.clock.Since(start)
		p.observe(metrics.StageDetect, start)

		if err != nil {
			failures++
			p.log.Error("detection failed, frame skipped", err, "frame", frameIndex,
				"consecutive", failures)
			p.inc(func(m *metrics.Metrics) { m.DetectorErrors.Inc() })

			if failures > p.opts.MaxDetectorErrors {
				runErr = fmt.Errorf("%w: %d consecutive failures: %w",
					ErrDetectorFailed, failures, err)
				reason = ReasonFailed
				break
			}

			frameIndex++
			continue
		}

		failures = 0

		if p.opts.Dump != nil {
			if err := p.opts.Dump.Write(frameIndex, obs); err != nil {
				p.log.Warn("error writing detection dump", "error", err)
			}
		}

		tracks, err := p.step(frameIndex, obs)

		if err != nil {
			runErr = err
			reason = ReasonFailed
			break
		}

		start = p.clock.Now()
		p.annotate(img, tracks, render.PanelInfo{
			Frame:       frameIndex,
			TotalFrames: info.Frames,
			Inference:   inference,
		})
		p.observe(metrics.StageRender, start)

		if err := p.output(info); err != nil {
			p.log.Warn("error writing annotated frame", "error", err)
		}

		if p.window != nil {
			p.window.IMShow(p.annotated)

			if cmd, ok := KeyCommand(p.window.WaitKey(1)); ok {
				if cmd == Quit {
					reason = ReasonQuit
					frameIndex++
					break loop
				}
				p.handle(cmd, &img)
			}
		}

		frameIndex++
	}

	res, err := p.finish(ctx, reason, frameIndex)

	return res, multierr.Append(runErr, err)
}

// Replay runs the tracker and aggregator over recorded detections without
// any frames.  Commands are handled between frames as in Run.
func (p *Pipeline) Replay(ctx context.Context, r *detect.Replay) (Result, error) {

	defer p.frames.close()

	reason := ReasonEndOfStream
	frames := 0

	for _, frameIndex := range r.Frames() {

		if ctx.Err() != nil {
			reason = ReasonCancelled
			break
		}

		if p.drainCommands(nil) {
			reason = ReasonQuit
			break
		}

		if p.opts.MaxFrames > 0 && frames >= p.opts.MaxFrames {
			reason = ReasonMaxFrames
			break
		}

		if _, err := p.step(frameIndex, r.Observations(frameIndex)); err != nil {
			res, ferr := p.finish(ctx, ReasonFailed, frames)
			return res, multierr.Append(err, ferr)
		}

		frames++
	}

	return p.finish(ctx, reason, frames)
}

// step tracks and counts the observations of one frame and returns the
// tracks to draw
func (p *Pipeline) step(frameIndex int, obs []counter.Observation) ([]render.Track, error) {

	start := p.clock.Now()
	tracked, err := p.track.Track(frameIndex, obs)
	p.observe(metrics.StageTrack, start)

	if err != nil {
		return nil, fmt.Errorf("error tracking frame %d: %w", frameIndex, err)
	}

	start = p.clock.Now()

	tracks := make([]render.Track, len(tracked))

	for i, t := range tracked {
		_, seen := p.agg.Record(t.TrackID)
		tracks[i] = render.Track{TrackedObservation: t, New: !seen}
	}

	if err := p.agg.IngestFrame(frameIndex, tracked); err != nil {
		return nil, fmt.Errorf("error counting frame %d: %w", frameIndex, err)
	}

	p.observe(metrics.StageCount, start)

	for i, t := range tracked {
		p.trail.Add(t)
		tracks[i].Direction = p.trail.Direction(t.TrackID)

		// draw under the class the track is counted as
		if rec, ok := p.agg.Record(t.TrackID); ok {
			tracks[i].Label = rec.Label
		}
	}

	p.trail.Prune(p.track.LiveIDs())

	stats := p.agg.Statistics()
	p.publish(stats)

	p.inc(func(m *metrics.Metrics) {
		m.FramesProcessed.Inc()
		m.Detections.Add(float64(len(obs)))
	})

	for _, t := range tracks {
		if t.New {
			p.log.Debug("organism counted", "frame", frameIndex, "track", t.TrackID,
				"class", t.Label, "confidence", t.Confidence)
		}
	}

	return tracks, nil
}

// annotate draws the overlay onto a copy of the frame
func (p *Pipeline) annotate(img gocv.Mat, tracks []render.Track, info render.PanelInfo) {

	img.CopyTo(&p.annotated)

	font := render.DefaultFont()

	render.Trail(&p.annotated, tracks, p.trail, p.palette, render.DefaultTrailStyle())
	render.TrackerBoxes(&p.annotated, tracks, p.palette, font)
	render.StatsPanel(&p.annotated, p.Statistics(), info, render.DefaultPanelStyle())
}

// output sends the annotated frame to the video file and stream clients
func (p *Pipeline) output(info source.Info) error {

	var err error

	if p.opts.VideoOut != "" {
		if p.writer == nil {
			fps := info.FPS

			if fps <= 0 {
				fps = 30
			}

			p.writer, err = gocv.VideoWriterFile(p.opts.VideoOut, "mp4v", fps,
				p.annotated.Cols(), p.annotated.Rows(), true)

			if err != nil {
				file := p.opts.VideoOut
				// give up on the video rather than failing every frame
				p.opts.VideoOut = ""
				return fmt.Errorf("error creating video %s: %w", file, err)
			}
		}

		err = p.writer.Write(p.annotated)
	}

	if p.frames.active() {
		buf, jerr := p.encode()

		if jerr != nil {
			return multierr.Append(err, jerr)
		}

		p.frames.publish(buf)
	}

	return err
}

// encode returns the annotated frame as a JPEG
func (p *Pipeline) encode() ([]byte, error) {

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, p.annotated,
		[]int{int(gocv.IMWriteJpegQuality), p.opts.JPEGQuality})

	if err != nil {
		return nil, fmt.Errorf("error encoding frame: %w", err)
	}

	defer buf.Close()

	// the native buffer is freed on close
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())

	return out, nil
}

// drainCommands handles queued commands and reports whether Quit was
// among them
func (p *Pipeline) drainCommands(img *gocv.Mat) bool {
	for {
		select {
		case cmd := <-p.commands:
			if cmd == Quit {
				p.log.Info("quit requested")
				return true
			}
			p.handle(cmd, img)

		default:
			return false
		}
	}
}

// handle runs a ResetCounts or SaveSnapshot command
func (p *Pipeline) handle(cmd Command, img *gocv.Mat) {

	switch cmd {
	case ResetCounts:
		prev := p.agg.Statistics()

		p.agg.Reset()
		p.track.Reset()
		p.trail.Reset()
		p.session.ID = ""
		p.newSession()
		p.publish(p.agg.Statistics())
		p.inc(func(m *metrics.Metrics) { m.Resets.Inc() })

		p.log.Info("counts reset", "discarded_total", prev.TotalUnique,
			"frames", prev.FramesProcessed)

	case SaveSnapshot:
		if err := p.snapshot(img); err != nil {
			p.log.Error("snapshot failed", err)
			return
		}
		p.inc(func(m *metrics.Metrics) { m.Snapshots.Inc() })

	default:
		p.log.Warn("unknown command ignored", "command", cmd.String())
	}
}

// snapshot saves an export of the current counts and, when img is not nil,
// the last annotated frame
func (p *Pipeline) snapshot(img *gocv.Mat) error {

	if p.opts.SnapshotDir == "" {
		return errors.New("no snapshot directory configured")
	}

	if p.snapshots == nil {
		exp, err := export.NewExporter(p.opts.SnapshotDir)

		if err != nil {
			return err
		}

		p.snapshots = exp
	}

	stats := p.agg.Statistics()
	prefix := fmt.Sprintf("snapshot_%s_%06d",
		p.clock.Now().Format("20060102_150405"), stats.CurrentFrame)

	files, _, err := p.snapshots.Export(prefix, stats, p.agg.Records(), p.session)

	if err != nil {
		return err
	}

	fields := []any{"counts", files.Counts, "total", stats.TotalUnique}

	if img != nil && !p.annotated.Empty() {
		file := filepath.Join(p.snapshots.Dir(), prefix+".jpg")

		if ok := gocv.IMWrite(file, p.annotated); !ok {
			return fmt.Errorf("error writing snapshot image %s", file)
		}

		fields = append(fields, "image", file)
	}

	p.log.Info("snapshot saved", fields...)

	return nil
}

// finish exports the counts and stores the session
func (p *Pipeline) finish(ctx context.Context, reason string, frames int) (Result, error) {

	stats := p.agg.Statistics()
	p.publish(stats)

	res := Result{
		Statistics: stats,
		Frames:     frames,
		Reason:     reason,
	}

	var err error

	// results are still saved when the run was cancelled
	ctx = context.WithoutCancel(ctx)

	if p.opts.Exporter != nil {
		var eerr error
		res.Files, res.Report, eerr = p.opts.Exporter.Export("", stats, p.agg.Records(), p.session)

		if eerr != nil {
			err = multierr.Append(err, fmt.Errorf("error exporting results: %w", eerr))
		}
	} else {
		res.Report = export.NewReport(stats, p.session)
	}

	if p.opts.Store != nil {
		id, serr := p.opts.Store.SaveSession(ctx, res.Report)

		if serr != nil {
			err = multierr.Append(err, fmt.Errorf("error storing session: %w", serr))
		}

		res.SessionID = id
	}

	p.log.Info("counting finished", "reason", reason, "frames", frames,
		"unique", stats.TotalUnique, "elapsed", stats.Elapsed)

	return res, err
}

// teardown releases everything Run created
func (p *Pipeline) teardown(img gocv.Mat) error {

	p.frames.close()

	err := multierr.Combine(
		img.Close(),
		p.annotated.Close(),
	)

	if p.writer != nil {
		err = multierr.Append(err, p.writer.Close())
	}

	if p.window != nil {
		err = multierr.Append(err, p.window.Close())
	}

	return err
}

// observe records the duration of a stage since start
func (p *Pipeline) observe(stage string, start time.Time) {
	if p.opts.Metrics != nil {
		p.opts.Metrics.ObserveStage(stage, p.clock.Since(start))
	}
}

// inc updates metrics when they are enabled
func (p *Pipeline) inc(fn func(*metrics.Metrics)) {
	if p.opts.Metrics != nil {
		fn(p.opts.Metrics)
	}
}
