package export

import (
	"encoding/json"
	"fmt"
	"github.com/swdee/go-planktrack/counter"
	"github.com/swdee/go-planktrack/detect"
	"go.uber.org/multierr"
	"io"
	"os"
	"path/filepath"
)

const (
	CountsFile  = "counts.csv"
	TracksFile  = "tracks.csv"
	ReportFile  = "report.json"
	SummaryFile = "summary.txt"
)

// Files are the paths written by an export
type Files struct {
	Counts  string
	Tracks  string
	Report  string
	Summary string
}

// Exporter writes session results into a directory
type Exporter struct {
	dir string
}

// NewExporter returns an Exporter writing into dir, which is created when
// missing
func NewExporter(dir string) (*Exporter, error) {

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating export directory: %w", err)
	}

	return &Exporter{dir: dir}, nil
}

// Dir returns the export directory
func (e *Exporter) Dir() string {
	return e.dir
}

// Export writes all result files for the session.  A prefix, such as a
// snapshot timestamp, is prepended to each file name when not empty.
func (e *Exporter) Export(prefix string, stats counter.RunStatistics,
	records []counter.TrackRecord, sess Session) (Files, Report, error) {

	rep := NewReport(stats, sess)

	name := func(base string) string {
		if prefix == "" {
			return filepath.Join(e.dir, base)
		}
		return filepath.Join(e.dir, prefix+"_"+base)
	}

	files := Files{
		Counts:  name(CountsFile),
		Tracks:  name(TracksFile),
		Report:  name(ReportFile),
		Summary: name(SummaryFile),
	}

	err := multierr.Combine(
		writeFile(files.Counts, func(w io.Writer) error { return WriteCounts(w, stats) }),
		writeFile(files.Tracks, func(w io.Writer) error { return WriteTracks(w, records) }),
		writeFile(files.Report, func(w io.Writer) error { return WriteReport(w, rep) }),
		writeFile(files.Summary, func(w io.Writer) error { return WriteSummary(w, rep) }),
	)

	return files, rep, err
}

// writeFile creates file and fills it with fn
func writeFile(file string, fn func(io.Writer) error) error {

	f, err := os.Create(file)

	if err != nil {
		return fmt.Errorf("error creating %s: %w", file, err)
	}

	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("error writing %s: %w", file, err)
	}

	return f.Close()
}

// DetectionDump records each frame's detections as JSON lines so the run
// can be recounted later with detect.Replay
type DetectionDump struct {
	w   io.WriteCloser
	enc *json.Encoder
}

// CreateDetectionDump opens a new dump file
func CreateDetectionDump(file string) (*DetectionDump, error) {

	f, err := os.Create(file)

	if err != nil {
		return nil, fmt.Errorf("error creating detection dump: %w", err)
	}

	return NewDetectionDump(f), nil
}

// NewDetectionDump writes a dump to w
func NewDetectionDump(w io.WriteCloser) *DetectionDump {
	return &DetectionDump{
		w:   w,
		enc: json.NewEncoder(w),
	}
}

// Write appends the detections of one frame
func (d *DetectionDump) Write(frame int, obs []counter.Observation) error {
	return d.enc.Encode(detect.NewRecord(frame, obs))
}

// Close closes the underlying writer
func (d *DetectionDump) Close() error {
	return d.w.Close()
}
