// Package export writes the results of a counting session to disk as CSV,
// JSON and a human readable summary.
package export

import (
	"github.com/swdee/go-planktrack/counter"
	"time"
)

// Session describes the run the statistics came from
type Session struct {
	ID       string
	Source   string
	Model    string
	Location string
	Started  time.Time
	// FlowRate is the pump flow rate in mL/min, zero when unknown
	FlowRate float64
	// BloomThreshold is the share (0..1) of unique organisms a single class
	// must reach to be reported as a bloom, zero disables the check
	BloomThreshold float64
}

// Bloom is a class dominating the sample
type Bloom struct {
	Class string  `json:"class"`
	Share float64 `json:"share"`
}

// Metadata is the run information written alongside the counts
type Metadata struct {
	SessionID       string            `json:"session_id"`
	Source          string            `json:"source"`
	Model           string            `json:"model"`
	Location        string            `json:"location"`
	StartedAt       time.Time         `json:"started_at"`
	DurationSeconds float64           `json:"duration_seconds"`
	Frames          int               `json:"frames"`
	AverageFPS      float64           `json:"average_fps"`
	FlowRateMLMin   float64           `json:"flow_rate_ml_min"`
	VolumeML        float64           `json:"volume_ml"`
	Concentration   float64           `json:"concentration_per_ml"`
	Diversity       counter.Diversity `json:"diversity"`
	Bloom           *Bloom            `json:"bloom"`
}

// Report is the JSON export of a session
type Report struct {
	Total    int            `json:"total"`
	Counts   map[string]int `json:"counts"`
	Metadata Metadata       `json:"metadata"`
}

// NewReport builds the report for the statistics of a session
func NewReport(stats counter.RunStatistics, sess Session) Report {

	secs := stats.Elapsed.Seconds()

	meta := Metadata{
		SessionID:       sess.ID,
		Source:          sess.Source,
		Model:           sess.Model,
		Location:        sess.Location,
		StartedAt:       sess.Started,
		DurationSeconds: secs,
		Frames:          stats.FramesProcessed,
		FlowRateMLMin:   sess.FlowRate,
		Diversity:       stats.Diversity(),
	}

	if secs > 0 {
		meta.AverageFPS = float64(stats.FramesProcessed) / secs
	}

	// volume pumped through the flow cell while counting
	meta.VolumeML = sess.FlowRate * secs / 60

	if meta.VolumeML > 0 {
		meta.Concentration = float64(stats.TotalUnique) / meta.VolumeML
	}

	if sess.BloomThreshold > 0 {
		if top, ok := stats.Dominant(sess.BloomThreshold); ok {
			meta.Bloom = &Bloom{
				Class: top.Label,
				Share: top.Percent / 100,
			}
		}
	}

	counts := make(map[string]int, len(stats.UniqueByClass))

	for k, v := range stats.UniqueByClass {
		counts[k] = v
	}

	return Report{
		Total:    stats.TotalUnique,
		Counts:   counts,
		Metadata: meta,
	}
}
