package counter

import (
	"github.com/benbjohnson/clock"
	"time"
)

// Config defines the counting policy of an Aggregator
type Config struct {
	// GracePeriod is the number of consecutive ingested frames a track may
	// be absent before it is marked inactive.  Zero deactivates a track as
	// soon as it is missing from a frame.
	GracePeriod int
	// LabelPolicy decides the class a track is counted under
	LabelPolicy LabelPolicy
	// Clock is used to measure elapsed processing time, nil uses the
	// wall clock
	Clock clock.Clock
}

// Aggregator turns a per-frame stream of tracked observations into
// de-duplicated organism counts.  Every track ID contributes exactly once to
// the unique counts no matter how many frames it appears in.
//
// An Aggregator is not safe for concurrent use, it must be owned by the
// single goroutine running the frame loop.  Use one Aggregator per video
// source.
type Aggregator struct {
	cfg   Config
	clock clock.Clock
	// records holds every track ever seen since the last reset
	records map[int64]*record
	// order is the track IDs in first seen order
	order []int64
	// active are the records currently within the grace period
	active map[int64]*record
	// uniqueByClass is the number of unique tracks per class
	uniqueByClass map[string]int
	// lastFrame is the last ingested frame index, -1 before the first frame
	lastFrame int
	// seq is the number of frames ingested
	seq int
	// started is when counting began
	started time.Time
}

// New returns an Aggregator with the given counting policy
func New(cfg Config) *Aggregator {

	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	if cfg.GracePeriod < 0 {
		cfg.GracePeriod = 0
	}

	a := &Aggregator{
		cfg:   cfg,
		clock: cfg.Clock,
	}

	a.Reset()

	return a
}

// Reset discards all track records and statistics.  Frame ordering restarts
// so the next IngestFrame may use any non-negative frame index.
func (a *Aggregator) Reset() {
	a.records = make(map[int64]*record)
	a.order = make([]int64, 0)
	a.active = make(map[int64]*record)
	a.uniqueByClass = make(map[string]int)
	a.lastFrame = -1
	a.seq = 0
	a.started = a.clock.Now()
}

// IngestFrame updates the statistics with the tracker output for a frame.
// The frame index must be strictly greater than the previous one, otherwise
// an *InvalidFrameOrderError is returned and no state is changed.
//
// When the same track ID occurs more than once in a frame the last
// occurrence wins and the ID is still only counted once.
func (a *Aggregator) IngestFrame(frameIndex int, tracked []TrackedObservation) error {

	if frameIndex <= a.lastFrame {
		return &InvalidFrameOrderError{Frame: frameIndex, Last: a.lastFrame}
	}

	a.lastFrame = frameIndex
	a.seq++

	for _, obs := range collapse(tracked) {

		rec, exists := a.records[obs.TrackID]

		if !exists {
			rec = newRecord(obs.TrackID, frameIndex, a.seq, obs.Observation)
			a.records[obs.TrackID] = rec
			a.order = append(a.order, obs.TrackID)
			a.uniqueByClass[rec.Label]++
			a.active[obs.TrackID] = rec
			continue
		}

		rec.hit(frameIndex, a.seq, obs.Observation)
		a.active[obs.TrackID] = rec

		if a.cfg.LabelPolicy == MajorityVote {
			a.relabel(rec, rec.majority())
		}
	}

	// expire tracks absent longer than the grace period
	for id, rec := range a.active {
		if a.seq-rec.lastSeq > a.cfg.GracePeriod {
			rec.Active = false
			delete(a.active, id)
		}
	}

	return nil
}

// relabel moves a track's unique count from its current class to label
func (a *Aggregator) relabel(rec *record, label string) {

	if label == rec.Label {
		return
	}

	a.uniqueByClass[rec.Label]--

	if a.uniqueByClass[rec.Label] <= 0 {
		delete(a.uniqueByClass, rec.Label)
	}

	rec.Label = label
	a.uniqueByClass[label]++
}

// collapse removes duplicate track IDs from a frame's observations keeping
// the last occurrence at the position of the first
func collapse(tracked []TrackedObservation) []TrackedObservation {

	pos := make(map[int64]int, len(tracked))
	out := make([]TrackedObservation, 0, len(tracked))

	for _, obs := range tracked {
		if i, dup := pos[obs.TrackID]; dup {
			out[i] = obs
			continue
		}

		pos[obs.TrackID] = len(out)
		out = append(out, obs)
	}

	return out
}

// Statistics returns a snapshot of the current counts.  The returned maps
// are copies and may be kept by the caller.
func (a *Aggregator) Statistics() RunStatistics {

	stats := RunStatistics{
		TotalUnique:     len(a.records),
		UniqueByClass:   make(map[string]int, len(a.uniqueByClass)),
		ActiveByClass:   make(map[string]int),
		TotalActive:     len(a.active),
		FramesProcessed: a.seq,
		CurrentFrame:    a.lastFrame,
		Elapsed:         a.clock.Since(a.started),
	}

	for label, n := range a.uniqueByClass {
		stats.UniqueByClass[label] = n
	}

	for _, rec := range a.active {
		stats.ActiveByClass[rec.Label]++
	}

	return stats
}

// Records returns a copy of every track record in first seen order
func (a *Aggregator) Records() []TrackRecord {

	out := make([]TrackRecord, 0, len(a.order))

	for _, id := range a.order {
		out = append(out, a.records[id].snapshot())
	}

	return out
}

// Record returns the track record for the given track ID
func (a *Aggregator) Record(id int64) (TrackRecord, bool) {

	rec, ok := a.records[id]

	if !ok {
		return TrackRecord{}, false
	}

	return rec.snapshot(), true
}

// LastFrame returns the last ingested frame index, or -1 when no frame has
// been ingested since construction or the last Reset
func (a *Aggregator) LastFrame() int {
	return a.lastFrame
}
