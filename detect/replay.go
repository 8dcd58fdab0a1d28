package detect

import (
	"bufio"
	"encoding/json"
	"fmt"
	"github.com/swdee/go-planktrack/counter"
	"gocv.io/x/gocv"
	"io"
	"os"
	"sort"
)

// Detection is one observation in a detection dump
type Detection struct {
	// Box is left, top, right, bottom in source frame pixels
	Box        [4]float32 `json:"box"`
	Label      string     `json:"label"`
	Confidence float32    `json:"confidence"`
}

// Record is one line of a detection dump, the detections of a single frame
type Record struct {
	Frame      int         `json:"frame"`
	Detections []Detection `json:"detections"`
}

// NewRecord converts a frame's observations into a dump record
func NewRecord(frame int, obs []counter.Observation) Record {

	r := Record{
		Frame:      frame,
		Detections: make([]Detection, len(obs)),
	}

	for i, o := range obs {
		r.Detections[i] = Detection{
			Box:        [4]float32{o.Box.Left, o.Box.Top, o.Box.Right, o.Box.Bottom},
			Label:      o.Label,
			Confidence: o.Confidence,
		}
	}

	return r
}

// Observations converts the record back to validated observations
func (r Record) Observations() ([]counter.Observation, error) {

	obs := make([]counter.Observation, len(r.Detections))

	for i, d := range r.Detections {
		obs[i] = counter.Observation{
			Box: counter.Box{
				Left:   d.Box[0],
				Top:    d.Box[1],
				Right:  d.Box[2],
				Bottom: d.Box[3],
			},
			Label:      d.Label,
			Confidence: d.Confidence,
		}

		if err := obs[i].Validate(); err != nil {
			return nil, fmt.Errorf("frame %d detection %d: %w", r.Frame, i, err)
		}
	}

	return obs, nil
}

// Replay serves detections recorded in a JSON lines dump so a run can be
// recounted with different tracker or counting settings without the model
type Replay struct {
	frames map[int][]counter.Observation
	order  []int
}

// LoadReplay reads a detection dump file
func LoadReplay(file string) (*Replay, error) {

	f, err := os.Open(file)

	if err != nil {
		return nil, fmt.Errorf("error opening detection dump: %w", err)
	}

	defer f.Close()

	r, err := ReadReplay(f)

	if err != nil {
		return nil, fmt.Errorf("error reading detection dump %s: %w", file, err)
	}

	return r, nil
}

// ReadReplay parses a detection dump.  A frame listed more than once keeps
// its last record.
func ReadReplay(rd io.Reader) (*Replay, error) {

	r := &Replay{
		frames: make(map[int][]counter.Observation),
	}

	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0

	for scanner.Scan() {
		line++

		if len(scanner.Bytes()) == 0 {
			continue
		}

		var rec Record

		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		obs, err := rec.Observations()

		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		if _, ok := r.frames[rec.Frame]; !ok {
			r.order = append(r.order, rec.Frame)
		}

		r.frames[rec.Frame] = obs
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	sort.Ints(r.order)

	return r, nil
}

// Frames returns the recorded frame indexes in ascending order
func (r *Replay) Frames() []int {
	out := make([]int, len(r.order))
	copy(out, r.order)
	return out
}

// Observations returns the recorded detections of a frame
func (r *Replay) Observations(frameIndex int) []counter.Observation {
	return r.frames[frameIndex]
}

// Detect returns the recorded detections of the frame, the image is ignored
func (r *Replay) Detect(frameIndex int, _ gocv.Mat) ([]counter.Observation, error) {
	return r.Observations(frameIndex), nil
}

func (r *Replay) Close() error {
	return nil
}
