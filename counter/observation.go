package counter

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidObservation is returned by Validate when an observation
	// adapted from detector output is malformed
	ErrInvalidObservation = errors.New("invalid observation")
)

// Box is a bounding box in pixel space of the source frame
type Box struct {
	Left   float32
	Top    float32
	Right  float32
	Bottom float32
}

// Width returns the width of the box
func (b Box) Width() float32 {
	return b.Right - b.Left
}

// Height returns the height of the box
func (b Box) Height() float32 {
	return b.Bottom - b.Top
}

// Center returns the center point of the box
func (b Box) Center() (float32, float32) {
	return b.Left + b.Width()/2, b.Top + b.Height()/2
}

// valid checks all edges are finite and the box is not inverted
func (b Box) valid() bool {
	for _, v := range []float32{b.Left, b.Top, b.Right, b.Bottom} {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}

	return b.Right >= b.Left && b.Bottom >= b.Top
}

// Observation is a single object reported by the detector for one frame
type Observation struct {
	// Box is the bounding box of the organism
	Box Box
	// Label is the species/class name from the models label set
	Label string
	// Confidence is the detector score in the range [0,1]
	Confidence float32
}

// Validate checks the observation has the required fields set with sane
// values.  It is called where external detector output is adapted into
// this package's types.
func (o Observation) Validate() error {

	if o.Label == "" {
		return fmt.Errorf("%w: empty label", ErrInvalidObservation)
	}

	c := float64(o.Confidence)

	if math.IsNaN(c) || c < 0 || c > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidObservation,
			o.Confidence)
	}

	if !o.Box.valid() {
		return fmt.Errorf("%w: malformed box %+v", ErrInvalidObservation, o.Box)
	}

	return nil
}

// TrackedObservation is an Observation the tracker has assigned a
// persistent track ID to
type TrackedObservation struct {
	Observation
	// TrackID is stable across frames for the same physical organism as
	// judged by the tracker
	TrackID int64
}
