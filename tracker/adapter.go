package tracker

import (
	"fmt"
	"github.com/swdee/go-planktrack/counter"
)

// Adapter wraps a BYTETracker so it consumes detector observations and
// produces tracked observations for the counter
type Adapter struct {
	bt        *BYTETracker
	lastFrame int
}

// NewAdapter returns an Adapter around a new BYTETracker
func NewAdapter(cfg Config) *Adapter {
	return &Adapter{
		bt:        NewBYTETracker(cfg),
		lastFrame: -1,
	}
}

// Track runs the tracker over the observations of a frame.  Each returned
// observation is the detection a confirmed track matched in this frame with
// the track's persistent ID attached.  Frame indices must increase.
func (a *Adapter) Track(frameIndex int, obs []counter.Observation) ([]counter.TrackedObservation, error) {

	if frameIndex <= a.lastFrame {
		return nil, &counter.InvalidFrameOrderError{Frame: frameIndex, Last: a.lastFrame}
	}

	for i, o := range obs {
		if err := o.Validate(); err != nil {
			return nil, fmt.Errorf("observation %d of frame %d: %w", i, frameIndex, err)
		}
	}

	a.lastFrame = frameIndex

	tracks, err := a.bt.Update(ObservationsToObjects(obs))

	if err != nil {
		return nil, fmt.Errorf("error tracking frame %d: %w", frameIndex, err)
	}

	out := make([]counter.TrackedObservation, 0, len(tracks))

	for _, track := range tracks {

		det := track.GetDetectionID()

		if det < 0 || det >= int64(len(obs)) {
			return nil, fmt.Errorf("track %d matched unknown detection %d", track.GetTrackID(), det)
		}

		out = append(out, counter.TrackedObservation{
			Observation: obs[det],
			TrackID:     track.GetTrackID(),
		})
	}

	return out, nil
}

// LiveIDs returns the IDs of tracks still being followed, tracked or lost
func (a *Adapter) LiveIDs() map[int64]bool {
	return a.bt.LiveIDs()
}

// Reset clears all tracks, IDs restart from 1 and any frame index is
// accepted again
func (a *Adapter) Reset() {
	a.bt.Reset()
	a.lastFrame = -1
}
