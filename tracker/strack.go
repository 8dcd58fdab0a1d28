package tracker

import (
	"fmt"
	"gonum.org/v1/gonum/mat"
)

// STrackState is the lifecycle state of a track
type STrackState int

const (
	// New is a detection that has not been confirmed as a track yet
	New STrackState = 0
	// Tracked is matched to a detection in the latest frame
	Tracked STrackState = 1
	// Lost has not been matched recently but may still be re-identified
	Lost STrackState = 2
	// Removed is expired and will never be matched again
	Removed STrackState = 3
)

// STrack is a single organism followed across frames by the BYTETracker
type STrack struct {
	kalmanFilter *KalmanFilter
	mean         StateMean
	covariance   StateCov
	rect         Rect
	state        STrackState
	isActivated  bool
	// score is the confidence of the last matched detection
	score   float32
	trackID int64
	// frameID is the tracker frame the track was last matched in
	frameID      int
	startFrameID int
	trackletLen  int
	// detectionID is the ID of the last matched detection
	detectionID int64
	// label is the class of the last matched detection
	label string
}

// NewSTrack creates an unconfirmed track from a detection
func NewSTrack(rect Rect, score float32, detectionID int64, label string) *STrack {
	return &STrack{
		kalmanFilter: NewKalmanFilter(1.0/20, 1.0/160),
		mean:         make(StateMean, 8),
		covariance:   StateCov{mat.NewDense(8, 8, nil)},
		rect:         rect,
		state:        New,
		score:        score,
		detectionID:  detectionID,
		label:        label,
	}
}

// GetRect returns the Kalman filtered bounding box
func (s *STrack) GetRect() *Rect {
	return &s.rect
}

// GetSTrackState returns the lifecycle state
func (s *STrack) GetSTrackState() STrackState {
	return s.state
}

// IsActivated returns true once the track has been confirmed
func (s *STrack) IsActivated() bool {
	return s.isActivated
}

// GetScore returns the confidence of the last matched detection
func (s *STrack) GetScore() float32 {
	return s.score
}

// GetTrackID returns the persistent track ID
func (s *STrack) GetTrackID() int64 {
	return s.trackID
}

// GetFrameID returns the tracker frame the track was last matched in
func (s *STrack) GetFrameID() int {
	return s.frameID
}

// GetDetectionID returns the ID of the last matched detection
func (s *STrack) GetDetectionID() int64 {
	return s.detectionID
}

// GetLabel returns the class of the last matched detection
func (s *STrack) GetLabel() string {
	return s.label
}

// GetStartFrameID returns the tracker frame the track was started in
func (s *STrack) GetStartFrameID() int {
	return s.startFrameID
}

// GetTrackletLength returns the number of consecutive matches
func (s *STrack) GetTrackletLength() int {
	return s.trackletLen
}

// Activate starts a new track with the given ID
func (s *STrack) Activate(frameID int, trackID int64) {

	s.kalmanFilter.Initiate(s.mean, &s.covariance, DetectBox(s.rect.GetXyah()))
	s.updateRect()

	s.state = Tracked

	// tracks created on the very first frame are confirmed immediately,
	// otherwise they need a second match
	if frameID == 1 {
		s.isActivated = true
	}

	s.trackID = trackID
	s.frameID = frameID
	s.startFrameID = frameID
	s.trackletLen = 0
}

// ReActivate revives a lost track with a new detection keeping its track ID
func (s *STrack) ReActivate(det *STrack, frameID int) error {

	if err := s.correct(det); err != nil {
		return fmt.Errorf("error reactivating track %d: %w", s.trackID, err)
	}

	s.frameID = frameID
	s.trackletLen = 0

	return nil
}

// Predict advances the Kalman state by one frame
func (s *STrack) Predict() {
	if s.state != Tracked {
		s.mean[7] = 0
	}

	s.kalmanFilter.Predict(s.mean, &s.covariance)
}

// Update corrects the track with a matched detection
func (s *STrack) Update(det *STrack, frameID int) error {

	if err := s.correct(det); err != nil {
		return fmt.Errorf("error updating track %d: %w", s.trackID, err)
	}

	s.frameID = frameID
	s.trackletLen++

	return nil
}

// correct applies the detection measurement and takes over its score, ID
// and label
func (s *STrack) correct(det *STrack) error {

	err := s.kalmanFilter.Update(s.mean, &s.covariance,
		DetectBox(det.GetRect().GetXyah()))

	if err != nil {
		return err
	}

	s.updateRect()

	s.state = Tracked
	s.isActivated = true
	s.score = det.score
	s.detectionID = det.detectionID
	s.label = det.label

	return nil
}

// MarkAsLost marks the track as lost
func (s *STrack) MarkAsLost() {
	s.state = Lost
}

// MarkAsRemoved marks the track as removed
func (s *STrack) MarkAsRemoved() {
	s.state = Removed
}

// updateRect sets the bounding box from the Kalman state mean which is in
// xyah form
func (s *STrack) updateRect() {
	s.rect.setXyah(s.mean)
}
