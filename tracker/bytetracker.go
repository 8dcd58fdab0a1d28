package tracker

import (
	"fmt"
)

// maxRemembered is the number of removed tracks kept to filter the lost list
const maxRemembered = 1000

// BYTETracker associates detections across frames using the two stage
// ByteTrack method.  High score detections are matched first, then the
// remaining tracks get a chance to match low score detections so organisms
// that briefly blur or overlap keep their ID.
type BYTETracker struct {
	cfg Config
	// maxTimeLost is the number of frames a lost track is kept for
	maxTimeLost int
	// frameID counts calls to Update, starting at 1
	frameID int
	// trackIDCount is the last issued track ID
	trackIDCount   int64
	trackedStracks []*STrack
	lostStracks    []*STrack
	removedStracks []*STrack
}

// NewBYTETracker returns a tracker using the given association parameters
func NewBYTETracker(cfg Config) *BYTETracker {
	return &BYTETracker{
		cfg:         cfg,
		maxTimeLost: cfg.maxTimeLost(),
	}
}

// Reset clears all tracks and restarts track IDs from 1
func (bt *BYTETracker) Reset() {
	bt.frameID = 0
	bt.trackIDCount = 0
	bt.trackedStracks = nil
	bt.lostStracks = nil
	bt.removedStracks = nil
}

// FrameID returns the number of frames processed since the last reset
func (bt *BYTETracker) FrameID() int {
	return bt.frameID
}

// LiveIDs returns the IDs of all tracked and lost tracks
func (bt *BYTETracker) LiveIDs() map[int64]bool {

	ids := make(map[int64]bool, len(bt.trackedStracks)+len(bt.lostStracks))

	for _, track := range bt.trackedStracks {
		ids[track.GetTrackID()] = true
	}

	for _, track := range bt.lostStracks {
		ids[track.GetTrackID()] = true
	}

	return ids
}

// Update associates the detections of the next frame with existing tracks
// and returns the confirmed tracks present in this frame
func (bt *BYTETracker) Update(objects []Object) ([]*STrack, error) {

	bt.frameID++

	high, low := bt.splitDetections(objects)

	// unconfirmed tracks only take part in the last association
	var unconfirmed, confirmed []*STrack

	for _, track := range bt.trackedStracks {
		if track.IsActivated() {
			confirmed = append(confirmed, track)
		} else {
			unconfirmed = append(unconfirmed, track)
		}
	}

	pool := jointStracks(confirmed, bt.lostStracks)

	for _, track := range pool {
		track.Predict()
	}

	var activated, refound, lost, removed []*STrack

	// first association, high score detections against all tracks
	matches, uTracks, uDets, err := linearAssignment(
		iouDistance(pool, high), len(pool), len(high), bt.cfg.MatchThresh)

	if err != nil {
		return nil, fmt.Errorf("first association failed: %w", err)
	}

	for _, m := range matches {
		if err := bt.absorb(pool[m[0]], high[m[1]], &activated, &refound); err != nil {
			return nil, err
		}
	}

	var remainDets, remainTracks []*STrack

	for _, i := range uDets {
		remainDets = append(remainDets, high[i])
	}

	for _, i := range uTracks {
		if pool[i].GetSTrackState() == Tracked {
			remainTracks = append(remainTracks, pool[i])
		}
	}

	// second association, low score detections against tracks left over
	matches, uTracks, _, err = linearAssignment(
		iouDistance(remainTracks, low), len(remainTracks), len(low), 0.5)

	if err != nil {
		return nil, fmt.Errorf("second association failed: %w", err)
	}

	for _, m := range matches {
		if err := bt.absorb(remainTracks[m[0]], low[m[1]], &activated, &refound); err != nil {
			return nil, err
		}
	}

	for _, i := range uTracks {
		track := remainTracks[i]

		if track.GetSTrackState() != Lost {
			track.MarkAsLost()
			lost = append(lost, track)
		}
	}

	// unconfirmed tracks against the unmatched high score detections
	matches, uTracks, uDets, err = linearAssignment(
		iouDistance(unconfirmed, remainDets), len(unconfirmed), len(remainDets), 0.7)

	if err != nil {
		return nil, fmt.Errorf("unconfirmed association failed: %w", err)
	}

	for _, m := range matches {
		track := unconfirmed[m[0]]

		if err := track.Update(remainDets[m[1]], bt.frameID); err != nil {
			return nil, err
		}

		activated = append(activated, track)
	}

	for _, i := range uTracks {
		unconfirmed[i].MarkAsRemoved()
		removed = append(removed, unconfirmed[i])
	}

	// start new tracks from confident detections nothing claimed
	for _, i := range uDets {
		det := remainDets[i]

		if det.GetScore() < bt.cfg.HighThresh {
			continue
		}

		bt.trackIDCount++
		det.Activate(bt.frameID, bt.trackIDCount)
		activated = append(activated, det)
	}

	for _, track := range bt.lostStracks {
		if bt.frameID-track.GetFrameID() > bt.maxTimeLost {
			track.MarkAsRemoved()
			removed = append(removed, track)
		}
	}

	bt.commit(activated, refound, lost, removed)

	var out []*STrack

	for _, track := range bt.trackedStracks {
		if track.IsActivated() {
			out = append(out, track)
		}
	}

	return out, nil
}

// splitDetections converts detections into candidate tracks divided by the
// track threshold
func (bt *BYTETracker) splitDetections(objects []Object) (high, low []*STrack) {

	for _, obj := range objects {

		det := NewSTrack(RectFromBox(obj.Rect.Box()), obj.Prob, obj.ID, obj.Label)

		if obj.Prob >= bt.cfg.TrackThresh {
			high = append(high, det)
		} else {
			low = append(low, det)
		}
	}

	return high, low
}

// absorb applies a matched detection to a track, sorting the track into
// activated or refound depending on whether it was being tracked
func (bt *BYTETracker) absorb(track, det *STrack, activated, refound *[]*STrack) error {

	if track.GetSTrackState() == Tracked {
		if err := track.Update(det, bt.frameID); err != nil {
			return err
		}

		*activated = append(*activated, track)
		return nil
	}

	if err := track.ReActivate(det, bt.frameID); err != nil {
		return err
	}

	*refound = append(*refound, track)
	return nil
}

// commit rebuilds the tracked, lost and removed lists after association
func (bt *BYTETracker) commit(activated, refound, lost, removed []*STrack) {

	bt.trackedStracks = jointStracks(activated, refound)

	bt.lostStracks = subStracks(
		jointStracks(subStracks(bt.lostStracks, bt.trackedStracks), lost),
		bt.removedStracks,
	)

	bt.removedStracks = jointStracks(bt.removedStracks, removed)

	if n := len(bt.removedStracks); n > maxRemembered {
		bt.removedStracks = bt.removedStracks[n-maxRemembered:]
	}

	bt.trackedStracks, bt.lostStracks = removeDuplicateStracks(
		bt.trackedStracks, bt.lostStracks)
}

// jointStracks appends the tracks of b not already in a
func jointStracks(a, b []*STrack) []*STrack {

	seen := make(map[int64]bool, len(a)+len(b))
	res := make([]*STrack, 0, len(a)+len(b))

	for _, track := range a {
		seen[track.GetTrackID()] = true
		res = append(res, track)
	}

	for _, track := range b {
		if !seen[track.GetTrackID()] {
			seen[track.GetTrackID()] = true
			res = append(res, track)
		}
	}

	return res
}

// subStracks returns the tracks of a whose ID is not in b
func subStracks(a, b []*STrack) []*STrack {

	drop := make(map[int64]bool, len(b))

	for _, track := range b {
		drop[track.GetTrackID()] = true
	}

	res := make([]*STrack, 0, len(a))

	for _, track := range a {
		if !drop[track.GetTrackID()] {
			res = append(res, track)
		}
	}

	return res
}

// removeDuplicateStracks resolves tracked and lost tracks that overlap
// almost entirely, the younger of each pair is dropped
func removeDuplicateStracks(a, b []*STrack) ([]*STrack, []*STrack) {

	dist := iouDistance(a, b)
	dropA := make([]bool, len(a))
	dropB := make([]bool, len(b))

	for i := range dist {
		for j := range dist[i] {
			if dist[i][j] >= 0.15 {
				continue
			}

			ageA := a[i].GetFrameID() - a[i].GetStartFrameID()
			ageB := b[j].GetFrameID() - b[j].GetStartFrameID()

			if ageA > ageB {
				dropB[j] = true
			} else {
				dropA[i] = true
			}
		}
	}

	var resA, resB []*STrack

	for i, track := range a {
		if !dropA[i] {
			resA = append(resA, track)
		}
	}

	for i, track := range b {
		if !dropB[i] {
			resB = append(resB, track)
		}
	}

	return resA, resB
}

// iouDistance returns the 1-IoU cost matrix between two sets of tracks, nil
// when either set is empty
func iouDistance(a, b []*STrack) [][]float32 {

	if len(a) == 0 || len(b) == 0 {
		return nil
	}

	cost := make([][]float32, len(a))

	for i := range a {
		cost[i] = make([]float32, len(b))

		for j := range b {
			cost[i][j] = 1 - b[j].GetRect().CalcIoU(*a[i].GetRect())
		}
	}

	return cost
}

// linearAssignment solves the assignment for the cost matrix returning the
// matched [row, col] pairs and the unmatched rows and columns.  Pairs with a
// cost above thresh are left unmatched.
func linearAssignment(cost [][]float32, rows, cols int,
	thresh float32) (matches [][2]int, unmatchedRows, unmatchedCols []int, err error) {

	if len(cost) == 0 {
		for i := 0; i < rows; i++ {
			unmatchedRows = append(unmatchedRows, i)
		}
		for i := 0; i < cols; i++ {
			unmatchedCols = append(unmatchedCols, i)
		}
		return
	}

	rowsol, colsol, err := lapjv(cost, thresh)

	if err != nil {
		return nil, nil, nil, err
	}

	for i, j := range rowsol {
		if j >= 0 {
			matches = append(matches, [2]int{i, j})
		} else {
			unmatchedRows = append(unmatchedRows, i)
		}
	}

	for j, i := range colsol {
		if i < 0 {
			unmatchedCols = append(unmatchedCols, j)
		}
	}

	return
}
