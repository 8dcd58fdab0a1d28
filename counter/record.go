package counter

import (
	"fmt"
	"strings"
)

// LabelPolicy decides which class a track is attributed to when the
// classifier reports different labels for the same track over time
type LabelPolicy int

const (
	// FirstSeen keeps the label of the first observation of a track
	FirstSeen LabelPolicy = 0
	// MajorityVote uses the most frequent label seen so far, ties keep the
	// current label
	MajorityVote LabelPolicy = 1
)

// String returns the config name of the policy
func (p LabelPolicy) String() string {
	switch p {
	case MajorityVote:
		return "majority"
	default:
		return "first"
	}
}

// ParseLabelPolicy converts a config name into a LabelPolicy
func ParseLabelPolicy(s string) (LabelPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first", "first-seen", "firstseen":
		return FirstSeen, nil
	case "majority", "majority-vote", "majorityvote":
		return MajorityVote, nil
	}

	return FirstSeen, fmt.Errorf("unknown label policy %q, use 'first' or 'majority'", s)
}

// TrackRecord is the bookkeeping entry for one track ID's lifetime
type TrackRecord struct {
	// ID is the track identifier assigned by the tracker
	ID int64
	// FirstSeen is the frame index the track first appeared in
	FirstSeen int
	// LastSeen is the most recent frame index the track appeared in
	LastSeen int
	// Label is the class the track is counted under
	Label string
	// Active is true while the track is within the grace period
	Active bool
	// Hits is the number of frames the track appeared in
	Hits int
	// MeanConfidence is the average detector confidence over all hits
	MeanConfidence float32
}

// record is the mutable internal form of a TrackRecord
type record struct {
	TrackRecord
	// lastSeq is the ingest sequence number the track was last seen in
	lastSeq int
	// confSum is the running sum of confidences
	confSum float64
	// votes counts labels seen for majority voting
	votes map[string]int
}

func newRecord(id int64, frame, seq int, obs Observation) *record {
	r := &record{
		TrackRecord: TrackRecord{
			ID:        id,
			FirstSeen: frame,
			LastSeen:  frame,
			Label:     obs.Label,
			Active:    true,
		},
		votes: make(map[string]int),
	}

	r.hit(frame, seq, obs)

	return r
}

// hit records an appearance of the track
func (r *record) hit(frame, seq int, obs Observation) {
	r.LastSeen = frame
	r.lastSeq = seq
	r.Active = true
	r.Hits++
	r.confSum += float64(obs.Confidence)
	r.MeanConfidence = float32(r.confSum / float64(r.Hits))
	r.votes[obs.Label]++
}

// majority returns the label with the most votes, the current label wins
// ties
func (r *record) majority() string {
	best := r.Label
	bestVotes := r.votes[best]

	for label, n := range r.votes {
		// challengers tied with each other are ordered by name so the result
		// does not depend on map iteration order
		if n > bestVotes || (n == bestVotes && best != r.Label && label < best) {
			best = label
			bestVotes = n
		}
	}

	return best
}

// snapshot returns a copy safe to hand out
func (r *record) snapshot() TrackRecord {
	return r.TrackRecord
}
