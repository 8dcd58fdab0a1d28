package counter

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tracked(id int64, label string) TrackedObservation {
	return TrackedObservation{
		Observation: Observation{
			Box:        Box{Left: 10, Top: 10, Right: 30, Bottom: 30},
			Label:      label,
			Confidence: 0.8,
		},
		TrackID: id,
	}
}

func TestAggregatorScenario(t *testing.T) {

	agg := New(Config{})

	// frame 0, first sighting
	require.NoError(t, agg.IngestFrame(0, []TrackedObservation{tracked(1, "Chlorella")}))
	s := agg.Statistics()
	assert.Equal(t, 1, s.TotalUnique)
	assert.Equal(t, 1, s.UniqueByClass["Chlorella"])
	assert.Equal(t, 1, s.TotalActive)

	// frame 1, same organism
	require.NoError(t, agg.IngestFrame(1, []TrackedObservation{tracked(1, "Chlorella")}))
	s = agg.Statistics()
	assert.Equal(t, 1, s.TotalUnique)
	assert.Equal(t, 1, s.TotalActive)

	// frame 2, empty
	require.NoError(t, agg.IngestFrame(2, nil))
	s = agg.Statistics()
	assert.Equal(t, 1, s.TotalUnique)
	assert.Equal(t, 0, s.TotalActive)

	// frame 3, reappears
	require.NoError(t, agg.IngestFrame(3, []TrackedObservation{tracked(1, "Chlorella")}))
	s = agg.Statistics()
	assert.Equal(t, 1, s.TotalUnique)
	assert.Equal(t, 1, s.TotalActive)

	// frame 4, new organism of another class
	require.NoError(t, agg.IngestFrame(4, []TrackedObservation{
		tracked(1, "Chlorella"),
		tracked(2, "Porphyridium"),
	}))
	s = agg.Statistics()
	assert.Equal(t, 2, s.TotalUnique)
	assert.Equal(t, 1, s.UniqueByClass["Chlorella"])
	assert.Equal(t, 1, s.UniqueByClass["Porphyridium"])
	assert.Equal(t, 2, s.TotalActive)

	agg.Reset()
	require.NoError(t, agg.IngestFrame(0, []TrackedObservation{tracked(1, "Chlorella")}))
	s = agg.Statistics()
	assert.Equal(t, 1, s.TotalUnique)
	assert.Equal(t, 1, s.FramesProcessed)
}

func TestAggregatorFrameOrder(t *testing.T) {

	tests := []struct {
		name  string
		first int
		next  int
	}{
		{"equal", 5, 5},
		{"backwards", 5, 4},
		{"negative after zero", 0, -1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			agg := New(Config{Clock: clock.NewMock()})

			require.NoError(t, agg.IngestFrame(tc.first, []TrackedObservation{tracked(1, "Chlorella")}))
			before := agg.Statistics()
			beforeRecs := agg.Records()

			err := agg.IngestFrame(tc.next, []TrackedObservation{tracked(2, "Porphyridium")})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidFrameOrder))

			var orderErr *InvalidFrameOrderError
			require.True(t, errors.As(err, &orderErr))
			assert.Equal(t, tc.next, orderErr.Frame)
			assert.Equal(t, tc.first, orderErr.Last)

			after := agg.Statistics()
			assert.Equal(t, before, after)
			assert.Equal(t, beforeRecs, agg.Records())
			assert.Equal(t, tc.first, agg.LastFrame())
		})
	}
}

func TestAggregatorResetClearsStatistics(t *testing.T) {

	mock := clock.NewMock()
	agg := New(Config{Clock: mock})

	require.NoError(t, agg.IngestFrame(0, []TrackedObservation{tracked(1, "Chlorella")}))
	require.NoError(t, agg.IngestFrame(1, []TrackedObservation{
		tracked(1, "Chlorella"),
		tracked(2, "Porphyridium"),
	}))
	mock.Add(5 * time.Second)

	agg.Reset()

	s := agg.Statistics()
	assert.Equal(t, 0, s.TotalUnique)
	assert.Empty(t, s.UniqueByClass)
	assert.Empty(t, s.ActiveByClass)
	assert.Equal(t, 0, s.TotalActive)
	assert.Equal(t, 0, s.FramesProcessed)
	assert.Equal(t, -1, s.CurrentFrame)
	assert.Equal(t, time.Duration(0), s.Elapsed)
	assert.Equal(t, -1, agg.LastFrame())
	assert.Empty(t, agg.Records())
}

func TestAggregatorNegativeFirstFrame(t *testing.T) {
	agg := New(Config{})

	err := agg.IngestFrame(-1, nil)
	assert.ErrorIs(t, err, ErrInvalidFrameOrder)
	assert.Equal(t, 0, agg.Statistics().FramesProcessed)
}

func TestAggregatorGapsInFrameIndex(t *testing.T) {
	agg := New(Config{})

	require.NoError(t, agg.IngestFrame(0, []TrackedObservation{tracked(1, "Chlorella")}))
	require.NoError(t, agg.IngestFrame(10, []TrackedObservation{tracked(1, "Chlorella")}))
	require.NoError(t, agg.IngestFrame(100, nil))

	s := agg.Statistics()
	assert.Equal(t, 3, s.FramesProcessed)
	assert.Equal(t, 100, s.CurrentFrame)
	assert.Equal(t, 1, s.TotalUnique)
}

func TestAggregatorDuplicateIDsInFrame(t *testing.T) {
	agg := New(Config{})

	err := agg.IngestFrame(0, []TrackedObservation{
		tracked(7, "Chlorella"),
		tracked(7, "Porphyridium"),
		tracked(8, "Chlorella"),
	})
	require.NoError(t, err)

	s := agg.Statistics()
	assert.Equal(t, 2, s.TotalUnique)
	assert.Equal(t, 2, s.TotalActive)
	// last write wins for the new record's label
	assert.Equal(t, 1, s.UniqueByClass["Porphyridium"])
	assert.Equal(t, 1, s.UniqueByClass["Chlorella"])

	rec, ok := agg.Record(7)
	require.True(t, ok)
	assert.Equal(t, 1, rec.Hits)
	assert.Equal(t, "Porphyridium", rec.Label)

	// first appearance order is kept
	recs := agg.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, int64(7), recs[0].ID)
	assert.Equal(t, int64(8), recs[1].ID)
}

func TestAggregatorFirstSeenLabel(t *testing.T) {
	agg := New(Config{LabelPolicy: FirstSeen})

	require.NoError(t, agg.IngestFrame(0, []TrackedObservation{tracked(1, "Chlorella")}))
	require.NoError(t, agg.IngestFrame(1, []TrackedObservation{tracked(1, "Porphyridium")}))
	require.NoError(t, agg.IngestFrame(2, []TrackedObservation{tracked(1, "Porphyridium")}))

	s := agg.Statistics()
	assert.Equal(t, 1, s.UniqueByClass["Chlorella"])
	assert.Zero(t, s.UniqueByClass["Porphyridium"])
	assert.Equal(t, 1, s.ActiveByClass["Chlorella"])
}

func TestAggregatorMajorityVote(t *testing.T) {
	agg := New(Config{LabelPolicy: MajorityVote})

	require.NoError(t, agg.IngestFrame(0, []TrackedObservation{tracked(1, "Chlorella")}))

	// tie keeps the current label
	require.NoError(t, agg.IngestFrame(1, []TrackedObservation{tracked(1, "Porphyridium")}))
	s := agg.Statistics()
	assert.Equal(t, 1, s.UniqueByClass["Chlorella"])
	assert.Zero(t, s.UniqueByClass["Porphyridium"])

	// majority switches the class and moves the unique count with it
	require.NoError(t, agg.IngestFrame(2, []TrackedObservation{tracked(1, "Porphyridium")}))
	s = agg.Statistics()
	assert.Equal(t, 1, s.TotalUnique)
	assert.Equal(t, 1, s.UniqueByClass["Porphyridium"])
	_, present := s.UniqueByClass["Chlorella"]
	assert.False(t, present)
	assert.Equal(t, 1, s.ActiveByClass["Porphyridium"])

	rec, ok := agg.Record(1)
	require.True(t, ok)
	assert.Equal(t, "Porphyridium", rec.Label)
	assert.Equal(t, 3, rec.Hits)
}

func TestAggregatorGracePeriod(t *testing.T) {
	agg := New(Config{GracePeriod: 2})

	require.NoError(t, agg.IngestFrame(0, []TrackedObservation{tracked(1, "Chlorella")}))
	require.NoError(t, agg.IngestFrame(1, nil))
	assert.Equal(t, 1, agg.Statistics().TotalActive)

	require.NoError(t, agg.IngestFrame(2, nil))
	assert.Equal(t, 1, agg.Statistics().TotalActive)

	require.NoError(t, agg.IngestFrame(3, nil))
	s := agg.Statistics()
	assert.Equal(t, 0, s.TotalActive)
	assert.Equal(t, 1, s.TotalUnique)

	rec, _ := agg.Record(1)
	assert.False(t, rec.Active)
	assert.Equal(t, 0, rec.LastSeen)
}

func TestAggregatorInvariants(t *testing.T) {

	agg := New(Config{LabelPolicy: MajorityVote, GracePeriod: 1})
	labels := []string{"Chlorella", "Porphyridium", "Dunaliella"}

	prevTotal := 0
	seen := make(map[int64]bool)

	for frame := 0; frame < 200; frame++ {
		var obs []TrackedObservation

		// a sliding window of IDs with flickering labels
		for id := int64(frame / 3); id < int64(frame/3+4); id++ {
			if (int64(frame)+id)%5 == 0 {
				continue
			}
			obs = append(obs, tracked(id, labels[(frame+int(id))%len(labels)]))
			seen[id] = true
		}

		require.NoError(t, agg.IngestFrame(frame, obs))
		s := agg.Statistics()

		assert.GreaterOrEqual(t, s.TotalUnique, prevTotal)
		assert.LessOrEqual(t, s.TotalActive, s.TotalUnique)
		assert.Equal(t, len(seen), s.TotalUnique)
		assert.Len(t, agg.Records(), s.TotalUnique)

		sum := 0
		for label, n := range s.UniqueByClass {
			sum += n
			assert.LessOrEqual(t, s.ActiveByClass[label], n)
		}
		assert.Equal(t, s.TotalUnique, sum)

		prevTotal = s.TotalUnique
	}
}

func TestAggregatorRecordsAreCopies(t *testing.T) {
	agg := New(Config{})

	require.NoError(t, agg.IngestFrame(0, []TrackedObservation{tracked(1, "Chlorella")}))

	s := agg.Statistics()
	s.UniqueByClass["Chlorella"] = 99
	recs := agg.Records()
	recs[0].Label = "changed"

	assert.Equal(t, 1, agg.Statistics().UniqueByClass["Chlorella"])
	rec, _ := agg.Record(1)
	assert.Equal(t, "Chlorella", rec.Label)

	_, ok := agg.Record(42)
	assert.False(t, ok)
}

func TestAggregatorElapsed(t *testing.T) {
	mock := clock.NewMock()
	agg := New(Config{Clock: mock})

	mock.Add(3 * time.Second)
	assert.Equal(t, 3*time.Second, agg.Statistics().Elapsed)

	agg.Reset()
	mock.Add(time.Second)
	assert.Equal(t, time.Second, agg.Statistics().Elapsed)
}

func TestAggregatorMeanConfidence(t *testing.T) {
	agg := New(Config{})

	a := tracked(1, "Chlorella")
	a.Confidence = 0.5
	b := tracked(1, "Chlorella")
	b.Confidence = 0.9

	require.NoError(t, agg.IngestFrame(0, []TrackedObservation{a}))
	require.NoError(t, agg.IngestFrame(1, []TrackedObservation{b}))

	rec, _ := agg.Record(1)
	assert.InDelta(t, 0.7, rec.MeanConfidence, 1e-6)
	assert.Equal(t, 0, rec.FirstSeen)
	assert.Equal(t, 1, rec.LastSeen)
}

func TestParseLabelPolicy(t *testing.T) {

	tests := []struct {
		in      string
		want    LabelPolicy
		wantErr bool
	}{
		{"", FirstSeen, false},
		{"first", FirstSeen, false},
		{"First-Seen", FirstSeen, false},
		{"majority", MajorityVote, false},
		{" majority-vote ", MajorityVote, false},
		{"random", FirstSeen, true},
	}

	for _, tc := range tests {
		got, err := ParseLabelPolicy(tc.in)

		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}

		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, got, mustParse(t, got.String()))
	}
}

func mustParse(t *testing.T, s string) LabelPolicy {
	t.Helper()
	p, err := ParseLabelPolicy(s)
	require.NoError(t, err)
	return p
}
