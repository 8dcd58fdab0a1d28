package tracker

import (
	"github.com/stretchr/testify/assert"
	"github.com/swdee/go-planktrack/counter"
	"testing"
)

func at(id int64, x, y float32) counter.TrackedObservation {
	return counter.TrackedObservation{
		Observation: counter.Observation{
			Box:        counter.Box{Left: x - 5, Top: y - 5, Right: x + 5, Bottom: y + 5},
			Label:      "Chlorella",
			Confidence: 0.9,
		},
		TrackID: id,
	}
}

func TestTrailDirection(t *testing.T) {

	tests := []struct {
		name   string
		points [][2]float32
		want   Direction
	}{
		{"too few points", [][2]float32{{0, 0}, {50, 0}}, None},
		{"stationary", [][2]float32{{100, 100}, {102, 101}, {103, 98}}, None},
		{"right", [][2]float32{{100, 100}, {110, 102}, {120, 101}}, Right},
		{"left", [][2]float32{{100, 100}, {90, 102}, {80, 101}}, Left},
		{"down", [][2]float32{{100, 100}, {101, 110}, {99, 130}}, Down},
		{"up", [][2]float32{{100, 100}, {101, 90}, {99, 70}}, Up},
		{"tie goes vertical", [][2]float32{{100, 100}, {110, 110}, {120, 120}}, Down},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			trail := NewTrail(90)

			for _, p := range tc.points {
				trail.Add(at(1, p[0], p[1]))
			}

			assert.Equal(t, tc.want, trail.Direction(1))
		})
	}
}

func TestTrailDirectionUsesRecentWindow(t *testing.T) {
	trail := NewTrail(90)

	// long leftward history followed by ten points moving right
	for i := 0; i < 20; i++ {
		trail.Add(at(1, float32(500-i*10), 100))
	}

	for i := 0; i < 10; i++ {
		trail.Add(at(1, float32(300+i*10), 100))
	}

	assert.Equal(t, Right, trail.Direction(1))
	assert.Equal(t, ">", trail.Direction(1).Arrow())
}

func TestTrailBounded(t *testing.T) {
	trail := NewTrail(3)

	for i := 0; i < 5; i++ {
		trail.Add(at(7, float32(i*10), 0))
	}

	points := trail.GetPoints(7)
	assert.Equal(t, []Point{{20, 0}, {30, 0}, {40, 0}}, points)

	// returned slice is a copy
	points[0].X = 999
	assert.Equal(t, 20, trail.GetPoints(7)[0].X)

	assert.Nil(t, trail.GetPoints(8))
}

func TestTrailPruneAndReset(t *testing.T) {
	trail := NewTrail(10)

	trail.Add(at(1, 0, 0))
	trail.Add(at(2, 0, 0))

	trail.Prune(map[int64]bool{2: true})
	assert.Nil(t, trail.GetPoints(1))
	assert.Len(t, trail.GetPoints(2), 1)

	trail.Reset()
	assert.Nil(t, trail.GetPoints(2))
	assert.Equal(t, None, trail.Direction(2))
}
