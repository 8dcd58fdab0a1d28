package tracker

import (
	"github.com/swdee/go-planktrack/counter"
	"math"
	"sync"
)

// Direction is the dominant flow direction of a track
type Direction int

const (
	// None is returned when there is too little history or movement
	None Direction = iota
	Right
	Left
	Down
	Up
)

const (
	// directionWindow is the number of most recent points used to work out
	// the flow direction
	directionWindow = 10
	// directionMinPoints is the history needed before a direction is given
	directionMinPoints = 3
	// directionMinMove is the pixel displacement below which a track is
	// considered stationary
	directionMinMove = 5
)

// Arrow returns the direction as an ASCII arrow, Hershey fonts used for
// overlays have no unicode arrows
func (d Direction) Arrow() string {
	switch d {
	case Right:
		return ">"
	case Left:
		return "<"
	case Down:
		return "v"
	case Up:
		return "^"
	}

	return ""
}

// String returns the direction name
func (d Direction) String() string {
	switch d {
	case Right:
		return "right"
	case Left:
		return "left"
	case Down:
		return "down"
	case Up:
		return "up"
	}

	return "none"
}

// Point is the centre of a tracked bounding box
type Point struct {
	X, Y int
}

// Trail keeps a bounded history of centre points per track used for drawing
// trails and estimating which way organisms move through the flow cell
type Trail struct {
	// size is the maximum number of points kept per track
	size    int
	history map[int64][]Point
	sync.Mutex
}

// NewTrail returns a trail history keeping the most recent size points of
// each track
func NewTrail(size int) *Trail {
	return &Trail{
		size:    size,
		history: make(map[int64][]Point),
	}
}

// Reset clears all history
func (t *Trail) Reset() {
	t.Lock()
	defer t.Unlock()

	t.history = make(map[int64][]Point)
}

// Add appends the centre of the tracked observation to its track history
func (t *Trail) Add(obs counter.TrackedObservation) {
	t.Lock()
	defer t.Unlock()

	x, y := obs.Box.Center()
	points := append(t.history[obs.TrackID], Point{X: int(x), Y: int(y)})

	if len(points) > t.size {
		points = points[len(points)-t.size:]
	}

	t.history[obs.TrackID] = points
}

// GetPoints returns a copy of the point history for a track
func (t *Trail) GetPoints(id int64) []Point {
	t.Lock()
	defer t.Unlock()

	points, exists := t.history[id]

	if !exists {
		return nil
	}

	out := make([]Point, len(points))
	copy(out, points)

	return out
}

// Direction returns the dominant movement of the track over its recent
// history, None until enough points exist or when the organism has moved
// less than a few pixels
func (t *Trail) Direction(id int64) Direction {
	t.Lock()
	defer t.Unlock()

	points := t.history[id]

	if len(points) > directionWindow {
		points = points[len(points)-directionWindow:]
	}

	if len(points) < directionMinPoints {
		return None
	}

	start := points[0]
	end := points[len(points)-1]
	dx := float64(end.X - start.X)
	dy := float64(end.Y - start.Y)

	if math.Abs(dx) < directionMinMove && math.Abs(dy) < directionMinMove {
		return None
	}

	if math.Abs(dx) > math.Abs(dy) {
		if dx > 0 {
			return Right
		}
		return Left
	}

	if dy > 0 {
		return Down
	}

	return Up
}

// Prune drops the history of tracks not in keep
func (t *Trail) Prune(keep map[int64]bool) {
	t.Lock()
	defer t.Unlock()

	for id := range t.history {
		if !keep[id] {
			delete(t.history, id)
		}
	}
}
