package tracker

import (
	"github.com/swdee/go-planktrack/counter"
)

// Xyah is a box as centre x, centre y, aspect ratio (width / height) and
// height, the measurement space of the Kalman filter
type Xyah []float32

// Rect is a box held as left, top, width and height
type Rect struct {
	Tlwh []float32
}

// NewRect returns a Rect with its top left corner at x, y
func NewRect(x, y, width, height float32) Rect {
	return Rect{
		Tlwh: []float32{x, y, width, height},
	}
}

// RectFromBox converts a detector box into a Rect
func RectFromBox(b counter.Box) Rect {
	return NewRect(b.Left, b.Top, b.Width(), b.Height())
}

// Box converts the rect back into edge coordinates
func (r *Rect) Box() counter.Box {
	return counter.Box{
		Left:   r.Tlwh[0],
		Top:    r.Tlwh[1],
		Right:  r.Tlwh[0] + r.Tlwh[2],
		Bottom: r.Tlwh[1] + r.Tlwh[3],
	}
}

// GetXyah returns the rect as a Kalman measurement.  A zero height rect has
// an aspect ratio of zero rather than dividing by zero.
func (r *Rect) GetXyah() Xyah {

	var aspect float32

	if r.Tlwh[3] != 0 {
		aspect = r.Tlwh[2] / r.Tlwh[3]
	}

	return Xyah{
		r.Tlwh[0] + r.Tlwh[2]/2,
		r.Tlwh[1] + r.Tlwh[3]/2,
		aspect,
		r.Tlwh[3],
	}
}

// setXyah places the rect from a Kalman state mean
func (r *Rect) setXyah(m StateMean) {
	w := m[2] * m[3]
	h := m[3]

	r.Tlwh[0] = m[0] - w/2
	r.Tlwh[1] = m[1] - h/2
	r.Tlwh[2] = w
	r.Tlwh[3] = h
}

// CalcIoU returns the intersection over union with another rect.  Edges are
// treated as inclusive pixel coordinates so touching boxes overlap by one
// pixel, matching the reference ByteTrack cost.
func (r *Rect) CalcIoU(other Rect) float32 {

	a := r.Box()
	b := other.Box()

	iw := min(a.Right, b.Right) - max(a.Left, b.Left) + 1

	if iw <= 0 {
		return 0
	}

	ih := min(a.Bottom, b.Bottom) - max(a.Top, b.Top) + 1

	if ih <= 0 {
		return 0
	}

	inter := iw * ih
	union := (a.Width()+1)*(a.Height()+1) + (b.Width()+1)*(b.Height()+1) - inter

	return inter / union
}
