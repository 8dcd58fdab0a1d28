package result

// BoxRect are the pixel edges of a detection's bounding box
type BoxRect struct {
	Left   int
	Right  int
	Top    int
	Bottom int
}

// Width returns the width of the box
func (b BoxRect) Width() int {
	return b.Right - b.Left
}

// Height returns the height of the box
func (b BoxRect) Height() int {
	return b.Bottom - b.Top
}

// Area returns the pixel area of the box, zero for inverted boxes
func (b BoxRect) Area() int {
	return max(0, b.Width()) * max(0, b.Height())
}

// Intersection returns the pixel area shared by two boxes
func (b BoxRect) Intersection(o BoxRect) int {
	w := min(b.Right, o.Right) - max(b.Left, o.Left)
	h := min(b.Bottom, o.Bottom) - max(b.Top, o.Top)

	if w <= 0 || h <= 0 {
		return 0
	}

	return w * h
}

// IoU returns the intersection over union of two boxes
func (b BoxRect) IoU(o BoxRect) float32 {
	inter := b.Intersection(o)
	union := b.Area() + o.Area() - inter

	if union <= 0 {
		return 0
	}

	return float32(inter) / float32(union)
}

// DetectResult is a single object found by a detector
type DetectResult struct {
	// Class is the line number in the labels file of the detected class
	Class int
	// Box is the bounding box in source frame pixels
	Box BoxRect
	// Probability is the confidence score of the detection
	Probability float32
	// ID is unique per detector instance
	ID int64
}
