package tracker

// Object is a detection handed to the BYTETracker for association
type Object struct {
	// Rect is the bounding box of the detection
	Rect Rect
	// Label is the class name reported by the detector
	Label string
	// Prob is the detector confidence
	Prob float32
	// ID identifies the detection within the frame so a tracked result can
	// be matched back to the detection it came from
	ID int64
}

// NewObject is a constructor function for the Object struct
func NewObject(rect Rect, label string, prob float32, id int64) Object {
	return Object{
		Rect:  rect,
		Label: label,
		Prob:  prob,
		ID:    id,
	}
}
