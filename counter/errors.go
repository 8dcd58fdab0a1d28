package counter

import (
	"errors"
	"fmt"
)

// ErrInvalidFrameOrder is matched by errors.Is for any InvalidFrameOrderError
var ErrInvalidFrameOrder = errors.New("invalid frame order")

// InvalidFrameOrderError is returned by IngestFrame when the frame index is
// not strictly greater than the last ingested frame index
type InvalidFrameOrderError struct {
	// Frame is the rejected frame index
	Frame int
	// Last is the last accepted frame index, -1 if none has been ingested
	Last int
}

// Error implements the error interface
func (e *InvalidFrameOrderError) Error() string {
	return fmt.Sprintf("frame %d is not after last ingested frame %d", e.Frame, e.Last)
}

// Is reports ErrInvalidFrameOrder as the sentinel for this error
func (e *InvalidFrameOrderError) Is(target error) bool {
	return target == ErrInvalidFrameOrder
}
