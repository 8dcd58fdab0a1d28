// Package detect provides the object detectors feeding the tracker: a
// YOLOv8 ONNX model run with the OpenCV DNN module and a replay detector
// serving detections recorded from an earlier run.
package detect

import (
	"github.com/swdee/go-planktrack/counter"
	"gocv.io/x/gocv"
)

// Detector finds organisms in a frame
type Detector interface {
	// Detect returns the observations for the frame with the given index.
	// Returned observations have passed Validate.
	Detect(frameIndex int, img gocv.Mat) ([]counter.Observation, error)
	Close() error
}
