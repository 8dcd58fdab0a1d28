package postprocess

import (
	"fmt"
	"github.com/swdee/go-planktrack/postprocess/result"
	"github.com/swdee/go-planktrack/preprocess"
)

// YOLOv8 decodes the output of a YOLOv8 detection model exported to ONNX.
// The output tensor has shape [1, 4+classes, anchors] where the first four
// channels are the box centre x, centre y, width and height in model input
// pixels and the rest are per class scores.
type YOLOv8 struct {
	// Params are the Model configuration parameters
	Params YOLOv8Params
	idGen  *result.IDGenerator
}

// YOLOv8Params are the post processing parameters
type YOLOv8Params struct {
	// BoxThreshold is the minimum class score for an anchor to be kept
	BoxThreshold float32
	// NMSThreshold is the IoU above which the lower scoring of two boxes of
	// the same class is suppressed
	NMSThreshold float32
	// ObjectClassNum is the number of classes the Model was trained with
	ObjectClassNum int
	// MaxObjectNumber is the maximum number of detections returned
	MaxObjectNumber int
}

// YOLOv8PlanktonParams returns default parameters for a plankton model with
// the given number of classes.  Flow cell frames can hold many organisms so
// the object limit is higher than for general purpose models.
func YOLOv8PlanktonParams(classes int) YOLOv8Params {
	return YOLOv8Params{
		BoxThreshold:    0.25,
		NMSThreshold:    0.45,
		ObjectClassNum:  classes,
		MaxObjectNumber: 300,
	}
}

// NewYOLOv8 returns an instance of the YOLOv8 post processor
func NewYOLOv8(p YOLOv8Params) *YOLOv8 {
	return &YOLOv8{
		Params: p,
		idGen:  result.NewIDGenerator(),
	}
}

// YOLOv8Result holds the detections of one inference
type YOLOv8Result struct {
	DetectResults []result.DetectResult
}

// GetDetectResults returns the object detection results
func (r YOLOv8Result) GetDetectResults() []result.DetectResult {
	return r.DetectResults
}

// DetectObjects decodes the raw output tensor data.  The resizer is the one
// used to letterbox the frame so boxes can be mapped back to source pixels.
func (y *YOLOv8) DetectObjects(output []float32,
	resizer *preprocess.Resizer) (YOLOv8Result, error) {

	channels := 4 + y.Params.ObjectClassNum

	if y.Params.ObjectClassNum <= 0 {
		return YOLOv8Result{}, fmt.Errorf("invalid class count %d", y.Params.ObjectClassNum)
	}

	if len(output)%channels != 0 {
		return YOLOv8Result{}, fmt.Errorf("output length %d is not a multiple of %d channels",
			len(output), channels)
	}

	anchors := len(output) / channels

	var boxes, probs []float32
	var classIDs []int

	for a := 0; a < anchors; a++ {

		best := -1
		bestScore := y.Params.BoxThreshold

		for c := 0; c < y.Params.ObjectClassNum; c++ {
			if s := output[(4+c)*anchors+a]; s > bestScore {
				best = c
				bestScore = s
			}
		}

		if best < 0 {
			continue
		}

		w := output[2*anchors+a]
		h := output[3*anchors+a]
		x := output[a] - w/2
		yy := output[anchors+a] - h/2

		boxes = append(boxes, x, yy, w, h)
		probs = append(probs, bestScore)
		classIDs = append(classIDs, best)
	}

	validCount := len(probs)

	if validCount == 0 {
		return YOLOv8Result{}, nil
	}

	order := make([]int, validCount)

	for i := range order {
		order[i] = i
	}

	quickSortIndiceInverse(probs, 0, validCount-1, order)

	classSet := make(map[int]bool)

	for _, id := range classIDs {
		classSet[id] = true
	}

	for c := range classSet {
		nms(validCount, boxes, classIDs, order, c, y.Params.NMSThreshold)
	}

	scale := resizer.ScaleFactor()
	srcW := uint32(resizer.SrcWidth())
	srcH := uint32(resizer.SrcHeight())

	group := make([]result.DetectResult, 0)

	for i := 0; i < validCount; i++ {

		if order[i] == -1 {
			continue
		}

		if len(group) >= y.Params.MaxObjectNumber {
			break
		}

		n := order[i]

		x1 := (boxes[n*4] - float32(resizer.XPad())) / scale
		y1 := (boxes[n*4+1] - float32(resizer.YPad())) / scale
		x2 := x1 + boxes[n*4+2]/scale
		y2 := y1 + boxes[n*4+3]/scale

		group = append(group, result.DetectResult{
			Box: result.BoxRect{
				Left:   int(clamp(x1, 0, srcW)),
				Top:    int(clamp(y1, 0, srcH)),
				Right:  int(clamp(x2, 0, srcW)),
				Bottom: int(clamp(y2, 0, srcH)),
			},
			Probability: probs[i],
			Class:       classIDs[n],
			ID:          y.idGen.GetNext(),
		})
	}

	return YOLOv8Result{
		DetectResults: group,
	}, nil
}
