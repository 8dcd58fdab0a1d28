package detect

import (
	"errors"
	"fmt"
	"github.com/samber/lo"
	"github.com/swdee/go-planktrack"
	"github.com/swdee/go-planktrack/counter"
	"github.com/swdee/go-planktrack/postprocess"
	"github.com/swdee/go-planktrack/postprocess/result"
	"github.com/swdee/go-planktrack/preprocess"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"
	"image"
	"image/color"
)

var (
	// letterboxPad is the grey YOLO models are trained with for padding
	letterboxPad = color.RGBA{R: 114, G: 114, B: 114, A: 255}
)

// YOLOOptions configure the YOLO detector
type YOLOOptions struct {
	// Model is the path to the ONNX model file
	Model string
	// Labels are the class names in model class order
	Labels []string
	// InputWidth and InputHeight are the model input size
	InputWidth  int
	InputHeight int
	// Confidence is the minimum class score kept
	Confidence float32
	// NMS is the IoU threshold for suppressing duplicate boxes
	NMS float32
	// Classes restricts output to these labels when not empty
	Classes []string
	// Backend and Target select the OpenCV DNN backend, eg: "opencv"/"cpu"
	// or "cuda"/"cuda"
	Backend string
	Target  string
	// Tiled cuts large frames into overlapping model sized tiles
	Tiled bool
	// TileOverlap is the minimum overlap between tiles as a ratio of the
	// tile size
	TileOverlap float32
}

// DefaultYOLOOptions returns the options for a 640x640 model
func DefaultYOLOOptions() YOLOOptions {
	return YOLOOptions{
		InputWidth:  640,
		InputHeight: 640,
		Confidence:  0.25,
		NMS:         0.45,
		Backend:     "default",
		Target:      "cpu",
		TileOverlap: 0.2,
	}
}

// YOLO runs a YOLOv8 ONNX model with the OpenCV DNN module
type YOLO struct {
	opts    YOLOOptions
	net     gocv.Net
	process *postprocess.YOLOv8
	allow   map[string]bool
	// resizer is rebuilt when the frame size changes
	resizer *preprocess.Resizer
	tiler   *preprocess.Tiler
	input   gocv.Mat
}

// NewYOLO loads the model
func NewYOLO(opts YOLOOptions) (*YOLO, error) {

	if len(opts.Labels) == 0 {
		return nil, errors.New("model labels are required")
	}

	if opts.InputWidth <= 0 || opts.InputHeight <= 0 {
		return nil, fmt.Errorf("invalid model input size %dx%d",
			opts.InputWidth, opts.InputHeight)
	}

	net := gocv.ReadNetFromONNX(opts.Model)

	if net.Empty() {
		return nil, fmt.Errorf("error reading network model %s", opts.Model)
	}

	if err := net.SetPreferableBackend(gocv.ParseNetBackend(opts.Backend)); err != nil {
		net.Close()
		return nil, fmt.Errorf("error setting backend %s: %w", opts.Backend, err)
	}

	if err := net.SetPreferableTarget(gocv.ParseNetTarget(opts.Target)); err != nil {
		net.Close()
		return nil, fmt.Errorf("error setting target %s: %w", opts.Target, err)
	}

	params := postprocess.YOLOv8PlanktonParams(len(opts.Labels))
	params.BoxThreshold = opts.Confidence
	params.NMSThreshold = opts.NMS

	y := &YOLO{
		opts:    opts,
		net:     net,
		process: postprocess.NewYOLOv8(params),
		allow:   newAllowList(opts.Classes),
		input:   gocv.NewMat(),
	}

	if opts.Tiled {
		y.tiler = preprocess.NewTiler(opts.InputWidth, opts.InputHeight,
			opts.TileOverlap, opts.TileOverlap)
	}

	return y, nil
}

// newAllowList returns the label set to keep, nil keeps everything
func newAllowList(classes []string) map[string]bool {

	if len(classes) == 0 {
		return nil
	}

	return lo.SliceToMap(classes, func(c string) (string, bool) {
		return c, true
	})
}

// Detect runs the model over the frame
func (y *YOLO) Detect(frameIndex int, img gocv.Mat) ([]counter.Observation, error) {

	if img.Empty() {
		return nil, fmt.Errorf("frame %d is empty", frameIndex)
	}

	var dets []result.DetectResult
	var err error

	if y.tiler != nil {
		dets, err = y.detectTiled(img)
	} else {
		dets, err = y.detectFrame(img)
	}

	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", frameIndex, err)
	}

	return y.toObservations(dets)
}

// detectFrame letterboxes the whole frame into the model input
func (y *YOLO) detectFrame(img gocv.Mat) ([]result.DetectResult, error) {

	if y.resizer == nil || !y.resizer.Fits(img.Cols(), img.Rows()) {
		if y.resizer != nil {
			y.resizer.Close()
		}
		y.resizer = preprocess.NewResizer(img.Cols(), img.Rows(),
			y.opts.InputWidth, y.opts.InputHeight)
	}

	y.resizer.LetterBoxResize(img, &y.input, letterboxPad)

	return y.infer(y.input, y.resizer)
}

// detectTiled runs the model on each tile and merges the results
func (y *YOLO) detectTiled(img gocv.Mat) ([]result.DetectResult, error) {

	tiles := y.tiler.Tiles(img)
	defer y.tiler.FreeResults()

	var err error

	for i := range tiles {

		tile := &tiles[i]
		dets, ierr := y.infer(*tile.Mat(), tile.Resizer())

		if ierr != nil {
			err = multierr.Append(err, ierr)
			break
		}

		y.tiler.AddResult(*tile, dets)
	}

	for i := range tiles {
		err = multierr.Append(err, tiles[i].Free())
	}

	if err != nil {
		return nil, err
	}

	return y.tiler.Merge(y.opts.NMS, 0.7), nil
}

// infer runs one forward pass on a model sized input
func (y *YOLO) infer(input gocv.Mat, resizer *preprocess.Resizer) ([]result.DetectResult, error) {

	blob := gocv.BlobFromImage(input, 1.0/255.0,
		image.Pt(y.opts.InputWidth, y.opts.InputHeight),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	y.net.SetInput(blob, "")

	output := y.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()

	if err != nil {
		return nil, fmt.Errorf("error reading output tensor: %w", err)
	}

	res, err := y.process.DetectObjects(data, resizer)

	if err != nil {
		return nil, fmt.Errorf("error decoding output: %w", err)
	}

	return res.GetDetectResults(), nil
}

// toObservations names and filters the detections
func (y *YOLO) toObservations(dets []result.DetectResult) ([]counter.Observation, error) {

	obs := make([]counter.Observation, 0, len(dets))

	for _, d := range dets {

		label := planktrack.LabelName(y.opts.Labels, d.Class)

		if y.allow != nil && !y.allow[label] {
			continue
		}

		o := counter.Observation{
			Box: counter.Box{
				Left:   float32(d.Box.Left),
				Top:    float32(d.Box.Top),
				Right:  float32(d.Box.Right),
				Bottom: float32(d.Box.Bottom),
			},
			Label:      label,
			Confidence: d.Probability,
		}

		if err := o.Validate(); err != nil {
			return nil, err
		}

		obs = append(obs, o)
	}

	return obs, nil
}

// Close frees the network and working Mats
func (y *YOLO) Close() error {

	err := multierr.Combine(
		y.net.Close(),
		y.input.Close(),
	)

	if y.resizer != nil {
		err = multierr.Append(err, y.resizer.Close())
	}

	return err
}
