package source

import (
	"errors"
	"fmt"
	"gocv.io/x/gocv"
	"io"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrReadFailed is returned when a frame could not be read from a live
	// or file source before the end of the stream
	ErrReadFailed = errors.New("frame read failed")

	imageExts = map[string]bool{
		".jpg": true, ".jpeg": true, ".png": true, ".bmp": true,
		".tif": true, ".tiff": true, ".webp": true,
	}
)

// maxEmptyFrames is the number of consecutive empty frames tolerated from a
// video before the read is treated as failed
const maxEmptyFrames = 30

// Kind is the type of frame source
type Kind int

const (
	Video Kind = iota
	Camera
	Image
)

// String returns the name of the source kind
func (k Kind) String() string {
	switch k {
	case Camera:
		return "camera"
	case Image:
		return "image"
	default:
		return "video"
	}
}

// Info describes the stream produced by a source
type Info struct {
	Kind   Kind
	Name   string
	Width  int
	Height int
	FPS    float64
	// Frames is the number of frames in the stream, zero when unknown or
	// for live cameras
	Frames int
}

// Source produces frames one at a time
type Source interface {
	// Read the next frame into img.  Returns io.EOF at end of stream
	Read(img *gocv.Mat) error
	Info() Info
	Close() error
}

// Classify works out the kind of source name refers to.  An integer is a
// camera device index, a path with an image extension is a still image and
// anything else is a video file or stream URL.
func Classify(name string) (Kind, int) {

	if idx, err := strconv.Atoi(strings.TrimSpace(name)); err == nil && idx >= 0 {
		return Camera, idx
	}

	if imageExts[strings.ToLower(filepath.Ext(name))] {
		return Image, 0
	}

	return Video, 0
}

// Open returns a Source for the given name
func Open(name string) (Source, error) {

	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("no source given")
	}

	kind, idx := Classify(name)

	switch kind {
	case Camera:
		return openCamera(idx)
	case Image:
		return openImage(name)
	default:
		return openVideo(name)
	}
}

// capture wraps a gocv VideoCapture for both files and cameras
type capture struct {
	video *gocv.VideoCapture
	info  Info
}

func openVideo(file string) (*capture, error) {

	video, err := gocv.VideoCaptureFile(file)

	if err != nil {
		return nil, fmt.Errorf("error opening video %s: %w", file, err)
	}

	return newCapture(video, Video, file), nil
}

func openCamera(idx int) (*capture, error) {

	video, err := gocv.OpenVideoCapture(idx)

	if err != nil {
		return nil, fmt.Errorf("error opening camera %d: %w", idx, err)
	}

	return newCapture(video, Camera, fmt.Sprintf("camera:%d", idx)), nil
}

func newCapture(video *gocv.VideoCapture, kind Kind, name string) *capture {

	info := Info{
		Kind:   kind,
		Name:   name,
		Width:  int(video.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(video.Get(gocv.VideoCaptureFrameHeight)),
		FPS:    video.Get(gocv.VideoCaptureFPS),
	}

	if kind == Video {
		info.Frames = int(video.Get(gocv.VideoCaptureFrameCount))
	}

	return &capture{video: video, info: info}
}

// Read the next frame.  A file that stops returning frames has ended, a
// camera that stops returning frames has failed.
func (c *capture) Read(img *gocv.Mat) error {

	for empty := 0; empty < maxEmptyFrames; empty++ {

		if ok := c.video.Read(img); !ok {
			if c.info.Kind == Camera {
				return fmt.Errorf("%w: %s", ErrReadFailed, c.info.Name)
			}
			return io.EOF
		}

		if !img.Empty() {
			return nil
		}
	}

	return fmt.Errorf("%w: %s returned %d empty frames", ErrReadFailed,
		c.info.Name, maxEmptyFrames)
}

func (c *capture) Info() Info {
	return c.info
}

func (c *capture) Close() error {
	return c.video.Close()
}

// still is a single image served as a one frame stream
type still struct {
	img  gocv.Mat
	info Info
	done bool
}

func openImage(file string) (*still, error) {

	img := gocv.IMRead(file, gocv.IMReadColor)

	if img.Empty() {
		img.Close()
		return nil, fmt.Errorf("error reading image %s", file)
	}

	return &still{
		img: img,
		info: Info{
			Kind:   Image,
			Name:   file,
			Width:  img.Cols(),
			Height: img.Rows(),
			Frames: 1,
		},
	}, nil
}

func (s *still) Read(img *gocv.Mat) error {

	if s.done {
		return io.EOF
	}

	s.img.CopyTo(img)
	s.done = true

	return nil
}

func (s *still) Info() Info {
	return s.info
}

func (s *still) Close() error {
	return s.img.Close()
}
