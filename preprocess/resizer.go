package preprocess

import (
	"gocv.io/x/gocv"
	"image"
	"image/color"
)

// Resizer letterboxes frames of a fixed size into the model input size,
// keeping the aspect ratio and padding the remainder evenly on both sides
type Resizer struct {
	srcWidth   int
	srcHeight  int
	destWidth  int
	destHeight int
	// tempMat holds the scaled frame before padding
	tempMat gocv.Mat
	xPad    int
	yPad    int
	scale   float32
	// resizeW and resizeH are the scaled frame size before padding
	resizeW int
	resizeH int
}

// NewResizer returns a resizer scaling srcWidth x srcHeight frames into
// destWidth x destHeight
func NewResizer(srcWidth, srcHeight, destWidth, destHeight int) *Resizer {

	r := &Resizer{
		srcWidth:   srcWidth,
		srcHeight:  srcHeight,
		destWidth:  destWidth,
		destHeight: destHeight,
		tempMat:    gocv.NewMat(),
	}

	scaleW := float32(destWidth) / float32(srcWidth)
	scaleH := float32(destHeight) / float32(srcHeight)

	// the smaller scale fits the whole frame, the other axis gets padded
	if scaleW < scaleH {
		r.scale = scaleW
		r.resizeW = destWidth
		r.resizeH = int(float32(srcHeight) * scaleW)
	} else {
		r.scale = scaleH
		r.resizeW = int(float32(srcWidth) * scaleH)
		r.resizeH = destHeight
	}

	r.xPad = (destWidth - r.resizeW) / 2
	r.yPad = (destHeight - r.resizeH) / 2

	return r
}

// Close frees the working Mat
func (r *Resizer) Close() error {
	return r.tempMat.Close()
}

// LetterBoxResize scales src into dest padding with the given colour
func (r *Resizer) LetterBoxResize(src gocv.Mat, dest *gocv.Mat, pad color.RGBA) {

	gocv.Resize(src, &r.tempMat, image.Pt(r.resizeW, r.resizeH),
		0, 0, gocv.InterpolationArea)

	gocv.CopyMakeBorder(r.tempMat, dest,
		r.yPad, r.destHeight-r.resizeH-r.yPad,
		r.xPad, r.destWidth-r.resizeW-r.xPad,
		gocv.BorderConstant, pad)
}

// ScaleFactor returns the scale applied to the source frame
func (r *Resizer) ScaleFactor() float32 {
	return r.scale
}

// XPad returns the left padding in destination pixels
func (r *Resizer) XPad() int {
	return r.xPad
}

// YPad returns the top padding in destination pixels
func (r *Resizer) YPad() int {
	return r.yPad
}

// SrcWidth returns the width of the source frame
func (r *Resizer) SrcWidth() int {
	return r.srcWidth
}

// SrcHeight returns the height of the source frame
func (r *Resizer) SrcHeight() int {
	return r.srcHeight
}

// DestWidth returns the model input width
func (r *Resizer) DestWidth() int {
	return r.destWidth
}

// DestHeight returns the model input height
func (r *Resizer) DestHeight() int {
	return r.destHeight
}

// Fits reports whether the resizer was built for frames of the given size
func (r *Resizer) Fits(width, height int) bool {
	return r.srcWidth == width && r.srcHeight == height
}
