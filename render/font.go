package render

import (
	"gocv.io/x/gocv"
	"image"
	"image/color"
)

// Alignment is the horizontal placement of a label relative to its box
type Alignment int

const (
	Left Alignment = iota + 1
	Center
	Right
)

// Padding is the space in pixels between text and the edges of its
// background
type Padding struct {
	Left   int
	Right  int
	Top    int
	Bottom int
}

// Font is an antialiased Hershey text style shared by box labels and the
// statistics panel
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	Pad       Padding
	// Alignment of a label to its bounding box
	Alignment Alignment
}

// DefaultFont returns black label text, readable on the bright species
// colours used for label backgrounds
func DefaultFont() Font {
	return Font{
		Face:      gocv.FontHersheySimplex,
		Scale:     0.5,
		Color:     Black,
		Thickness: 1,
		Pad:       Padding{Left: 4, Right: 4, Top: 4, Bottom: 6},
		Alignment: Left,
	}
}

// PanelFont returns unpadded text for a statistics panel line
func PanelFont(scale float64, clr color.RGBA, thickness int) Font {
	return Font{
		Face:      gocv.FontHersheySimplex,
		Scale:     scale,
		Color:     clr,
		Thickness: thickness,
		Alignment: Left,
	}
}

// Size is the width and height of text drawn in the font, excluding the
// baseline
func (f Font) Size(text string) image.Point {
	return gocv.GetTextSize(text, f.Face, f.Scale, f.Thickness)
}

// Put draws text with its baseline starting at pt
func (f Font) Put(img *gocv.Mat, text string, pt image.Point) {
	gocv.PutTextWithParams(img, text, pt, f.Face, f.Scale, f.Color,
		f.Thickness, gocv.LineAA, false)
}
