package render

import (
	"github.com/swdee/go-planktrack/tracker"
	"gocv.io/x/gocv"
	"image"
	"image/color"
)

// TrailStyle defines how organism trails are drawn
type TrailStyle struct {
	// LineSame draws the trail in the species colour instead of LineColor
	LineSame      bool
	LineColor     color.RGBA
	LineThickness int
	// MinPoints is the history needed before a trail is drawn
	MinPoints int
}

// DefaultTrailStyle returns thin trails in the species colour
func DefaultTrailStyle() TrailStyle {
	return TrailStyle{
		LineSame:      true,
		LineColor:     Yellow,
		LineThickness: 1,
		MinPoints:     2,
	}
}

// Trail draws the movement history of each track
func Trail(img *gocv.Mat, tracks []Track, trail *tracker.Trail,
	palette *Palette, style TrailStyle) {

	for _, t := range tracks {

		points := trail.GetPoints(t.TrackID)

		if len(points) < style.MinPoints {
			continue
		}

		clr := style.LineColor

		if style.LineSame {
			clr = palette.Color(t.Label)
		}

		for i := 1; i < len(points); i++ {
			gocv.Line(img,
				image.Pt(points[i-1].X, points[i-1].Y),
				image.Pt(points[i].X, points[i].Y),
				clr, style.LineThickness,
			)
		}
	}
}
