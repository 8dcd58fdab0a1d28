package render

import (
	"fmt"
	"github.com/swdee/go-planktrack/counter"
	"github.com/swdee/go-planktrack/tracker"
	"gocv.io/x/gocv"
	"image"
	"image/color"
)

const (
	// newBoxThickness is used for organisms counted in the current frame
	newBoxThickness = 3
	// boxThickness is used for organisms already counted
	boxThickness = 2
)

// Track is a tracked organism to draw for the current frame
type Track struct {
	counter.TrackedObservation
	// New is true when the organism was first counted in this frame
	New bool
	// Direction is the flow direction worked out from the trail
	Direction tracker.Direction
}

// Caption returns the overlay text for the track
func (t Track) Caption() string {

	text := fmt.Sprintf("ID:%d %s %.2f", t.TrackID, t.Label, t.Confidence)

	if arrow := t.Direction.Arrow(); arrow != "" {
		text += " " + arrow
	}

	return text
}

// boxLabel is a label whose position has been worked out and is drawn after
// all boxes so labels are on top
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// TrackerBoxes draws the bounding box, centre point and label of each
// tracked organism in its species colour
func TrackerBoxes(img *gocv.Mat, tracks []Track, palette *Palette, font Font) {

	labels := make([]boxLabel, 0, len(tracks))

	for _, t := range tracks {

		clr := palette.Color(t.Label)
		rect := toRect(t.Box)

		thickness := boxThickness

		if t.New {
			thickness = newBoxThickness
		}

		gocv.Rectangle(img, rect, clr, thickness)

		cx, cy := t.Box.Center()
		gocv.Circle(img, image.Pt(int(cx), int(cy)), 3, clr, -1)

		labels = append(labels, placeLabel(rect, t.Caption(), clr, font, thickness))
	}

	drawLabels(img, labels, font)
}

// DetectionBoxes draws raw detector output when no tracker is in use
func DetectionBoxes(img *gocv.Mat, obs []counter.Observation, palette *Palette,
	font Font) {

	labels := make([]boxLabel, 0, len(obs))

	for _, o := range obs {

		clr := palette.Color(o.Label)
		rect := toRect(o.Box)

		gocv.Rectangle(img, rect, clr, boxThickness)

		text := fmt.Sprintf("%s %.2f", o.Label, o.Confidence)
		labels = append(labels, placeLabel(rect, text, clr, font, boxThickness))
	}

	drawLabels(img, labels, font)
}

// toRect converts a box into integer pixel coordinates
func toRect(b counter.Box) image.Rectangle {
	return image.Rect(int(b.Left), int(b.Top), int(b.Right), int(b.Bottom))
}

// placeLabel works out where the label sits above the box for the font's
// alignment
func placeLabel(box image.Rectangle, text string, clr color.RGBA, font Font,
	lineThickness int) boxLabel {

	size := font.Size(text)

	var centerX int

	switch font.Alignment {
	case Center:
		centerX = (box.Min.X + box.Max.X) / 2

	case Right:
		centerX = box.Max.X - (size.X / 2) - font.Pad.Right + (lineThickness / 2)

	default:
		centerX = box.Min.X + (size.X / 2) + font.Pad.Left - (lineThickness / 2)
	}

	return boxLabel{
		rect: image.Rect(centerX-size.X/2-font.Pad.Left,
			box.Min.Y-size.Y-font.Pad.Top-font.Pad.Bottom,
			centerX+size.X/2+font.Pad.Right, box.Min.Y),
		clr:     clr,
		text:    text,
		textPos: image.Pt(centerX-size.X/2, box.Min.Y-font.Pad.Bottom),
	}
}

// drawLabels paints each label's background then its text
func drawLabels(img *gocv.Mat, labels []boxLabel, font Font) {
	for _, l := range labels {
		gocv.Rectangle(img, l.rect, l.clr, -1)
		font.Put(img, l.text, l.textPos)
	}
}
