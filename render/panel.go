package render

import (
	"fmt"
	"github.com/swdee/go-planktrack/counter"
	"gocv.io/x/gocv"
	"image"
	"time"
)

// PanelInfo is the per frame data shown on the statistics panel besides
// the counts themselves
type PanelInfo struct {
	// Frame is the index of the frame being drawn
	Frame int
	// TotalFrames is the length of the stream, zero for live sources
	TotalFrames int
	// Inference is the time the detector took on this frame
	Inference time.Duration
}

// PanelStyle controls the look of the statistics panel
type PanelStyle struct {
	Height int
	// Alpha is the opacity of the dark panel background
	Alpha float64
	Title string
	// SpeciesWidth is the width reserved on the right for the species list
	SpeciesWidth int
	// MaxSpecies limits the number of species rows drawn
	MaxSpecies int
}

// DefaultPanelStyle returns the standard panel layout
func DefaultPanelStyle() PanelStyle {
	return PanelStyle{
		Height:       180,
		Alpha:        0.7,
		Title:        "PLANKTON FLOW TRACKER",
		SpeciesWidth: 300,
		MaxSpecies:   7,
	}
}

// panelLine is a single line of text on the panel
type panelLine struct {
	text string
	pos  image.Point
	font Font
}

// inferenceText formats the detector timing line
func inferenceText(d time.Duration) string {

	ms := float64(d) / float64(time.Millisecond)
	fps := 0.0

	if ms > 0 {
		fps = 1000 / ms
	}

	return fmt.Sprintf("Inference: %.1fms (%.1f FPS)", ms, fps)
}

// frameText formats the frame position line
func frameText(info PanelInfo) string {
	if info.TotalFrames > 0 {
		return fmt.Sprintf("Frame: %d/%d", info.Frame, info.TotalFrames)
	}
	return fmt.Sprintf("Frame: %d", info.Frame)
}

// panelLines lays out the text of the panel for an image of the given width
func panelLines(width int, stats counter.RunStatistics, info PanelInfo,
	style PanelStyle) []panelLine {

	lines := []panelLine{
		{style.Title, image.Pt(10, 30), PanelFont(0.8, Cyan, 3)},
		{frameText(info), image.Pt(10, 60), PanelFont(0.6, White, 2)},
		{inferenceText(info.Inference), image.Pt(10, 85), PanelFont(0.6, Green, 2)},
		{fmt.Sprintf("UNIQUE COUNT: %d", stats.TotalUnique), image.Pt(10, 120), PanelFont(0.7, Cyan, 3)},
		{fmt.Sprintf("Active Tracks: %d", stats.TotalActive), image.Pt(10, 150), PanelFont(0.6, White, 2)},
	}

	x := width - style.SpeciesWidth

	if x < 0 {
		return lines
	}

	lines = append(lines, panelLine{"SPECIES:", image.Pt(x, 30), PanelFont(0.6, Yellow, 2)})

	for i, c := range stats.Classes() {
		if i >= style.MaxSpecies {
			break
		}

		lines = append(lines, panelLine{
			text: fmt.Sprintf("%s: %d (%.1f%%)", c.Label, c.Count, c.Percent),
			pos:  image.Pt(x, 55+i*20),
			font: PanelFont(0.5, White, 1),
		})
	}

	return lines
}

// StatsPanel draws a translucent panel across the top of the image with
// the running counts
func StatsPanel(img *gocv.Mat, stats counter.RunStatistics, info PanelInfo,
	style PanelStyle) {

	height := style.Height

	if height > img.Rows() {
		height = img.Rows()
	}

	overlay := img.Clone()
	defer overlay.Close()

	gocv.Rectangle(&overlay, image.Rect(0, 0, img.Cols(), height), Black, -1)
	gocv.AddWeighted(overlay, style.Alpha, *img, 1-style.Alpha, 0, img)

	for _, l := range panelLines(img.Cols(), stats, info, style) {
		l.font.Put(img, l.text, l.pos)
	}
}
