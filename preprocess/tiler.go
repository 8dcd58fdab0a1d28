package preprocess

import (
	"github.com/swdee/go-planktrack/postprocess/result"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"
	"image"
	"image/color"
	"math"
	"sort"
)

// Tiler splits high resolution microscope frames into overlapping tiles
// the size of the model input so small organisms are not lost when the whole
// frame is scaled down.  Detections from all tiles are mapped back to frame
// coordinates and merged.
type Tiler struct {
	tileWidth  int
	tileHeight int
	// overlapWidth and overlapHeight are the minimum overlap between
	// neighbouring tiles as a ratio of the tile size
	overlapWidth  float32
	overlapHeight float32
	results       []tileResult
	idGen         *result.IDGenerator
}

// tileResult is a tile and the detections found in it
type tileResult struct {
	tile Tile
	det  []result.DetectResult
}

// Tile is a region of the source frame
type Tile struct {
	// X, Y is the top left corner in source frame pixels
	X int
	Y int
	// X2, Y2 is the bottom right corner in source frame pixels
	X2 int
	Y2 int
	// region is a view into the source frame
	region  gocv.Mat
	resizer *Resizer
	destMat gocv.Mat
}

// NewTiler returns a Tiler producing tiles that letterbox into
// tileWidth x tileHeight, which should match the model input size
func NewTiler(tileWidth, tileHeight int, overlapWidth, overlapHeight float32) *Tiler {
	return &Tiler{
		tileWidth:     tileWidth,
		tileHeight:    tileHeight,
		overlapWidth:  overlapWidth,
		overlapHeight: overlapHeight,
		idGen:         result.NewIDGenerator(),
	}
}

// computePositions returns the start offsets of the tiles along one axis and
// the tile length.  The fewest tiles of tileLen = sliceLen + minimum overlap
// are used that cover srcLen, with the spare pixels spread evenly so every
// overlap is at least the minimum.  A source shorter than one tile yields a
// single tile covering it.
func computePositions(srcLen, sliceLen int, overlapRatio float32) ([]int, int) {

	minOverlap := int(math.Ceil(float64(float32(sliceLen) * overlapRatio)))
	tileLen := sliceLen + minOverlap

	if srcLen <= tileLen {
		return []int{0}, srcLen
	}

	// stepping by at most sliceLen keeps the overlap at or above minOverlap
	n := int(math.Ceil(float64(srcLen-tileLen)/float64(sliceLen))) + 1
	step := float64(srcLen-tileLen) / float64(n-1)

	positions := make([]int, n)

	for i := range positions {
		p := int(math.Round(step * float64(i)))
		positions[i] = min(max(p, 0), srcLen-tileLen)
	}

	return positions, tileLen
}

// Tiles cuts the source frame into tiles.  Each tile must be released with
// Free after use.
func (t *Tiler) Tiles(src gocv.Mat) []Tile {

	xs, tileW := computePositions(src.Cols(), t.tileWidth, t.overlapWidth)
	ys, tileH := computePositions(src.Rows(), t.tileHeight, t.overlapHeight)

	tiles := make([]Tile, 0, len(xs)*len(ys))

	for _, y := range ys {
		for _, x := range xs {
			tiles = append(tiles, Tile{
				X:       x,
				Y:       y,
				X2:      x + tileW,
				Y2:      y + tileH,
				region:  src.Region(image.Rect(x, y, x+tileW, y+tileH)),
				resizer: NewResizer(tileW, tileH, t.tileWidth, t.tileHeight),
				destMat: gocv.NewMat(),
			})
		}
	}

	return tiles
}

// AddResult stores the detections found in a tile, with boxes in tile pixels
func (t *Tiler) AddResult(tile Tile, res []result.DetectResult) {
	t.results = append(t.results, tileResult{
		tile: tile,
		det:  res,
	})
}

// Merge returns the detections of all added tiles in source frame
// coordinates.  Boxes on tile borders are found twice, so overlapping boxes
// are clustered and the largest of each cluster kept.  A box joins a cluster
// when its IoU with the cluster's first box exceeds iouThresh or when more
// than smallBoxOverlapThresh of its area lies inside it.
func (t *Tiler) Merge(iouThresh, smallBoxOverlapThresh float32) []result.DetectResult {

	all := make([]result.DetectResult, 0)

	for _, tr := range t.results {
		for _, dr := range tr.det {
			all = append(all, result.DetectResult{
				Box: result.BoxRect{
					Left:   tr.tile.X + dr.Box.Left,
					Top:    tr.tile.Y + dr.Box.Top,
					Right:  tr.tile.X + dr.Box.Right,
					Bottom: tr.tile.Y + dr.Box.Bottom,
				},
				Probability: dr.Probability,
				Class:       dr.Class,
				ID:          t.idGen.GetNext(),
			})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Probability > all[j].Probability
	})

	return clusterBoxes(all, iouThresh, smallBoxOverlapThresh)
}

// FreeResults clears the added results ready for the next frame
func (t *Tiler) FreeResults() {
	t.results = t.results[:0]
}

// clusterBoxes keeps one box per overlapping cluster choosing the largest
// area, ties going to the higher probability.  dets must be sorted by
// descending probability.
func clusterBoxes(dets []result.DetectResult, iouThresh,
	smallBoxOverlapThresh float32) []result.DetectResult {

	taken := make([]bool, len(dets))
	keep := make([]result.DetectResult, 0, len(dets))

	for i, base := range dets {

		if taken[i] {
			continue
		}

		taken[i] = true
		best := base

		for j := i + 1; j < len(dets); j++ {

			if taken[j] {
				continue
			}

			other := dets[j]
			area := other.Box.Area()
			covered := area > 0 &&
				float32(base.Box.Intersection(other.Box))/float32(area) > smallBoxOverlapThresh

			if base.Box.IoU(other.Box) <= iouThresh && !covered {
				continue
			}

			taken[j] = true

			if area > best.Box.Area() ||
				(area == best.Box.Area() && other.Probability > best.Probability) {
				best = other
			}
		}

		keep = append(keep, best)
	}

	return keep
}

// Mat returns the tile letterboxed to the model input size
func (tl *Tile) Mat() *gocv.Mat {
	tl.resizer.LetterBoxResize(tl.region, &tl.destMat, color.RGBA{R: 0, G: 0, B: 0, A: 255})
	return &tl.destMat
}

// Resizer returns the tile's letterbox resizer
func (tl *Tile) Resizer() *Resizer {
	return tl.resizer
}

// Free releases the tile's Mats
func (tl *Tile) Free() error {
	return multierr.Combine(
		tl.resizer.Close(),
		tl.region.Close(),
		tl.destMat.Close(),
	)
}
