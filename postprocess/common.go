package postprocess

import (
	"math"
)

// clamp restricts val to the range min and max
func clamp(val float32, min, max uint32) float32 {

	if val > float32(min) {
		if val < float32(max) {
			return val
		}

		return float32(max)
	}

	return float32(min)
}

// quickSortIndiceInverse sorts input descending in place and applies the
// same reordering to indices
func quickSortIndiceInverse(input []float32, left int, right int, indices []int) int {

	low := left
	high := right

	if left >= right {
		return low
	}

	key := input[left]
	keyIndex := indices[left]

	for low < high {
		for low < high && input[high] <= key {
			high--
		}

		input[low] = input[high]
		indices[low] = indices[high]

		for low < high && input[low] >= key {
			low++
		}

		input[high] = input[low]
		indices[high] = indices[low]
	}

	input[low] = key
	indices[low] = keyIndex

	quickSortIndiceInverse(input, left, low-1, indices)
	quickSortIndiceInverse(input, low+1, right, indices)

	return low
}

// nms suppresses boxes of class filterID that overlap a higher scoring box of
// the same class by more than threshold.  Boxes are stored as x, y, w, h in
// locations, order holds the box indices sorted by descending score and is
// set to -1 for suppressed boxes.
func nms(validCount int, locations []float32, classIDs, order []int,
	filterID int, threshold float32) {

	for i := 0; i < validCount; i++ {

		n := order[i]

		if n == -1 || classIDs[n] != filterID {
			continue
		}

		for j := i + 1; j < validCount; j++ {

			m := order[j]

			if m == -1 || classIDs[m] != filterID {
				continue
			}

			iou := calculateOverlap(
				locations[n*4], locations[n*4+1],
				locations[n*4]+locations[n*4+2], locations[n*4+1]+locations[n*4+3],
				locations[m*4], locations[m*4+1],
				locations[m*4]+locations[m*4+2], locations[m*4+1]+locations[m*4+3],
			)

			if iou > threshold {
				order[j] = -1
			}
		}
	}
}

// calculateOverlap returns the IoU of two boxes given by their corners,
// treating edges as inclusive pixels
func calculateOverlap(xmin0, ymin0, xmax0, ymax0, xmin1, ymin1,
	xmax1, ymax1 float32) float32 {

	w := math.Max(0, math.Min(float64(xmax0), float64(xmax1))-math.Max(float64(xmin0), float64(xmin1))+1)
	h := math.Max(0, math.Min(float64(ymax0), float64(ymax1))-math.Max(float64(ymin0), float64(ymin1))+1)
	intersection := float32(w * h)

	area0 := (xmax0 - xmin0 + 1) * (ymax0 - ymin0 + 1)
	area1 := (xmax1 - xmin1 + 1) * (ymax1 - ymin1 + 1)
	union := area0 + area1 - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}
