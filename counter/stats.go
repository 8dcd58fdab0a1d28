package counter

import (
	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
	"math"
	"sort"
	"time"
)

// RunStatistics is a point in time snapshot of the counts for a run
type RunStatistics struct {
	// TotalUnique is the number of distinct track IDs seen
	TotalUnique int `json:"total_unique"`
	// UniqueByClass is the number of distinct track IDs per class
	UniqueByClass map[string]int `json:"unique_by_class"`
	// ActiveByClass is the number of currently active tracks per class
	ActiveByClass map[string]int `json:"active_by_class"`
	// TotalActive is the number of currently active tracks
	TotalActive int `json:"total_active"`
	// FramesProcessed is the number of frames ingested
	FramesProcessed int `json:"frames_processed"`
	// CurrentFrame is the last ingested frame index
	CurrentFrame int `json:"current_frame"`
	// Elapsed is the processing time since counting began
	Elapsed time.Duration `json:"elapsed"`
}

// ClassCount is the unique count for a single class
type ClassCount struct {
	Label   string
	Count   int
	Percent float64
}

// Diversity holds ecological diversity indices of the unique counts
type Diversity struct {
	// Shannon is the Shannon-Wiener index H' using natural log
	Shannon float64 `json:"shannon"`
	// Simpson is the Gini-Simpson index 1 - sum(p^2)
	Simpson float64 `json:"simpson"`
	// Richness is the number of classes with at least one organism
	Richness int `json:"richness"`
}

// Percent returns the share of unique organisms of the given class as a
// percentage, zero when nothing has been counted
func (s RunStatistics) Percent(label string) float64 {

	if s.TotalUnique == 0 {
		return 0
	}

	return float64(s.UniqueByClass[label]) / float64(s.TotalUnique) * 100
}

// Classes returns the per class unique counts sorted by count descending
// then by label
func (s RunStatistics) Classes() []ClassCount {

	out := lo.MapToSlice(s.UniqueByClass, func(label string, n int) ClassCount {
		return ClassCount{
			Label:   label,
			Count:   n,
			Percent: s.Percent(label),
		}
	})

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})

	return out
}

// proportions returns the share of each class with a non-zero count
func (s RunStatistics) proportions() []float64 {

	if s.TotalUnique == 0 {
		return nil
	}

	classes := s.Classes()
	p := make([]float64, 0, len(classes))

	for _, c := range classes {
		if c.Count > 0 {
			p = append(p, float64(c.Count)/float64(s.TotalUnique))
		}
	}

	return p
}

// Diversity calculates the Shannon and Simpson diversity of the sample
func (s RunStatistics) Diversity() Diversity {

	p := s.proportions()

	if len(p) == 0 {
		return Diversity{}
	}

	sumSq := lo.SumBy(p, func(v float64) float64 {
		return v * v
	})

	d := Diversity{
		Shannon:  stat.Entropy(p),
		Simpson:  1 - sumSq,
		Richness: len(p),
	}

	// a single class yields -0 from the entropy sum
	d.Shannon = math.Abs(d.Shannon)

	return d
}

// Dominant returns the class whose share of the unique organisms is at or
// above threshold (0..1), as used for bloom alerts.  The boolean is false
// when no class reaches the threshold or nothing has been counted.
func (s RunStatistics) Dominant(threshold float64) (ClassCount, bool) {

	classes := s.Classes()

	if len(classes) == 0 {
		return ClassCount{}, false
	}

	top := classes[0]

	if float64(top.Count)/float64(s.TotalUnique) < threshold {
		return ClassCount{}, false
	}

	return top, true
}
