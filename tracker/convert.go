package tracker

import (
	"github.com/swdee/go-planktrack/counter"
)

// ObservationsToObjects converts detector observations into tracker objects.
// The index of each observation is used as the object ID so tracked results
// can be joined back to the observation they matched.
func ObservationsToObjects(obs []counter.Observation) []Object {

	objs := make([]Object, 0, len(obs))

	for i, o := range obs {
		objs = append(objs, Object{
			Rect:  RectFromBox(o.Box),
			Label: o.Label,
			Prob:  o.Confidence,
			ID:    int64(i),
		})
	}

	return objs
}
