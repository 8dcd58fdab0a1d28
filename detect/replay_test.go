package detect

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-planktrack/counter"
	"github.com/swdee/go-planktrack/postprocess/result"
	"gocv.io/x/gocv"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const dump = `{"frame":2,"detections":[{"box":[10,10,20,20],"label":"Chlorella","confidence":0.9}]}
{"frame":0,"detections":[]}

{"frame":1,"detections":[{"box":[12,10,22,20],"label":"Chlorella","confidence":0.8},{"box":[100,100,130,140],"label":"Porphyridium","confidence":0.6}]}
`

func TestReadReplay(t *testing.T) {

	r, err := ReadReplay(strings.NewReader(dump))
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, r.Frames())
	assert.Empty(t, r.Observations(0))
	assert.Len(t, r.Observations(1), 2)
	assert.Nil(t, r.Observations(7))

	obs, err := r.Detect(2, gocv.NewMat())
	require.NoError(t, err)
	assert.Equal(t, counter.Observation{
		Box:        counter.Box{Left: 10, Top: 10, Right: 20, Bottom: 20},
		Label:      "Chlorella",
		Confidence: 0.9,
	}, obs[0])
}

func TestReadReplayRejectsBadInput(t *testing.T) {

	_, err := ReadReplay(strings.NewReader("{not json}\n"))
	assert.ErrorContains(t, err, "line 1")

	bad := `{"frame":0,"detections":[]}
{"frame":1,"detections":[{"box":[10,10,20,20],"label":"Chlorella","confidence":1.5}]}
`
	_, err = ReadReplay(strings.NewReader(bad))
	assert.ErrorIs(t, err, counter.ErrInvalidObservation)
	assert.ErrorContains(t, err, "line 2")
}

func TestRecordRoundTrip(t *testing.T) {

	obs := []counter.Observation{{
		Box:        counter.Box{Left: 1, Top: 2, Right: 3, Bottom: 4},
		Label:      "Dunaliella",
		Confidence: 0.5,
	}}

	rec := NewRecord(9, obs)
	assert.Equal(t, [4]float32{1, 2, 3, 4}, rec.Detections[0].Box)

	back, err := rec.Observations()
	require.NoError(t, err)
	assert.Equal(t, obs, back)
}

func TestLoadReplay(t *testing.T) {

	file := filepath.Join(t.TempDir(), "dets.jsonl")
	require.NoError(t, os.WriteFile(file, []byte(dump), 0o644))

	r, err := LoadReplay(file)
	require.NoError(t, err)
	assert.Len(t, r.Frames(), 3)

	_, err = LoadReplay(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}

func TestAllowList(t *testing.T) {
	assert.Nil(t, newAllowList(nil))
	assert.Equal(t, map[string]bool{"Chlorella": true}, newAllowList([]string{"Chlorella"}))
}

func TestNewYOLOValidation(t *testing.T) {

	_, err := NewYOLO(YOLOOptions{Model: "model.onnx"})
	assert.ErrorContains(t, err, "labels")

	opts := DefaultYOLOOptions()
	opts.Labels = []string{"Chlorella"}
	opts.InputWidth = 0
	_, err = NewYOLO(opts)
	assert.ErrorContains(t, err, "input size")
}

func TestYOLOToObservations(t *testing.T) {

	y := &YOLO{
		opts:  YOLOOptions{Labels: []string{"Chlorella", "Porphyridium"}},
		allow: newAllowList([]string{"Porphyridium", "class_5"}),
	}

	dets := []result.DetectResult{
		{Class: 0, Box: result.BoxRect{Left: 0, Top: 0, Right: 10, Bottom: 10}, Probability: 0.9},
		{Class: 1, Box: result.BoxRect{Left: 5, Top: 6, Right: 15, Bottom: 26}, Probability: 0.7},
		{Class: 5, Box: result.BoxRect{Left: 1, Top: 1, Right: 2, Bottom: 2}, Probability: 0.4},
	}

	obs, err := y.toObservations(dets)
	require.NoError(t, err)

	require.Len(t, obs, 2)
	assert.Equal(t, "Porphyridium", obs[0].Label)
	assert.Equal(t, counter.Box{Left: 5, Top: 6, Right: 15, Bottom: 26}, obs[0].Box)
	assert.Equal(t, "class_5", obs[1].Label)

	// without an allow list everything is kept
	y.allow = nil
	obs, err = y.toObservations(dets)
	require.NoError(t, err)
	assert.Len(t, obs, 3)
}
