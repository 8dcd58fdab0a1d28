package source

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
	"io"
	"path/filepath"
	"testing"
)

func TestClassify(t *testing.T) {

	tests := []struct {
		name string
		kind Kind
		idx  int
	}{
		{"0", Camera, 0},
		{" 2 ", Camera, 2},
		{"-1", Video, 0},
		{"sample.JPG", Image, 0},
		{"dir/slide.png", Image, 0},
		{"good flow.mov", Video, 0},
		{"rtsp://scope.local/stream", Video, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			kind, idx := Classify(tc.name)
			assert.Equal(t, tc.kind, kind)
			assert.Equal(t, tc.idx, idx)
		})
	}
}

func TestOpenImage(t *testing.T) {

	file := filepath.Join(t.TempDir(), "slide.png")

	src := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer src.Close()
	require.True(t, gocv.IMWrite(file, src))

	s, err := Open(file)
	require.NoError(t, err)
	defer s.Close()

	info := s.Info()
	assert.Equal(t, Image, info.Kind)
	assert.Equal(t, 64, info.Width)
	assert.Equal(t, 48, info.Height)
	assert.Equal(t, 1, info.Frames)

	img := gocv.NewMat()
	defer img.Close()

	require.NoError(t, s.Read(&img))
	assert.Equal(t, 64, img.Cols())

	assert.ErrorIs(t, s.Read(&img), io.EOF)
}

func TestOpenErrors(t *testing.T) {

	_, err := Open("")
	assert.Error(t, err)

	_, err = Open(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}
