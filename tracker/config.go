package tracker

import (
	"fmt"
)

// Config holds the BYTETracker association parameters
type Config struct {
	// FrameRate is the frame rate of the source, used to scale TrackBuffer
	FrameRate int `mapstructure:"frame_rate" yaml:"frame_rate"`
	// TrackBuffer is the number of frames at 30fps a lost track is kept for
	// re-identification before removal
	TrackBuffer int `mapstructure:"track_buffer" yaml:"track_buffer"`
	// TrackThresh splits detections into the high and low score
	// association passes
	TrackThresh float32 `mapstructure:"track_thresh" yaml:"track_thresh"`
	// HighThresh is the minimum score for an unmatched detection to start
	// a new track
	HighThresh float32 `mapstructure:"high_thresh" yaml:"high_thresh"`
	// MatchThresh is the maximum IoU distance for the first association
	MatchThresh float32 `mapstructure:"match_thresh" yaml:"match_thresh"`
}

// DefaultConfig returns the standard ByteTrack parameters
func DefaultConfig() Config {
	return Config{
		FrameRate:   30,
		TrackBuffer: 30,
		TrackThresh: 0.5,
		HighThresh:  0.6,
		MatchThresh: 0.8,
	}
}

// Validate checks the parameters are usable
func (c Config) Validate() error {

	if c.FrameRate <= 0 {
		return fmt.Errorf("tracker frame rate must be positive, got %d", c.FrameRate)
	}

	if c.TrackBuffer < 0 {
		return fmt.Errorf("tracker track buffer must not be negative, got %d", c.TrackBuffer)
	}

	for name, v := range map[string]float32{
		"track_thresh": c.TrackThresh,
		"high_thresh":  c.HighThresh,
		"match_thresh": c.MatchThresh,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("tracker %s must be within [0,1], got %v", name, v)
		}
	}

	return nil
}

// maxTimeLost is the number of frames a lost track survives
func (c Config) maxTimeLost() int {
	return int(float32(c.FrameRate) / 30.0 * float32(c.TrackBuffer))
}
