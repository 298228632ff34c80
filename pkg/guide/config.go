package guide

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-wayfinder/pkg/perception"
	"github.com/teslashibe/go-wayfinder/pkg/signage"
	"github.com/teslashibe/go-wayfinder/pkg/speech"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("guide: invalid config")

// Config groups the tunables of a guidance session.
type Config struct {
	// MinConfidence is the floor for announcing the best object.
	MinConfidence float64 `yaml:"min_confidence"`
	// FrameQueue bounds frames waiting for the loop; extra frames are dropped.
	FrameQueue int `yaml:"frame_queue"`
	// EventQueue bounds recognition, speech and mode events.
	EventQueue int `yaml:"event_queue"`

	Calibration perception.Calibration `yaml:"calibration"`
	Signage     signage.Config         `yaml:"signage"`
	Speech      speech.Config          `yaml:"speech"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MinConfidence: 0.80,
		FrameQueue:    2,
		EventQueue:    64,
		Calibration:   perception.DefaultCalibration(),
		Signage:       signage.DefaultConfig(),
		Speech:        speech.DefaultConfig(),
	}
}

// Validate checks the session settings and every nested section.
func (c Config) Validate() error {
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("%w: min_confidence %.2f outside [0,1]", ErrInvalidConfig, c.MinConfidence)
	}
	if c.FrameQueue < 1 {
		return fmt.Errorf("%w: frame_queue must be at least 1", ErrInvalidConfig)
	}
	if c.EventQueue < 1 {
		return fmt.Errorf("%w: event_queue must be at least 1", ErrInvalidConfig)
	}
	if err := c.Calibration.Validate(); err != nil {
		return err
	}
	if err := c.Signage.Validate(); err != nil {
		return err
	}
	return c.Speech.Validate()
}
