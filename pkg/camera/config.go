// Package camera captures frames from a local video device with OpenCV and
// holds the runtime-tunable capture settings.
package camera

// Config holds the capture parameters.
// These can be modified via the camera API at runtime.
type Config struct {
	// Device is a device index ("0") or a stream URL / file path.
	Device string `json:"device" yaml:"device"`

	// === Resolution ===
	Width     int `json:"width" yaml:"width"`         // Frame width in pixels
	Height    int `json:"height" yaml:"height"`       // Frame height in pixels
	Framerate int `json:"framerate" yaml:"framerate"` // Frames handed to the detector per second
	Quality   int `json:"quality" yaml:"quality"`     // JPEG quality 1-100

	// Brightness adjustment (-1.0 to +1.0), 0 leaves the driver default.
	Brightness float64 `json:"brightness" yaml:"brightness"`

	// Mirror flips frames horizontally, for front cameras.
	Mirror bool `json:"mirror" yaml:"mirror"`
}

// Capture limits.
const (
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 60
)

// DefaultConfig returns a configuration sized for the detector input.
// Detection runs on 640x640 letterboxed frames, so larger captures only
// cost CPU.
func DefaultConfig() Config {
	return Config{
		Device:    "0",
		Width:     640,
		Height:    480,
		Framerate: 10,
		Quality:   85,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device == "" {
		errors = append(errors, "device is required")
	}
	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 3840")
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 1 and 60")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}
	if c.Brightness < -1.0 || c.Brightness > 1.0 {
		errors = append(errors, "brightness must be between -1.0 and 1.0")
	}

	return errors
}

// Capabilities returns the capture limits reported by the camera API.
func Capabilities() map[string]interface{} {
	return map[string]interface{}{
		"max_width":     MaxWidth,
		"max_height":    MaxHeight,
		"max_framerate": MaxFramerate,
		"presets":       PresetNames(),
	}
}
