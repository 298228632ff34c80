package perception

import (
	"errors"
	"fmt"
	"math"

	"github.com/teslashibe/go-wayfinder/pkg/detection"
	"github.com/teslashibe/go-wayfinder/pkg/textnorm"
)

// ErrInvalidCalibration is returned by Calibration.Validate.
var ErrInvalidCalibration = errors.New("perception: invalid calibration")

// Calibration holds the camera and distance parameters.
type Calibration struct {
	// Pinhole model. Disabled unless a known height applies to the label.
	FocalLengthPx float64            `yaml:"focal_length_px"`
	KnownHeightM  float64            `yaml:"known_height_m"` // default for every label, 0 = none
	KnownHeights  map[string]float64 `yaml:"known_heights"`  // per label, meters

	// Point-of-view model: distance = POVConstant / (frameHeight - boxBottom).
	// 0 disables it.
	POVConstant float64 `yaml:"pov_constant"`

	// Metric buckets: Near below NearMeters, Mid below MidMeters, else Far.
	NearMeters float64 `yaml:"near_meters"`
	MidMeters  float64 `yaml:"mid_meters"`

	// Box height ratio buckets used when no metric estimate exists.
	NearRatio float64 `yaml:"near_ratio"`
	MidRatio  float64 `yaml:"mid_ratio"`

	// Alpha is the EMA weight of the newest sample, in (0,1).
	Alpha float64 `yaml:"alpha"`
}

// DefaultCalibration returns a calibration for a 640px model space with no
// known object heights, so distances come from the box height ratio.
func DefaultCalibration() Calibration {
	return Calibration{
		FocalLengthPx: 500,
		NearMeters:    1.5,
		MidMeters:     3.5,
		NearRatio:     0.45,
		MidRatio:      0.25,
		Alpha:         0.4,
	}
}

// Validate checks that thresholds are monotonic and alpha is in range.
func (c Calibration) Validate() error {
	var problems []string
	if c.NearMeters <= 0 || c.NearMeters >= c.MidMeters {
		problems = append(problems, "near_meters must be positive and below mid_meters")
	}
	if c.MidRatio <= 0 || c.MidRatio >= c.NearRatio || c.NearRatio > 1 {
		problems = append(problems, "ratios must satisfy 0 < mid_ratio < near_ratio <= 1")
	}
	if c.Alpha <= 0 || c.Alpha >= 1 {
		problems = append(problems, "alpha must be in (0,1)")
	}
	if c.FocalLengthPx < 0 || c.KnownHeightM < 0 || c.POVConstant < 0 {
		problems = append(problems, "focal length, known height and pov constant must not be negative")
	}
	for label, h := range c.KnownHeights {
		if h < 0 {
			problems = append(problems, fmt.Sprintf("known height for %q is negative", label))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidCalibration, problems)
	}
	return nil
}

// knownHeight returns the real-world height for label, 0 if unknown.
func (c Calibration) knownHeight(label string) float64 {
	if len(c.KnownHeights) > 0 {
		if h, ok := c.KnownHeights[label]; ok {
			return h
		}
		key := textnorm.Normalize(label)
		for l, h := range c.KnownHeights {
			if textnorm.Normalize(l) == key {
				return h
			}
		}
	}
	return c.KnownHeightM
}

// Pinhole estimates distance from a known object height, corrected for the
// off-axis angle of the box center.
func (c Calibration) Pinhole(label string, box detection.Box, frameWidth float64) (float64, bool) {
	known := c.knownHeight(label)
	h := box.Height()
	if known <= 0 || c.FocalLengthPx <= 0 || h <= 0 {
		return 0, false
	}
	d := known * c.FocalLengthPx / h
	d *= math.Cos(math.Atan((box.CenterX() - frameWidth/2) / c.FocalLengthPx))
	return d, valid(d)
}

// POV estimates distance from how far the box base sits above the frame bottom.
func (c Calibration) POV(box detection.Box, frameHeight float64) (float64, bool) {
	if c.POVConstant <= 0 {
		return 0, false
	}
	gap := frameHeight - box.Bottom
	if gap <= 0 {
		return 0, false
	}
	d := c.POVConstant / gap
	return d, valid(d)
}

// EstimateMeters returns the pinhole estimate if available, else the POV estimate.
// The two are never averaged.
func (c Calibration) EstimateMeters(label string, box detection.Box, frameWidth, frameHeight float64) (float64, bool) {
	if d, ok := c.Pinhole(label, box, frameWidth); ok {
		return d, true
	}
	return c.POV(box, frameHeight)
}

// MetersBucket maps a metric distance to a bucket.
func (c Calibration) MetersBucket(m float64) Distance {
	switch {
	case m < c.NearMeters:
		return Near
	case m < c.MidMeters:
		return Mid
	default:
		return Far
	}
}

// RatioBucket maps box height over frame height to a bucket.
func (c Calibration) RatioBucket(ratio float64) Distance {
	switch {
	case ratio >= c.NearRatio:
		return Near
	case ratio >= c.MidRatio:
		return Mid
	default:
		return Far
	}
}

func valid(d float64) bool {
	return d > 0 && !math.IsInf(d, 0) && !math.IsNaN(d)
}
