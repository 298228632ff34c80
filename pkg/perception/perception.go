// Package perception turns per-frame object detections into positional and
// distance buckets, smooths metric distance estimates over time and picks the
// single object worth announcing.
package perception

import (
	"math"
	"strconv"
	"strings"

	"github.com/teslashibe/go-wayfinder/pkg/detection"
	"github.com/teslashibe/go-wayfinder/pkg/textnorm"
)

// Position is the horizontal zone of a detection, left to right.
type Position int

const (
	FarLeft Position = iota
	LeftCenter
	Center
	RightCenter
	FarRight
)

// zones is the number of equal-width horizontal zones.
const zones = 5

// String returns the position name used in cooldown keys and snapshots.
func (p Position) String() string {
	switch p {
	case FarLeft:
		return "far_left"
	case LeftCenter:
		return "left_center"
	case Center:
		return "center"
	case RightCenter:
		return "right_center"
	case FarRight:
		return "far_right"
	default:
		return "unknown"
	}
}

// Phrase returns the spoken side of the position.
func (p Position) Phrase() string {
	switch p {
	case FarLeft, LeftCenter:
		return "to the left"
	case RightCenter, FarRight:
		return "to the right"
	default:
		return "ahead"
	}
}

// Distance is the coarse distance bucket. Its ordinal is used as a ranking score.
type Distance int

const (
	Near Distance = iota
	Mid
	Far
)

// String returns the distance name used in cooldown keys and snapshots.
func (d Distance) String() string {
	switch d {
	case Near:
		return "near"
	case Mid:
		return "mid"
	case Far:
		return "far"
	default:
		return "unknown"
	}
}

// Phrase returns the spoken form of the bucket.
func (d Distance) Phrase() string {
	switch d {
	case Near:
		return "near"
	case Mid:
		return "mid distance"
	default:
		return "far"
	}
}

// Result is one detection after fusion.
type Result struct {
	Label      string // resolved against the label table
	Confidence float64
	Position   Position
	Distance   Distance
	Meters     float64 // smoothed estimate, 0 if unknown
	Box        detection.Box
}

// HasMeters reports whether a metric distance estimate is available.
func (r Result) HasMeters() bool {
	return r.Meters > 0
}

// PositionBucket maps a horizontal center to one of five equal zones.
// A center on a zone boundary belongs to the zone on its right.
func PositionBucket(cx, width float64) Position {
	if width <= 0 {
		return Center
	}
	for k := 1; k < zones; k++ {
		if cx < width*float64(k)/zones {
			return Position(k - 1)
		}
	}
	return FarRight
}

// Engine fuses detections frame by frame. It keeps smoothing state across
// calls and must be driven from a single goroutine.
type Engine struct {
	cal      Calibration
	labels   *detection.LabelTable
	smoother *Smoother
	target   string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLabels sets the table used to resolve class index labels.
func WithLabels(t *detection.LabelTable) Option {
	return func(e *Engine) {
		e.labels = t
	}
}

// WithTarget restricts best-target selection to one label.
func WithTarget(label string) Option {
	return func(e *Engine) {
		e.SetTarget(label)
	}
}

// NewEngine creates an engine. The calibration is validated.
func NewEngine(cal Calibration, opts ...Option) (*Engine, error) {
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cal:      cal,
		smoother: NewSmoother(cal.Alpha),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// SetTarget sets the label filter for SelectBest. Empty clears it.
func (e *Engine) SetTarget(label string) {
	e.target = textnorm.Normalize(label)
}

// Target returns the normalized target label, empty when none.
func (e *Engine) Target() string {
	return e.target
}

// Smoother exposes the engine's smoothing state.
func (e *Engine) Smoother() *Smoother {
	return e.smoother
}

// Analyze converts one frame's detections into results. width and height are
// the frame dimensions in the same coordinate space as the boxes.
func (e *Engine) Analyze(dets []detection.Detection, width, height float64) []Result {
	if width <= 0 || height <= 0 || len(dets) == 0 {
		return nil
	}

	results := make([]Result, 0, len(dets))
	for _, d := range dets {
		label := e.labels.Resolve(d.Label)
		r := Result{
			Label:      label,
			Confidence: d.Confidence,
			Position:   PositionBucket(d.Box.CenterX(), width),
			Box:        d.Box,
		}

		if m, ok := e.cal.EstimateMeters(label, d.Box, width, height); ok {
			r.Meters = e.smoother.Update(SmoothingKey{Label: label, Position: r.Position}, m)
			r.Distance = e.cal.MetersBucket(r.Meters)
		} else {
			r.Distance = e.cal.RatioBucket(d.Box.Height() / height)
		}
		results = append(results, r)
	}
	return results
}

// scoreEpsilon weighs confidence against distance so equal distances favor
// the more confident detection.
const scoreEpsilon = 1e-3

// SelectBest returns the closest result, restricted to the target label when
// one is set. With a target and no matching result there is no best result.
func (e *Engine) SelectBest(results []Result) (Result, bool) {
	var (
		best  Result
		score = math.Inf(1)
		found bool
	)
	for _, r := range results {
		if e.target != "" && textnorm.Normalize(r.Label) != e.target {
			continue
		}
		s := distanceScore(r) - r.Confidence*scoreEpsilon
		if s < score {
			best, score, found = r, s, true
		}
	}
	return best, found
}

func distanceScore(r Result) float64 {
	if r.HasMeters() {
		return r.Meters
	}
	return float64(r.Distance)
}

// MetersPhrase returns the spoken distance band for a metric estimate.
func MetersPhrase(m float64) string {
	switch {
	case m < 1:
		return "very close"
	case m < 2:
		return "close"
	case m < 4:
		return "medium distance"
	default:
		return "far (" + strconv.Itoa(int(math.Round(m))) + " meters)"
	}
}

// FormatPhrase builds "<label> <side>, <distance>." using the display label.
func FormatPhrase(r Result) string {
	return formatPhrase(detection.DisplayLabel(r.Label), r)
}

func formatPhrase(name string, r Result) string {
	if strings.TrimSpace(name) == "" {
		name = "object"
	}
	dist := r.Distance.Phrase()
	if r.HasMeters() {
		dist = MetersPhrase(r.Meters)
	}
	return name + " " + r.Position.Phrase() + ", " + dist + "."
}
