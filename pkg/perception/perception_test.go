package perception

import (
	"errors"
	"math"
	"testing"

	"github.com/teslashibe/go-wayfinder/pkg/detection"
)

func newEngine(t *testing.T, cal Calibration, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(cal, opts...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestAnalyze_DoorOnTheLeft(t *testing.T) {
	e := newEngine(t, DefaultCalibration())

	results := e.Analyze([]detection.Detection{{
		Label:      "door",
		Confidence: 0.9,
		Box:        detection.Box{Left: 20, Top: 100, Right: 80, Bottom: 400},
	}}, 640, 640)

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Position != FarLeft {
		t.Errorf("position = %v, want far_left", r.Position)
	}
	if r.Distance != Near {
		t.Errorf("distance = %v, want near", r.Distance)
	}
	if r.HasMeters() {
		t.Errorf("expected no meters, got %.2f", r.Meters)
	}
	if got := FormatPhrase(r); got != "door to the left, near." {
		t.Errorf("phrase = %q", got)
	}
}

func TestAnalyze_InvalidFrame(t *testing.T) {
	e := newEngine(t, DefaultCalibration())
	dets := []detection.Detection{{Label: "door", Box: detection.Box{Right: 10, Bottom: 10}}}

	if got := e.Analyze(dets, 0, 640); got != nil {
		t.Errorf("expected nil for zero width, got %v", got)
	}
	if got := e.Analyze(nil, 640, 640); got != nil {
		t.Errorf("expected nil for no detections, got %v", got)
	}
}

func TestAnalyze_ResolvesLabels(t *testing.T) {
	e := newEngine(t, DefaultCalibration(), WithLabels(detection.NewLabelTable("door", "escalera_meca")))

	results := e.Analyze([]detection.Detection{
		{Label: "obj1", Box: detection.Box{Left: 300, Top: 0, Right: 340, Bottom: 100}},
		{Label: "obj7", Box: detection.Box{Left: 300, Top: 0, Right: 340, Bottom: 100}},
	}, 640, 640)

	if results[0].Label != "escalera_meca" {
		t.Errorf("label = %q, want escalera_meca", results[0].Label)
	}
	if results[1].Label != "obj7" {
		t.Errorf("unresolved label = %q, want obj7", results[1].Label)
	}
}

func TestPinhole(t *testing.T) {
	cal := DefaultCalibration()
	cal.KnownHeights = map[string]float64{"door": 2.0}

	tests := []struct {
		name string
		box  detection.Box
		want float64
	}{
		{"on axis", detection.Box{Left: 300, Top: 100, Right: 340, Bottom: 350}, 4.0},
		{"off axis", detection.Box{Left: 0, Top: 100, Right: 140, Bottom: 350}, 4.0 / math.Sqrt(1.25)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := cal.Pinhole("door", tc.box, 640)
			if !ok {
				t.Fatal("expected pinhole estimate")
			}
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("distance = %.6f, want %.6f", got, tc.want)
			}
		})
	}

	if _, ok := cal.Pinhole("stairs", tests[0].box, 640); ok {
		t.Error("labels without a known height must not produce an estimate")
	}
	if _, ok := cal.Pinhole("door", detection.Box{Top: 10, Bottom: 10}, 640); ok {
		t.Error("zero height box must not produce an estimate")
	}
}

func TestEstimateMeters_PrefersPinhole(t *testing.T) {
	cal := DefaultCalibration()
	cal.KnownHeights = map[string]float64{"Door": 2.0}
	cal.POVConstant = 200

	box := detection.Box{Left: 300, Top: 190, Right: 340, Bottom: 440}
	got, ok := cal.EstimateMeters("door", box, 640, 640)
	if !ok || math.Abs(got-4.0) > 1e-9 {
		t.Errorf("pinhole estimate = %.3f, %v; want 4.0", got, ok)
	}

	got, ok = cal.EstimateMeters("stairs", box, 640, 640)
	if !ok || math.Abs(got-1.0) > 1e-9 {
		t.Errorf("pov estimate = %.3f, %v; want 1.0", got, ok)
	}

	if _, ok := cal.EstimateMeters("stairs", detection.Box{Bottom: 640}, 640, 640); ok {
		t.Error("box touching the frame bottom must not produce a pov estimate")
	}
}

func TestAnalyze_SmoothsMeters(t *testing.T) {
	cal := DefaultCalibration()
	cal.KnownHeights = map[string]float64{"door": 2.0}
	e := newEngine(t, cal)

	frame := func(height float64) Result {
		box := detection.Box{Left: 300, Top: 0, Right: 340, Bottom: height}
		return e.Analyze([]detection.Detection{{Label: "door", Confidence: 0.9, Box: box}}, 640, 640)[0]
	}

	first := frame(250) // 4.0 m
	if math.Abs(first.Meters-4.0) > 1e-9 || first.Distance != Far {
		t.Errorf("first = %.3f %v, want 4.0 far", first.Meters, first.Distance)
	}

	second := frame(500) // 2.0 m -> 0.4*2 + 0.6*4
	if math.Abs(second.Meters-3.2) > 1e-9 || second.Distance != Mid {
		t.Errorf("second = %.3f %v, want 3.2 mid", second.Meters, second.Distance)
	}

	if e.Smoother().Len() != 1 {
		t.Errorf("expected a single track, got %d", e.Smoother().Len())
	}
}

func TestSelectBest(t *testing.T) {
	results := []Result{
		{Label: "door", Confidence: 0.70, Distance: Far},
		{Label: "escalera_meca", Confidence: 0.60, Distance: Mid},
		{Label: "person", Confidence: 0.95, Distance: Mid},
	}

	t.Run("closest wins, confidence breaks ties", func(t *testing.T) {
		e := newEngine(t, DefaultCalibration())
		best, ok := e.SelectBest(results)
		if !ok || best.Label != "person" {
			t.Errorf("best = %+v, %v; want person", best, ok)
		}
	})

	t.Run("target restricts candidates", func(t *testing.T) {
		e := newEngine(t, DefaultCalibration(), WithTarget("Door"))
		best, ok := e.SelectBest(results)
		if !ok || best.Label != "door" {
			t.Errorf("best = %+v, %v; want door", best, ok)
		}
	})

	t.Run("target with no match yields nothing", func(t *testing.T) {
		e := newEngine(t, DefaultCalibration(), WithTarget("bench"))
		if best, ok := e.SelectBest(results); ok {
			t.Errorf("expected no target, got %+v", best)
		}
	})

	t.Run("target matches display form", func(t *testing.T) {
		e := newEngine(t, DefaultCalibration(), WithTarget("escalera meca"))
		best, ok := e.SelectBest(results)
		if !ok || best.Label != "escalera_meca" {
			t.Errorf("best = %+v, %v", best, ok)
		}
	})

	t.Run("meters rank before ordinals", func(t *testing.T) {
		e := newEngine(t, DefaultCalibration())
		best, ok := e.SelectBest([]Result{
			{Label: "far door", Confidence: 0.9, Distance: Far, Meters: 5},
			{Label: "near bench", Confidence: 0.5, Distance: Near, Meters: 0.8},
		})
		if !ok || best.Label != "near bench" {
			t.Errorf("best = %+v", best)
		}
	})

	t.Run("empty", func(t *testing.T) {
		e := newEngine(t, DefaultCalibration())
		if _, ok := e.SelectBest(nil); ok {
			t.Error("expected no target for empty input")
		}
	})
}

func TestMetersPhrase(t *testing.T) {
	tests := []struct {
		meters float64
		want   string
	}{
		{0.5, "very close"},
		{1.0, "close"},
		{1.99, "close"},
		{2.0, "medium distance"},
		{3.9, "medium distance"},
		{4.0, "far (4 meters)"},
		{6.6, "far (7 meters)"},
	}
	for _, tc := range tests {
		if got := MetersPhrase(tc.meters); got != tc.want {
			t.Errorf("MetersPhrase(%.2f) = %q, want %q", tc.meters, got, tc.want)
		}
	}
}

func TestFormatPhrase(t *testing.T) {
	tests := []struct {
		name string
		r    Result
		want string
	}{
		{"center mid", Result{Label: "door", Position: Center, Distance: Mid}, "door ahead, mid distance."},
		{"right far", Result{Label: "escalera_meca", Position: FarRight, Distance: Far}, "escalera meca to the right, far."},
		{"meters", Result{Label: "door", Position: LeftCenter, Distance: Near, Meters: 0.7}, "door to the left, very close."},
		{"blank label", Result{Position: RightCenter, Distance: Near}, "object to the right, near."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := FormatPhrase(tc.r); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestVocabulary(t *testing.T) {
	v := DefaultVocabulary()

	if got := v.Phrase(Result{Label: "escalera_meca", Position: Center, Distance: Near}); got != "stairs ahead, near." {
		t.Errorf("stairs phrase = %q", got)
	}
	if got := v.Phrase(Result{Label: "podo_linea", Position: Center, Distance: Near}); got != "" {
		t.Errorf("near tactile paving must be quiet, got %q", got)
	}
	if got := v.Phrase(Result{Label: "podo_linea", Position: FarLeft, Distance: Far}); got != "tactile paving to the left, far." {
		t.Errorf("far tactile paving phrase = %q", got)
	}
	if got := v.Name("senales_rosas"); got != "pink sign" {
		t.Errorf("Name = %q", got)
	}
	if got := v.Name("ticket_gate"); got != "ticket gate" {
		t.Errorf("unknown label Name = %q", got)
	}
}

func TestCalibration_Validate(t *testing.T) {
	if err := DefaultCalibration().Validate(); err != nil {
		t.Fatalf("default calibration invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Calibration)
	}{
		{"meters not increasing", func(c *Calibration) { c.MidMeters = c.NearMeters }},
		{"ratios inverted", func(c *Calibration) { c.MidRatio, c.NearRatio = 0.5, 0.3 }},
		{"alpha zero", func(c *Calibration) { c.Alpha = 0 }},
		{"alpha one", func(c *Calibration) { c.Alpha = 1 }},
		{"negative height", func(c *Calibration) { c.KnownHeights = map[string]float64{"door": -1} }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cal := DefaultCalibration()
			tc.mutate(&cal)
			if err := cal.Validate(); !errors.Is(err, ErrInvalidCalibration) {
				t.Errorf("expected ErrInvalidCalibration, got %v", err)
			}
			if _, err := NewEngine(cal); err == nil {
				t.Error("NewEngine must reject invalid calibration")
			}
		})
	}
}

func TestPositionBucket_Boundaries(t *testing.T) {
	tests := []struct {
		cx   float64
		want Position
	}{
		{-5, FarLeft},
		{0, FarLeft},
		{127.9, FarLeft},
		{128, LeftCenter},
		{255.9, LeftCenter},
		{256, Center},
		{384, RightCenter},
		{512, FarRight},
		{640, FarRight},
		{900, FarRight},
	}
	for _, tc := range tests {
		if got := PositionBucket(tc.cx, 640); got != tc.want {
			t.Errorf("PositionBucket(%.1f) = %v, want %v", tc.cx, got, tc.want)
		}
	}
}
