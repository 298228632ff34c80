// Package signage reads wayfinding signs with OCR, checks that they point to
// the terminal the rider needs and turns their position into a turn instruction.
//
// A Validator is driven from the session loop: Begin and Finish run there,
// while the slow Pass.Run runs on its own goroutine.
package signage

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/teslashibe/go-wayfinder/pkg/detection"
	"github.com/teslashibe/go-wayfinder/pkg/perception"
	"github.com/teslashibe/go-wayfinder/pkg/route"
	"github.com/teslashibe/go-wayfinder/pkg/textnorm"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("signage: invalid config")

// Reader reads the text in an image. It returns "" on failure.
type Reader interface {
	ReadText(ctx context.Context, img image.Image) string
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context, img image.Image) string

// ReadText calls f.
func (f ReaderFunc) ReadText(ctx context.Context, img image.Image) string {
	return f(ctx, img)
}

// DefaultLabels are the detector classes that are wayfinding signs.
var DefaultLabels = []string{
	"senales_amarillas",
	"senales_azules",
	"senales_cafes",
	"senales_rojas",
	"senales_rosas",
	"senales_verdes",
}

// Config holds signage validation parameters.
type Config struct {
	Labels        []string      `yaml:"labels"`
	Interval      time.Duration `yaml:"interval"`  // minimum time between OCR passes
	MaxSigns      int           `yaml:"max_signs"` // largest signs read per pass
	TurnThreshold float64       `yaml:"turn_threshold"`
	Hysteresis    float64       `yaml:"hysteresis"`
	ModelSize     float64       `yaml:"model_size"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Labels:        append([]string(nil), DefaultLabels...),
		Interval:      5 * time.Second,
		MaxSigns:      3,
		TurnThreshold: 0.15,
		Hysteresis:    0.05,
		ModelSize:     detection.ModelSize,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.Interval <= 0:
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	case c.MaxSigns <= 0:
		return fmt.Errorf("%w: max_signs must be positive", ErrInvalidConfig)
	case c.TurnThreshold < 0 || c.Hysteresis < 0 || c.TurnThreshold+c.Hysteresis >= 1:
		return fmt.Errorf("%w: turn threshold plus hysteresis must be in [0,1)", ErrInvalidConfig)
	case c.ModelSize <= 0:
		return fmt.Errorf("%w: model_size must be positive", ErrInvalidConfig)
	}
	return nil
}

// Validator gates and interprets OCR passes over signage detections.
type Validator struct {
	cfg     Config
	line    *route.Line
	labels  map[string]bool
	limiter *rate.Limiter
	now     func() time.Time
	logger  *slog.Logger

	busy     atomic.Bool
	lastType TurnType
	hasLast  bool
}

// Option configures a Validator.
type Option func(*Validator)

// WithConfig sets the configuration.
func WithConfig(cfg Config) Option {
	return func(v *Validator) {
		v.cfg = cfg
	}
}

// WithClock sets the time source used by the throttle.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = l
	}
}

// NewValidator creates a validator for the given line.
func NewValidator(line *route.Line, opts ...Option) (*Validator, error) {
	if line == nil {
		return nil, errors.New("signage: line is required")
	}
	v := &Validator{
		cfg:    DefaultConfig(),
		line:   line,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if err := v.cfg.Validate(); err != nil {
		return nil, err
	}

	v.labels = make(map[string]bool, len(v.cfg.Labels))
	for _, l := range v.cfg.Labels {
		v.labels[strings.ToLower(strings.TrimSpace(l))] = true
	}
	v.limiter = rate.NewLimiter(rate.Every(v.cfg.Interval), 1)
	v.logger = v.logger.With("component", "signage")
	return v, nil
}

// IsSign reports whether label is a signage class.
func (v *Validator) IsSign(label string) bool {
	return v.labels[strings.ToLower(strings.TrimSpace(label))]
}

// Busy reports whether a pass is in flight.
func (v *Validator) Busy() bool {
	return v.busy.Load()
}

// Pass is one OCR pass over the largest signs of a frame.
type Pass struct {
	Signs    []perception.Result
	Expected route.Station
	frame    image.Image
	cfg      Config
	logger   *slog.Logger
}

// Begin starts a pass if one is due: origin and destination are set and
// differ, a frame is available, no pass is in flight, the frame shows at least
// one sign and the throttle allows it. The caller must hand the resulting
// Report to Finish.
func (v *Validator) Begin(results []perception.Result, origin, destination string, frame image.Image) (*Pass, bool) {
	if origin == "" || destination == "" || frame == nil || v.busy.Load() {
		return nil, false
	}

	var signs []perception.Result
	for _, r := range results {
		if v.IsSign(r.Label) {
			signs = append(signs, r)
		}
	}
	if len(signs) == 0 {
		return nil, false
	}

	decision, err := v.line.Resolve(origin, destination)
	if err != nil {
		v.logger.Debug("route not resolvable", "origin", origin, "destination", destination, "error", err)
		return nil, false
	}
	if decision.Heading == route.HeadingArrived {
		return nil, false
	}

	if !v.limiter.AllowN(v.now(), 1) {
		return nil, false
	}
	if !v.busy.CompareAndSwap(false, true) {
		return nil, false
	}

	return &Pass{
		Signs:    largest(signs, v.cfg.MaxSigns),
		Expected: decision.Terminal,
		frame:    frame,
		cfg:      v.cfg,
		logger:   v.logger,
	}, true
}

func largest(results []perception.Result, n int) []perception.Result {
	out := make([]perception.Result, len(results))
	copy(out, results)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Box.Area() > out[j-1].Box.Area(); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Report is the outcome of a pass.
type Report struct {
	Expected       route.Station
	SignsRead      int // signs with any OCR text
	DirectionsSeen int // signs with a "direction to" line
	Matched        bool
	Sign           perception.Result
	Text           string
	Instruction    Instruction
	Phrase         string
}

var directionRe = regexp.MustCompile(`\b(?:direction to|direccion a) (.+)`)

// DirectionTarget extracts the name after "direction to" / "dirección a" in
// sign text, normalized.
func DirectionTarget(text string) (string, bool) {
	m := directionRe.FindStringSubmatch(textnorm.Normalize(text))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// MatchesTerminal reports whether a sign target names the terminal: equal
// after normalization, or the terminal's words lead the target.
func MatchesTerminal(target, terminal string) bool {
	t, want := textnorm.Normalize(target), textnorm.Normalize(terminal)
	if t == "" || want == "" {
		return false
	}
	return t == want || textnorm.HasPrefixTokens(t, want)
}

// Run reads the signs and looks for one pointing to the expected terminal.
// It is safe to call from any goroutine.
func (p *Pass) Run(ctx context.Context, reader Reader) Report {
	rep := Report{Expected: p.Expected}
	for _, sign := range p.Signs {
		if ctx.Err() != nil {
			break
		}
		crop, ok := Crop(p.frame, sign.Box, p.cfg.ModelSize)
		if !ok {
			continue
		}
		raw := reader.ReadText(ctx, crop)
		if strings.TrimSpace(raw) == "" {
			continue
		}
		rep.SignsRead++

		target, ok := DirectionTarget(raw)
		if !ok {
			continue
		}
		rep.DirectionsSeen++
		p.logger.Debug("direction sign read", "target", target, "expected", p.Expected.Name)

		if MatchesTerminal(target, p.Expected.Name) {
			inst := InferTurn(sign.Box, p.cfg.ModelSize, p.cfg.TurnThreshold, p.cfg.Hysteresis)
			inst = OverrideFromText(raw, inst)
			rep.Matched = true
			rep.Sign = sign
			rep.Text = raw
			rep.Instruction = inst
			rep.Phrase = FormatInstruction(inst, sign.Distance)
			break
		}
	}
	return rep
}

// WrongDirectionPhrase is the warning spoken when signs point the other way.
func WrongDirectionPhrase(terminal string) string {
	return "Wrong platform direction. Head toward " + route.TitleCase(terminal) + "."
}

// Outcome is what Finish decided to announce.
type Outcome struct {
	Phrase      string
	Navigation  bool // Phrase is a turn instruction
	Instruction Instruction
}

// Finish clears the busy flag and decides what to announce. A turn
// instruction is announced only when its type differs from the last one.
func (v *Validator) Finish(rep Report) (Outcome, bool) {
	defer v.busy.Store(false)

	if rep.Matched {
		if v.hasLast && v.lastType == rep.Instruction.Type {
			return Outcome{}, false
		}
		v.lastType = rep.Instruction.Type
		v.hasLast = true
		return Outcome{Phrase: rep.Phrase, Navigation: true, Instruction: rep.Instruction}, true
	}

	if rep.DirectionsSeen > 0 && rep.Expected.Name != "" {
		return Outcome{Phrase: WrongDirectionPhrase(rep.Expected.Name)}, true
	}
	return Outcome{}, false
}

// ResetInstruction forgets the last announced instruction, so the next match
// is announced even if unchanged. Used when the route changes.
func (v *Validator) ResetInstruction() {
	v.hasLast = false
}
