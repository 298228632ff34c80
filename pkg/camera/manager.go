package camera

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
)

var (
	// ErrUnknownPreset is returned by Update for a preset name not in Presets.
	ErrUnknownPreset = errors.New("camera: unknown preset")
	// ErrUnknownField is returned by Update for a key that is not a setting.
	ErrUnknownField = errors.New("camera: unknown field")
	// ErrFieldType is returned by Update when a value has the wrong type.
	ErrFieldType = errors.New("camera: wrong field type")
)

// ApplyFunc pushes a validated configuration to the capture device.
// Capture.Apply has this signature.
type ApplyFunc func(Config) error

// Manager owns the live camera settings exposed over the API.
type Manager struct {
	mu     sync.RWMutex
	config Config
	apply  ApplyFunc
}

// NewManager creates a manager holding cfg. apply may be nil when there is
// no device to reconfigure.
func NewManager(cfg Config, apply ApplyFunc) *Manager {
	return &Manager{config: cfg, apply: apply}
}

// Config returns the current settings.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Set validates cfg, applies it to the device and stores it. A device that
// rejects the settings leaves the stored configuration unchanged.
func (m *Manager) Set(cfg Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.apply != nil {
		if err := m.apply(cfg); err != nil {
			return fmt.Errorf("camera: apply config: %w", err)
		}
	}
	m.config = cfg
	return nil
}

type setter func(c *Config, v any) bool

var setters = map[string]setter{
	"device": func(c *Config, v any) bool {
		s, ok := v.(string)
		c.Device = s
		return ok
	},
	"width":     intSetter(func(c *Config) *int { return &c.Width }),
	"height":    intSetter(func(c *Config) *int { return &c.Height }),
	"framerate": intSetter(func(c *Config) *int { return &c.Framerate }),
	"quality":   intSetter(func(c *Config) *int { return &c.Quality }),
	"brightness": func(c *Config, v any) bool {
		f, ok := toFloat(v)
		c.Brightness = f
		return ok
	},
	"mirror": func(c *Config, v any) bool {
		b, ok := v.(bool)
		c.Mirror = b
		return ok
	},
}

func intSetter(field func(*Config) *int) setter {
	return func(c *Config, v any) bool {
		n, ok := toInt(v)
		*field(c) = n
		return ok
	}
}

// Update changes the named settings, as decoded from a JSON object. A
// "preset" key replaces every setting but the device before the other keys
// apply.
func (m *Manager) Update(params map[string]any) error {
	cfg := m.Config()

	if v, ok := params["preset"]; ok {
		name, _ := v.(string)
		preset := GetPreset(name)
		if preset == nil {
			return fmt.Errorf("%w: %v", ErrUnknownPreset, v)
		}
		device := cfg.Device
		cfg = *preset
		cfg.Device = device
	}

	for key, v := range params {
		if key == "preset" {
			continue
		}
		set, ok := setters[key]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownField, key)
		}
		if !set(&cfg, v) {
			return fmt.Errorf("%w: %s=%v", ErrFieldType, key, v)
		}
	}
	return m.Set(cfg)
}

// Map returns the current settings keyed by their JSON names.
func (m *Manager) Map() map[string]any {
	data, _ := json.Marshal(m.Config())
	var out map[string]any
	_ = json.Unmarshal(data, &out)
	return out
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
