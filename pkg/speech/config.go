package speech

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("speech: invalid config")

// Config holds the arbiter timing.
type Config struct {
	PerceptionCooldown time.Duration `yaml:"perception_cooldown"` // per label+position+distance
	NavigationCooldown time.Duration `yaml:"navigation_cooldown"` // per instruction type
	DialogueCooldown   time.Duration `yaml:"dialogue_cooldown"`   // global, between dialogue responses

	RestartDelay      time.Duration `yaml:"restart_delay"`       // listening restart after speech
	ErrorRestartDelay time.Duration `yaml:"error_restart_delay"` // listening restart after a recognition error
	MinRestartSpacing time.Duration `yaml:"min_restart_spacing"` // between two listening starts
	RestartRetry      time.Duration `yaml:"restart_retry"`       // retry delay when starting too soon
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		PerceptionCooldown: 2500 * time.Millisecond,
		NavigationCooldown: 5 * time.Second,
		DialogueCooldown:   0,
		RestartDelay:       200 * time.Millisecond,
		ErrorRestartDelay:  400 * time.Millisecond,
		MinRestartSpacing:  400 * time.Millisecond,
		RestartRetry:       300 * time.Millisecond,
	}
}

// Validate checks that no duration is negative.
func (c Config) Validate() error {
	durations := map[string]time.Duration{
		"perception_cooldown": c.PerceptionCooldown,
		"navigation_cooldown": c.NavigationCooldown,
		"dialogue_cooldown":   c.DialogueCooldown,
		"restart_delay":       c.RestartDelay,
		"error_restart_delay": c.ErrorRestartDelay,
		"min_restart_spacing": c.MinRestartSpacing,
		"restart_retry":       c.RestartRetry,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%w: %s is negative", ErrInvalidConfig, name)
		}
	}
	if c.MinRestartSpacing > 0 && c.RestartRetry <= 0 {
		return fmt.Errorf("%w: restart_retry must be positive when min_restart_spacing is set", ErrInvalidConfig)
	}
	return nil
}
