// Package config loads go-wayfinder settings: defaults, then an optional YAML
// file, then WAYFINDER_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-wayfinder/pkg/camera"
	"github.com/teslashibe/go-wayfinder/pkg/detection"
	"github.com/teslashibe/go-wayfinder/pkg/guide"
	"github.com/teslashibe/go-wayfinder/pkg/tts"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid")

// Config is the complete process configuration.
type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	// Stations overrides the metro line, first to last terminal.
	Stations []string `yaml:"stations"`
	// Catalog is a voice command catalog file; empty uses the built-in one.
	Catalog string `yaml:"catalog"`

	Model  ModelConfig   `yaml:"model"`
	Camera camera.Config `yaml:"camera"`
	Guide  guide.Config  `yaml:"guide"`
	OCR    OCRConfig     `yaml:"ocr"`
	TTS    TTSConfig     `yaml:"tts"`
}

// ModelConfig locates the detector.
type ModelConfig struct {
	Path          string  `yaml:"path"`
	Labels        string  `yaml:"labels"`
	Confidence    float32 `yaml:"confidence"`
	NMS           float32 `yaml:"nms"`
	DisableCamera bool    `yaml:"disable_camera"` // frames arrive over the API only
}

// OCRConfig selects the sign reader.
type OCRConfig struct {
	APIKey  string        `yaml:"-"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// TTSConfig selects speech synthesis and playback.
type TTSConfig struct {
	OpenAIKey   string        `yaml:"-"`
	Voice       string        `yaml:"voice"`
	Model       string        `yaml:"model"`
	Speed       float64       `yaml:"speed"`
	EspeakVoice string        `yaml:"espeak_voice"` // fallback voice, empty disables espeak
	Player      string        `yaml:"player"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Default returns the default configuration.
func Default() *Config {
	yolo := detection.DefaultYOLOConfig()
	return &Config{
		Port:     "8080",
		LogLevel: "info",
		Model: ModelConfig{
			Path:       yolo.ModelPath,
			Labels:     "models/labels.txt",
			Confidence: yolo.ConfidenceThresh,
			NMS:        yolo.NMSThresh,
		},
		Camera: camera.DefaultConfig(),
		Guide:  guide.DefaultConfig(),
		OCR: OCRConfig{
			Model:   "gemini-2.0-flash",
			Timeout: 10 * time.Second,
		},
		TTS: TTSConfig{
			Voice:       "nova",
			Model:       "tts-1",
			Speed:       1.0,
			EspeakVoice: "en",
			Player:      "ffplay",
			Timeout:     15 * time.Second,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.Getenv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	str("WAYFINDER_PORT", &c.Port)
	str("PORT", &c.Port)
	str("WAYFINDER_LOG_LEVEL", &c.LogLevel)
	str("WAYFINDER_CATALOG", &c.Catalog)
	str("WAYFINDER_MODEL", &c.Model.Path)
	str("WAYFINDER_LABELS", &c.Model.Labels)
	str("WAYFINDER_CAMERA", &c.Camera.Device)
	str("WAYFINDER_TTS_VOICE", &c.TTS.Voice)
	str("WAYFINDER_PLAYER", &c.TTS.Player)
	str("GEMINI_API_KEY", &c.OCR.APIKey)
	str("OPENAI_API_KEY", &c.TTS.OpenAIKey)

	if v := getenv("WAYFINDER_MIN_CONFIDENCE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: WAYFINDER_MIN_CONFIDENCE: %v", ErrInvalid, err)
		}
		c.Guide.MinConfidence = f
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("%w: port is required", ErrInvalid)
	}
	if c.Model.Confidence <= 0 || c.Model.Confidence >= 1 {
		return fmt.Errorf("%w: model.confidence must be in (0,1)", ErrInvalid)
	}
	if c.Model.NMS <= 0 || c.Model.NMS >= 1 {
		return fmt.Errorf("%w: model.nms must be in (0,1)", ErrInvalid)
	}
	if !c.Model.DisableCamera {
		if errs := c.Camera.Validate(); len(errs) > 0 {
			return fmt.Errorf("%w: camera: %v", ErrInvalid, errs)
		}
	}
	if c.TTS.Speed < tts.MinSpeed || c.TTS.Speed > tts.MaxSpeed {
		return fmt.Errorf("%w: tts.speed must be between %.2f and %.1f", ErrInvalid, tts.MinSpeed, tts.MaxSpeed)
	}
	if c.OCR.Timeout <= 0 || c.TTS.Timeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalid)
	}
	return c.Guide.Validate()
}

// Addr returns the listen address for Port.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// YOLO returns the detector configuration.
func (c *Config) YOLO() detection.YOLOConfig {
	cfg := detection.DefaultYOLOConfig()
	cfg.ModelPath = c.Model.Path
	cfg.ConfidenceThresh = c.Model.Confidence
	cfg.NMSThresh = c.Model.NMS
	return cfg
}
