package camera

// Preset names for common configurations
const (
	PresetDefault  = "default"
	Preset720p     = "720p"
	PresetLowPower = "low_power"
	PresetLowLight = "low_light"
	PresetSelfie   = "selfie"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault:  DefaultConfig(),
		Preset720p:     HD720Config(),
		PresetLowPower: LowPowerConfig(),
		PresetLowLight: LowLightConfig(),
		PresetSelfie:   SelfieConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		Preset720p,
		PresetLowPower,
		PresetLowLight,
		PresetSelfie,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// HD720Config returns 720p capture. Sign crops for OCR get sharper at the
// cost of detector throughput.
func HD720Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	cfg.Framerate = 5
	return cfg
}

// LowPowerConfig keeps the device cool on long trips.
func LowPowerConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 320
	cfg.Height = 240
	cfg.Framerate = 3
	cfg.Quality = 70
	return cfg
}

// LowLightConfig brightens underground platforms.
func LowLightConfig() Config {
	cfg := DefaultConfig()
	cfg.Framerate = 5
	cfg.Brightness = 0.3
	return cfg
}

// SelfieConfig mirrors a front-facing camera.
func SelfieConfig() Config {
	cfg := DefaultConfig()
	cfg.Mirror = true
	return cfg
}
