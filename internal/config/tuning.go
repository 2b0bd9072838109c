package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TuningConfig holds the runtime tuning parameters for the control and camera
// layers. Every field is a pointer so that partial JSON configs are safe:
// omitted fields fall back to the defaults baked into the Get* accessors.
type TuningConfig struct {
	// Arbitration params
	DeadzoneRadius *float64 `json:"deadzone_radius,omitempty"`
	AnalogWindow   *string  `json:"analog_window,omitempty"` // duration string like "50ms"

	// Camera params
	FrameInterval  *string `json:"frame_interval,omitempty"`  // duration string like "33ms"
	AcquireTimeout *string `json:"acquire_timeout,omitempty"` // duration string like "2s"
	CameraWidth    *int    `json:"camera_width,omitempty"`
	CameraHeight   *int    `json:"camera_height,omitempty"`
	JPEGQuality    *int    `json:"jpeg_quality,omitempty"`

	// Crane params
	CraneStepDegrees *int    `json:"crane_step_degrees,omitempty"`
	CraneStepDelay   *string `json:"crane_step_delay,omitempty"` // duration string like "20ms"
}

// EmptyTuningConfig returns a TuningConfig with all fields unset so every
// accessor reports its default.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The path must have
// a .json extension and the file is capped at 1MB. Omitted fields retain
// their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configured values are usable.
func (c *TuningConfig) Validate() error {
	if c.DeadzoneRadius != nil {
		if *c.DeadzoneRadius < 0 || *c.DeadzoneRadius >= 1 {
			return fmt.Errorf("deadzone_radius must be in [0,1), got %f", *c.DeadzoneRadius)
		}
	}

	for name, v := range map[string]*string{
		"analog_window":    c.AnalogWindow,
		"frame_interval":   c.FrameInterval,
		"acquire_timeout":  c.AcquireTimeout,
		"crane_step_delay": c.CraneStepDelay,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}

	if c.CameraWidth != nil && *c.CameraWidth <= 0 {
		return fmt.Errorf("camera_width must be positive, got %d", *c.CameraWidth)
	}
	if c.CameraHeight != nil && *c.CameraHeight <= 0 {
		return fmt.Errorf("camera_height must be positive, got %d", *c.CameraHeight)
	}
	if c.JPEGQuality != nil {
		if *c.JPEGQuality < 1 || *c.JPEGQuality > 100 {
			return fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", *c.JPEGQuality)
		}
	}
	if c.CraneStepDegrees != nil && *c.CraneStepDegrees <= 0 {
		return fmt.Errorf("crane_step_degrees must be positive, got %d", *c.CraneStepDegrees)
	}

	return nil
}

// GetDeadzoneRadius returns the deadzone_radius value or the default.
func (c *TuningConfig) GetDeadzoneRadius() float64 {
	if c.DeadzoneRadius == nil {
		return 0.1 // default
	}
	return *c.DeadzoneRadius
}

// GetAnalogWindow parses and returns the analog_window as a time.Duration.
func (c *TuningConfig) GetAnalogWindow() time.Duration {
	return c.duration(c.AnalogWindow, 50*time.Millisecond)
}

// GetFrameInterval parses and returns the frame_interval as a time.Duration.
func (c *TuningConfig) GetFrameInterval() time.Duration {
	return c.duration(c.FrameInterval, 33*time.Millisecond)
}

// GetAcquireTimeout parses and returns the acquire_timeout as a time.Duration.
func (c *TuningConfig) GetAcquireTimeout() time.Duration {
	return c.duration(c.AcquireTimeout, 2*time.Second)
}

// GetCameraWidth returns the camera_width value or the default.
func (c *TuningConfig) GetCameraWidth() int {
	if c.CameraWidth == nil {
		return 640
	}
	return *c.CameraWidth
}

// GetCameraHeight returns the camera_height value or the default.
func (c *TuningConfig) GetCameraHeight() int {
	if c.CameraHeight == nil {
		return 480
	}
	return *c.CameraHeight
}

// GetJPEGQuality returns the jpeg_quality value or the default.
func (c *TuningConfig) GetJPEGQuality() int {
	if c.JPEGQuality == nil {
		return 80
	}
	return *c.JPEGQuality
}

// GetCraneStepDegrees returns the crane_step_degrees value or the default.
func (c *TuningConfig) GetCraneStepDegrees() int {
	if c.CraneStepDegrees == nil {
		return 2
	}
	return *c.CraneStepDegrees
}

// GetCraneStepDelay parses and returns the crane_step_delay as a time.Duration.
func (c *TuningConfig) GetCraneStepDelay() time.Duration {
	return c.duration(c.CraneStepDelay, 20*time.Millisecond)
}

func (c *TuningConfig) duration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}
