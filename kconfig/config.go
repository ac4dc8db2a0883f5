// Package kconfig loads and validates watchdog settings.
//
// Settings are read once at process start and may be re-read on demand
// through a [Source], which backs the reload path of the heartbeat registry.
package kconfig

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries every tunable of the hang and hitch watchdogs.
// Durations are expressed in seconds, matching the on-disk format.
type Config struct {
	// HangDurationSeconds is the default silence tolerated
	// from any monitored thread before it is reported hung.
	HangDurationSeconds float64 `yaml:"hang_duration_seconds"`

	// PresentDurationSeconds is the silence tolerated from the
	// frame-presentation slot before it is reported hung.
	PresentDurationSeconds float64 `yaml:"present_duration_seconds"`

	// HitchThresholdSeconds is the frame duration beyond which
	// the hitch watchdog captures a stack.
	HitchThresholdSeconds float64 `yaml:"hitch_threshold_seconds"`

	// HangsAreFatal makes a detected hang cancel the supervisor context.
	HangsAreFatal bool `yaml:"hangs_are_fatal"`

	// ResolveHitchSymbols resolves file and line information
	// in hitch stacks; when false, only raw symbols and offsets are kept.
	ResolveHitchSymbols bool `yaml:"resolve_hitch_symbols"`

	// CheckIntervalSeconds is the hang supervisor's wake interval.
	// It must be materially smaller than the smallest timeout.
	CheckIntervalSeconds float64 `yaml:"check_interval_seconds"`

	// CaptureIntervalSeconds is the hitch capture goroutine's wake interval.
	CaptureIntervalSeconds float64 `yaml:"capture_interval_seconds"`

	// MaxStackDepth bounds captured stacks.
	MaxStackDepth int `yaml:"max_stack_depth"`

	// StartupGraceSeconds suppresses hitch detection for this long
	// after the first frame start.
	StartupGraceSeconds float64 `yaml:"startup_grace_seconds"`

	// ClockMaxStepSeconds clamps each logical clock tick,
	// so OS-level process suspension is not misread as silence.
	ClockMaxStepSeconds float64 `yaml:"clock_max_step_seconds"`
}

// Default returns the settings used when no file is provided.
func Default() Config {
	return Config{
		HangDurationSeconds:    25,
		PresentDurationSeconds: 60,
		HitchThresholdSeconds:  0.15,
		HangsAreFatal:          false,
		ResolveHitchSymbols:    true,
		CheckIntervalSeconds:   0.5,
		CaptureIntervalSeconds: 0.02,
		MaxStackDepth:          128,
		StartupGraceSeconds:    2,
		ClockMaxStepSeconds:    1,
	}
}

// Load reads configuration from a yaml file.
// A missing file or empty path falls back to defaults;
// values absent from the file keep their defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every constraint violation in cfg, joined.
func (c Config) Validate() error {
	var err error

	if c.HangDurationSeconds <= 0 {
		err = errors.Join(err, errors.New("hang_duration_seconds must be positive"))
	}
	if c.PresentDurationSeconds <= 0 {
		err = errors.Join(err, errors.New("present_duration_seconds must be positive"))
	}
	if c.HitchThresholdSeconds <= 0 {
		err = errors.Join(err, errors.New("hitch_threshold_seconds must be positive"))
	}
	if c.CheckIntervalSeconds <= 0 {
		err = errors.Join(err, errors.New("check_interval_seconds must be positive"))
	}
	if c.CaptureIntervalSeconds <= 0 {
		err = errors.Join(err, errors.New("capture_interval_seconds must be positive"))
	}

	if c.HangDurationSeconds > 0 && c.CheckIntervalSeconds >= c.HangDurationSeconds/2 {
		err = errors.Join(err, errors.New("check_interval_seconds must be less than half of hang_duration_seconds"))
	}
	if c.PresentDurationSeconds > 0 && c.CheckIntervalSeconds >= c.PresentDurationSeconds/2 {
		err = errors.Join(err, errors.New("check_interval_seconds must be less than half of present_duration_seconds"))
	}
	if c.HitchThresholdSeconds > 0 && c.CaptureIntervalSeconds >= c.HitchThresholdSeconds {
		err = errors.Join(err, errors.New("capture_interval_seconds must be less than hitch_threshold_seconds"))
	}

	if c.MaxStackDepth <= 0 {
		err = errors.Join(err, errors.New("max_stack_depth must be positive"))
	}
	if c.StartupGraceSeconds < 0 {
		err = errors.Join(err, errors.New("startup_grace_seconds must not be negative"))
	}
	if c.ClockMaxStepSeconds <= 0 {
		err = errors.Join(err, errors.New("clock_max_step_seconds must be positive"))
	}

	return err
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// HangDuration returns the default hang timeout as a duration.
func (c Config) HangDuration() time.Duration { return secondsToDuration(c.HangDurationSeconds) }

// PresentDuration returns the present-slot timeout as a duration.
func (c Config) PresentDuration() time.Duration { return secondsToDuration(c.PresentDurationSeconds) }

// HitchThreshold returns the hitch threshold as a duration.
func (c Config) HitchThreshold() time.Duration { return secondsToDuration(c.HitchThresholdSeconds) }

// CheckInterval returns the supervisor wake interval as a duration.
func (c Config) CheckInterval() time.Duration { return secondsToDuration(c.CheckIntervalSeconds) }

// CaptureInterval returns the hitch capture wake interval as a duration.
func (c Config) CaptureInterval() time.Duration { return secondsToDuration(c.CaptureIntervalSeconds) }

// StartupGrace returns the hitch startup grace window as a duration.
func (c Config) StartupGrace() time.Duration { return secondsToDuration(c.StartupGraceSeconds) }

// ClockMaxStep returns the logical clock clamp as a duration.
func (c Config) ClockMaxStep() time.Duration { return secondsToDuration(c.ClockMaxStepSeconds) }

// Source supplies configuration on demand,
// backing the registry's reload-on-heartbeat path.
type Source interface {
	Load() (Config, error)
}

// FileSource re-reads a yaml file on every Load.
type FileSource struct {
	Path string
}

var _ Source = FileSource{}

func (s FileSource) Load() (Config, error) {
	return Load(s.Path)
}

// StaticSource always returns itself; useful for tests
// and embedders with their own configuration systems.
type StaticSource Config

var _ Source = StaticSource{}

func (s StaticSource) Load() (Config, error) {
	cfg := Config(s)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
