// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mandel

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Limits enforced by Config.Validate.
const (
	// MaxIterationBudget caps the iteration budget; IncreaseDetail is a
	// no-op once doubling would exceed it.
	MaxIterationBudget = 1 << 20

	// MaxRasterSize caps each raster dimension.
	MaxRasterSize = 16384

	// MaxPrecisionDigits caps the decimal backend precision.
	MaxPrecisionDigits = 1000
)

// ErrInvalidConfig wraps every configuration validation failure.
var ErrInvalidConfig = errors.New("mandel: invalid config")

// PrecisionMode selects the numeric backend of a session.
type PrecisionMode string

const (
	// PrecisionFixed uses 64-bit IEEE 754 floats.
	PrecisionFixed PrecisionMode = "fixed"

	// PrecisionArbitrary uses decimal arithmetic with Config.PrecisionDigits
	// significant digits.
	PrecisionArbitrary PrecisionMode = "arbitrary"
)

// String implements fmt.Stringer.
func (m PrecisionMode) String() string { return string(m) }

// ParsePrecisionMode parses "fixed" or "arbitrary" (case-insensitive).
func ParsePrecisionMode(s string) (PrecisionMode, error) {
	switch m := PrecisionMode(strings.ToLower(strings.TrimSpace(s))); m {
	case PrecisionFixed, PrecisionArbitrary:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown precision %q (want fixed or arbitrary)", ErrInvalidConfig, s)
}

// ViewportConfig is the initial viewport as decimal strings, so deep-zoom
// coordinates survive a round trip through a config file intact.
type ViewportConfig struct {
	CenterX    string `yaml:"center_x" validate:"required,decimal"`
	CenterY    string `yaml:"center_y" validate:"required,decimal"`
	HalfWidth  string `yaml:"half_width" validate:"required,positive_decimal"`
	HalfHeight string `yaml:"half_height" validate:"required,positive_decimal"`
}

// Config is the session configuration.
type Config struct {
	// Width and Height are the raster size in pixels; fixed for the session.
	Width  int `yaml:"width" validate:"gte=1,lte=16384"`
	Height int `yaml:"height" validate:"gte=1,lte=16384"`

	// Workers is the requested worker count. Zero selects the number of
	// CPUs; larger values are clamped to the hardware.
	Workers int `yaml:"workers" validate:"gte=0"`

	// IterationBudget is the initial maximum iteration count.
	IterationBudget int `yaml:"iteration_budget" validate:"gte=1,lte=1048576"`

	// Precision selects the numeric backend.
	Precision PrecisionMode `yaml:"precision" validate:"oneof=fixed arbitrary"`

	// PrecisionDigits is the number of significant digits of the arbitrary
	// backend. Ignored in fixed mode.
	PrecisionDigits uint32 `yaml:"precision_digits" validate:"gte=17,lte=1000"`

	// Background is the color of points that never escape.
	Background string `yaml:"background" validate:"hexcolor"`

	// Viewport is the initial viewport.
	Viewport ViewportConfig `yaml:"viewport"`
}

// DefaultConfig returns the classic full view: a 900×600 raster showing
// x in [-2.2, 1.0] and y in [-1, 1] with a budget of 200 iterations.
func DefaultConfig() Config {
	return Config{
		Width:           900,
		Height:          600,
		Workers:         0,
		IterationBudget: 200,
		Precision:       PrecisionFixed,
		PrecisionDigits: 40,
		Background:      "#000000",
		Viewport: ViewportConfig{
			CenterX:    "-0.6",
			CenterY:    "0",
			HalfWidth:  "1.6",
			HalfHeight: "1.0",
		},
	}
}

// configValidate is the validator instance for Config.
// Initialized in init() with custom validators.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()

	_ = configValidate.RegisterValidation("decimal", validateDecimal)
	_ = configValidate.RegisterValidation("positive_decimal", validatePositiveDecimal)
}

// parseFiniteDecimal parses s as a finite decimal number.
func parseFiniteDecimal(s string) (*apd.Decimal, bool) {
	d, _, err := apd.NewFromString(strings.TrimSpace(s))
	if err != nil || d.Form != apd.Finite {
		return nil, false
	}
	return d, true
}

// validateDecimal accepts any finite decimal number.
func validateDecimal(fl validator.FieldLevel) bool {
	_, ok := parseFiniteDecimal(fl.Field().String())
	return ok
}

// validatePositiveDecimal accepts a finite decimal number greater than zero.
func validatePositiveDecimal(fl validator.FieldLevel) bool {
	d, ok := parseFiniteDecimal(fl.Field().String())
	return ok && d.Sign() > 0
}

// Validate checks every field against its constraints.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// BackgroundColor returns the parsed background color.
func (c Config) BackgroundColor() (color.RGBA, error) {
	return ParseHex(c.Background)
}

// ParseConfig decodes YAML on top of DefaultConfig and validates the result.
// Unknown keys are rejected. Empty input yields the defaults.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("mandel: parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML config file. An empty path or a file
// that does not exist yields the defaults.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return DefaultConfig(), fmt.Errorf("mandel: load config: %w", err)
	}
	return ParseConfig(data)
}

// Marshal encodes the config as YAML.
func (c Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("mandel: encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
