package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML configuration accepts either a Go
// duration string ("90s", "2m") or a bare number of seconds.
type Duration struct {
	d time.Duration
}

// DurationFrom wraps a time.Duration.
func DurationFrom(d time.Duration) Duration {
	return Duration{d: d}
}

// Duration unwraps the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return d.d
}

// IsZero reports whether the duration is unset.
func (d Duration) IsZero() bool {
	return d.d == 0
}

func (d Duration) String() string {
	return d.d.String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(text), err)
	}
	d.d = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		return d.UnmarshalText([]byte(v))
	case int:
		d.d = time.Duration(v) * time.Second
		return nil
	case float64:
		d.d = time.Duration(v * float64(time.Second))
		return nil
	default:
		return fmt.Errorf("unsupported duration value %v (%T)", raw, raw)
	}
}
