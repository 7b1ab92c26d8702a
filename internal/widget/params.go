package widget

import (
	"fmt"
	"strconv"
	"strings"
)

// Params holds the free-form per-widget configuration from YAML. YAML
// decodes numbers as int or float64 depending on shape, so accessors
// coerce rather than assert.
type Params map[string]any

// String returns the named value as a string, or fallback when absent.
func (p Params) String(name, fallback string) string {
	v, ok := p[name]
	if !ok {
		return fallback
	}
	s := strings.TrimSpace(fmt.Sprintf("%v", v))
	if s == "" {
		return fallback
	}
	return s
}

// Int returns the named value as an int, or fallback when absent or not
// numeric.
func (p Params) Int(name string, fallback int) int {
	v, ok := p[name]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return fallback
		}
		return parsed
	default:
		return fallback
	}
}

// Bool returns the named value as a bool, or fallback when absent.
func (p Params) Bool(name string, fallback bool) bool {
	v, ok := p[name]
	if !ok {
		return fallback
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return fallback
		}
		return parsed
	default:
		return fallback
	}
}

// Require returns the named value as a string, erroring when absent.
func (p Params) Require(name string) (string, error) {
	s := p.String(name, "")
	if s == "" {
		return "", fmt.Errorf("missing required param %q", name)
	}
	return s, nil
}
