package widget

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config is the opaque per-placeholder configuration decoded from the
// data-widget-config attribute.
type Config map[string]any

// ParseConfig decodes raw as a JSON object. Anything else, including an
// absent or empty attribute, yields an empty Config and, for malformed input,
// a non-nil error describing why. The returned Config is always usable.
func ParseConfig(raw string) (Config, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Config{}, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return Config{}, fmt.Errorf("parse widget config: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return Config{}, fmt.Errorf("widget config is %T, want object", v)
	}
	return Config(obj), nil
}

func (c Config) String(key, def string) string {
	switch v := c[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return def
}

func (c Config) Int(key string, def int) int {
	switch v := c[key].(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// Millis reads a duration given in milliseconds. Negative values fall back
// to def.
func (c Config) Millis(key string, def time.Duration) time.Duration {
	n := c.Int(key, -1)
	if n < 0 {
		return def
	}
	return time.Duration(n) * time.Millisecond
}

func (c Config) Strings(key string, def []string) []string {
	raw, ok := c[key].([]any)
	if !ok {
		return def
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
