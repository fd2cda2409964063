package template

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/dukex/trellis/pkg/models"
	"github.com/spf13/cast"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// HasPlaceholders reports whether s contains at least one {{path}} token.
func HasPlaceholders(s string) bool {
	return placeholderPattern.MatchString(s)
}

// Interpolate replaces every {{path}} in s with the string form of the value
// it resolves to in data. Tokens whose path does not resolve are kept as is;
// a path that resolves to null is substituted with an empty string.
func Interpolate(s string, data map[string]any) string {
	if !strings.Contains(s, "{{") {
		return s
	}

	return placeholderPattern.ReplaceAllStringFunc(s, func(token string) string {
		path := placeholderPattern.FindStringSubmatch(token)[1]

		value, ok := Resolve(data, path)
		if !ok {
			return token
		}

		return Stringify(value)
	})
}

// InterpolateValue walks maps and slices and interpolates every string it
// finds. Non-string leaves are returned untouched.
func InterpolateValue(value any, data map[string]any) any {
	switch typed := value.(type) {
	case string:
		return Interpolate(typed, data)
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = InterpolateValue(item, data)
		}

		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = InterpolateValue(item, data)
		}

		return out
	case map[string]string:
		out := make(map[string]string, len(typed))
		for key, item := range typed {
			out[key] = Interpolate(item, data)
		}

		return out
	case []string:
		out := make([]string, len(typed))
		for i, item := range typed {
			out[i] = Interpolate(item, data)
		}

		return out
	default:
		return value
	}
}

// InterpolateConfig returns a copy of config with placeholders substituted.
func InterpolateConfig(config models.ActionConfig, data map[string]any) models.ActionConfig {
	if config == nil {
		return nil
	}

	return config.Interpolate(
		func(s string) string { return Interpolate(s, data) },
		func(v any) any { return InterpolateValue(v, data) },
	)
}

// Stringify renders a resolved value for substitution into a string.
// Maps and slices are rendered as JSON, nil as an empty string.
func Stringify(value any) string {
	switch value.(type) {
	case map[string]any, []any, map[string]string, []string:
		data, err := json.Marshal(value)
		if err == nil {
			return string(data)
		}
	}

	if s, err := cast.ToStringE(value); err == nil {
		return s
	}

	data, err := json.Marshal(value)
	if err != nil {
		return ""
	}

	return string(data)
}
