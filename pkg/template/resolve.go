// Package template resolves dotted paths and substitutes {{path}} placeholders
// in workflow action configuration.
package template

import (
	"reflect"
	"strconv"
	"strings"
)

// Resolve looks up a dotted path ("client.address.city", "items.0.id") in
// data. The boolean is false when any segment is missing; Resolve never panics.
func Resolve(data any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}

	current := data

	for _, segment := range strings.Split(path, ".") {
		next, ok := child(current, segment)
		if !ok {
			return nil, false
		}

		current = next
	}

	return current, true
}

func child(node any, segment string) (any, bool) {
	switch typed := node.(type) {
	case map[string]any:
		value, ok := typed[segment]

		return value, ok
	case map[string]string:
		value, ok := typed[segment]

		return value, ok
	case []any:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 || index >= len(typed) {
			return nil, false
		}

		return typed[index], true
	case nil:
		return nil, false
	}

	value := reflect.ValueOf(node)

	switch value.Kind() {
	case reflect.Map:
		if value.Type().Key().Kind() != reflect.String {
			return nil, false
		}

		entry := value.MapIndex(reflect.ValueOf(segment).Convert(value.Type().Key()))
		if !entry.IsValid() {
			return nil, false
		}

		return entry.Interface(), true
	case reflect.Slice, reflect.Array:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 || index >= value.Len() {
			return nil, false
		}

		return value.Index(index).Interface(), true
	default:
		return nil, false
	}
}
