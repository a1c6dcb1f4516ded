package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// parseArgs turns key=value words into a JSON object. Values that parse as integers, numbers
// or booleans keep those types; a value wrapped in {} or [] is taken as JSON; anything else is
// a string.
func parseArgs(words []string) (json.RawMessage, error) {
	args := make(map[string]any, len(words))
	for _, word := range words {
		key, value, ok := strings.Cut(word, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value", word)
		}
		typed, err := typedValue(value)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", key, err)
		}
		args[key] = typed
	}
	return json.Marshal(args)
}

func typedValue(value string) (any, error) {
	if value == "" {
		return value, nil
	}
	if strings.HasPrefix(value, "{") || strings.HasPrefix(value, "[") {
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	// cast truncates "2.5" to an integer, so integers are recognized strictly first.
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i, nil
	}
	if f, err := cast.ToFloat64E(value); err == nil {
		return f, nil
	}
	if value == "true" || value == "false" {
		return cast.ToBool(value), nil
	}
	return value, nil
}

// parseStringArgs splits key=value words for prompts, whose arguments are always strings.
func parseStringArgs(words []string) (map[string]string, error) {
	args := make(map[string]string, len(words))
	for _, word := range words {
		key, value, ok := strings.Cut(word, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value", word)
		}
		args[key] = value
	}
	return args, nil
}
