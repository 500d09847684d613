package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// EmbeddedJSON is a JSON object the panel transports as JSON-encoded text
// (settings, streamSettings, sniffing). It decodes from either form and
// always encodes back to text.
type EmbeddedJSON map[string]any

// ParseEmbeddedJSON decodes embedded JSON text. Empty text yields an empty object.
func ParseEmbeddedJSON(text string) (EmbeddedJSON, error) {
	if strings.TrimSpace(text) == "" {
		return EmbeddedJSON{}, nil
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("failed to decode embedded json: %w", err)
	}
	if obj == nil {
		obj = map[string]any{}
	}
	return obj, nil
}

// UnmarshalJSON accepts the wire form (a string) as well as a plain object
func (e *EmbeddedJSON) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*e = EmbeddedJSON{}
		return nil
	}

	text := string(trimmed)
	if trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return fmt.Errorf("failed to decode embedded json text: %w", err)
		}
	}

	obj, err := ParseEmbeddedJSON(text)
	if err != nil {
		return err
	}
	*e = obj
	return nil
}

// MarshalJSON writes the object as JSON-encoded text. A nil object is written as "".
func (e EmbeddedJSON) MarshalJSON() ([]byte, error) {
	text, err := e.Encode()
	if err != nil {
		return nil, err
	}
	return json.Marshal(text)
}

// Encode returns the embedded text form of the object
func (e EmbeddedJSON) Encode() (string, error) {
	if e == nil {
		return "", nil
	}
	data, err := json.Marshal(map[string]any(e))
	if err != nil {
		return "", fmt.Errorf("failed to encode embedded json: %w", err)
	}
	return string(data), nil
}

// Clone returns a deep copy
func (e EmbeddedJSON) Clone() EmbeddedJSON {
	if e == nil {
		return nil
	}
	return cloneValue(map[string]any(e)).(map[string]any)
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}
