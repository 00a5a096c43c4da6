package storage

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Criteria is the structured form of a target's matching rules.
type Criteria map[string]any

// DescriptionKey holds free-text criteria that were not a structured document.
const DescriptionKey = "description"

// ParseCriteria turns a stored criteria blob into structured form. JSON objects
// and YAML mappings decode as-is (JSON is valid YAML). A plain sentence becomes
// {"description": sentence}. Empty blobs, lists, and blobs that start like a
// JSON document but do not decode are rejected.
func ParseCriteria(raw string) (Criteria, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("criteria: empty")
	}

	var doc any
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		if looksStructured(raw) {
			return nil, fmt.Errorf("criteria: parse: %w", err)
		}
		// Free text with stray colons or quotes still counts as a description.
		return Criteria{DescriptionKey: raw}, nil
	}

	switch v := doc.(type) {
	case map[string]any:
		if len(v) == 0 {
			return nil, errors.New("criteria: empty document")
		}
		return Criteria(v), nil
	case string:
		if looksStructured(raw) {
			return nil, fmt.Errorf("criteria: expected a mapping, got %q", v)
		}
		return Criteria{DescriptionKey: strings.TrimSpace(v)}, nil
	case nil:
		return nil, errors.New("criteria: empty document")
	case []any:
		return nil, errors.New("criteria: expected a mapping, got a list")
	default:
		// Numbers and booleans are not meaningful criteria on their own.
		return nil, fmt.Errorf("criteria: expected a mapping, got %T", v)
	}
}

func looksStructured(raw string) bool {
	return strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[")
}

// String renders criteria compactly for prompts and logs, keys sorted.
func (c Criteria) String() string {
	if len(c) == 0 {
		return ""
	}
	if desc, ok := c[DescriptionKey].(string); ok && len(c) == 1 {
		return desc
	}
	out, err := yaml.Marshal(map[string]any(c))
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(c))
	}
	return strings.TrimSpace(string(out))
}
