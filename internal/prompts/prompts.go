// Package prompts loads the narrative prompt templates from YAML.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Prompt keys.
const (
	KeySystem           = "system"
	KeyRisk             = "risk_instructions"
	KeySummaryOnly      = "summary_instructions"
	KeyUserTurn         = "user_turn"
	KeyTasksUnavailable = "tasks_unavailable"
	KeyNoSubject        = "no_subject"
	KeyToday            = "today"
	KeyApology          = "apology"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Store is a read-only set of prompt templates.
type Store struct {
	prompts map[string]string
}

// Default returns the built-in prompts.
func Default() *Store {
	parsed, err := parse(defaultPrompts)
	if err != nil {
		panic(fmt.Sprintf("prompts: embedded prompts.yaml is invalid: %v", err))
	}
	return &Store{prompts: parsed}
}

// Load returns the built-in prompts overlaid with the keys found in path.
// An empty path yields the built-in prompts.
func Load(path string) (*Store, error) {
	s := Default()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file %s: %w", path, err)
	}
	overrides, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse prompts file %s: %w", path, err)
	}
	for k, v := range overrides {
		s.prompts[k] = v
	}
	return s, nil
}

func parse(data []byte) (map[string]string, error) {
	parsed := make(map[string]string)
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

// Get returns the prompt for key, or "" when it is not defined.
func (s *Store) Get(key string) string {
	return s.prompts[key]
}

// MustGet returns the prompt for key and panics when it is missing.
func (s *Store) MustGet(key string) string {
	val := s.Get(key)
	if val == "" {
		panic(fmt.Sprintf("prompt %q not found", key))
	}
	return val
}

// Keys returns the defined prompt keys, sorted.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.prompts))
	for k := range s.prompts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
