package config

import (
	"fmt"
	"strings"
)

// ConfigError names one missing or invalid configuration item.
type ConfigError struct {
	Item   string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s %s", e.Item, e.Reason)
}

// ValidationError collects every ConfigError found by Validate.
type ValidationError struct {
	Problems []*ConfigError
}

func (e *ValidationError) Error() string {
	lines := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		lines[i] = p.Error()
	}
	return fmt.Sprintf("configuration validation failed:\n- %s", strings.Join(lines, "\n- "))
}

// Items returns the names of the offending settings.
func (e *ValidationError) Items() []string {
	items := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		items[i] = p.Item
	}
	return items
}
