package niche

import (
	"fmt"
	"strings"
)

// ConfigError lists every problem found in a niche file so an author can fix them in one pass.
type ConfigError struct {
	Path       string
	Violations []string
}

func (e *ConfigError) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("niche config %s: %s", e.Path, e.Violations[0])
	}
	return fmt.Sprintf("niche config %s: %d violations: %s", e.Path, len(e.Violations), strings.Join(e.Violations, "; "))
}
