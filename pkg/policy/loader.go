package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadDir registers every .rego file in dir as an enabled error-severity
// policy named after its file. A missing directory is not an error; the
// built-in guardrails still apply.
func (e *Engine) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read policy directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rego") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read policy %s: %w", entry.Name(), err)
		}
		name := strings.TrimSuffix(entry.Name(), ".rego")
		p := Policy{
			Name:        name,
			Description: fmt.Sprintf("operator policy from %s", entry.Name()),
			Severity:    SeverityError,
			Enabled:     true,
			Rego:        string(raw),
		}
		if err := e.Add(p); err != nil {
			return fmt.Errorf("policy %s: %w", name, err)
		}
		e.logger.Info().Str("policy", name).Msg("operator policy loaded")
	}
	return nil
}
