package config

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/optikiln/optikiln/pkg/strategy"
)

// StrategyParser loads strategy documents from YAML and validates them
// against the built-in CUE schema.
type StrategyParser struct {
	ctx    *cue.Context
	schema cue.Value
}

// NewStrategyParser creates a parser with the built-in schema compiled.
func NewStrategyParser() (*StrategyParser, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(strategySchema)
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile strategy schema: %w", err)
	}
	return &StrategyParser{ctx: ctx, schema: schema}, nil
}

// ParseFile loads and validates the strategy document at path.
func (p *StrategyParser) ParseFile(path string) (*strategy.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read strategy document: %w", err)
	}
	cfg, err := p.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("strategy document %s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates raw YAML against the schema and decodes it into a typed
// strategy configuration.
func (p *StrategyParser) Parse(raw []byte) (*strategy.Config, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("empty strategy document")
	}

	// Unify with the schema; the unified value is valid only when the
	// document satisfies every constraint.
	val := p.ctx.Encode(doc)
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	unified := p.schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("schema validation: %s", cueerrors.Details(err, nil))
	}

	var cfg strategy.Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode strategy: %w", err)
	}
	return &cfg, nil
}
