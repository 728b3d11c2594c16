package strategy

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// defaultBatchWidth bounds how many inference models a composition runs
// concurrently within one batch.
const defaultBatchWidth = 4

// CompositionSkill executes a named sequence of other skills in order. Runs
// of consecutive inference models are independent by construction (each
// writes its own prediction variable), so they are executed as a concurrent
// batch; every other kind runs sequentially at its position.
type CompositionSkill struct {
	baseSkill
	sequence   []string
	resolved   []Skill
	batchWidth int
	logger     zerolog.Logger
}

// NewCompositionSkill creates a CompositionSkill from its configuration. The
// sequenced skill names are resolved later, once every skill in the strategy
// has been instantiated.
func NewCompositionSkill(name string, cfg SkillConfig, logger zerolog.Logger) (*CompositionSkill, error) {
	if len(cfg.SkillSequence) == 0 {
		return nil, NewConfigError("composition requires a non-empty skill sequence", nil).WithSkill(name)
	}
	return &CompositionSkill{
		baseSkill:  baseSkill{name: name, inputs: cfg.Inputs, outputs: cfg.Outputs},
		sequence:   cfg.SkillSequence,
		batchWidth: defaultBatchWidth,
		logger:     logger.With().Str("skill", name).Logger(),
	}, nil
}

// Kind returns KindComposition.
func (c *CompositionSkill) Kind() Kind { return KindComposition }

// Sequence returns the resolved skills in execution order.
func (c *CompositionSkill) Sequence() []Skill { return c.resolved }

// resolve looks up the sequenced skill names in the registry. A composition
// may sequence other compositions; self-reference is rejected.
func (c *CompositionSkill) resolve(registry map[string]Skill) error {
	c.resolved = make([]Skill, 0, len(c.sequence))
	for _, name := range c.sequence {
		if name == c.name {
			return NewConfigError("composition references itself", nil).WithSkill(c.name)
		}
		s, ok := registry[name]
		if !ok {
			return NewConfigError(fmt.Sprintf("composition references unknown skill %q", name), nil).WithSkill(c.name)
		}
		c.resolved = append(c.resolved, s)
	}
	return nil
}

// Execute runs the sequence. Consecutive inference models are grouped and
// executed concurrently; each batch is fully awaited before the sequence
// advances, so later skills observe every prediction from the batch.
func (c *CompositionSkill) Execute(ctx context.Context, dc *DataContext) error {
	if c.resolved == nil {
		return NewConfigError("composition executed before skill resolution", nil).WithSkill(c.name)
	}
	for i := 0; i < len(c.resolved); {
		if err := ctx.Err(); err != nil {
			return err
		}
		s := c.resolved[i]
		if s.Kind() != KindInferenceModel {
			if err := s.Execute(ctx, dc); err != nil {
				return err
			}
			i++
			continue
		}

		// Collect the run of consecutive inference models starting here.
		j := i
		for j < len(c.resolved) && c.resolved[j].Kind() == KindInferenceModel {
			j++
		}
		if err := c.executeBatch(ctx, dc, c.resolved[i:j]); err != nil {
			return err
		}
		i = j
	}
	return nil
}

// executeBatch runs a batch of inference models over a bounded worker pool.
// All members run to completion even when one fails; the first error is
// returned after the batch drains.
func (c *CompositionSkill) executeBatch(ctx context.Context, dc *DataContext, batch []Skill) error {
	if len(batch) == 1 {
		return batch[0].Execute(ctx, dc)
	}

	workerCount := c.batchWidth
	if len(batch) < workerCount {
		workerCount = len(batch)
	}
	c.logger.Debug().Int("batch_size", len(batch)).Int("workers", workerCount).
		Msg("executing inference batch")

	workQueue := make(chan Skill, len(batch))
	for _, s := range batch {
		workQueue <- s
	}
	close(workQueue)

	var wg sync.WaitGroup
	errChan := make(chan error, len(batch))
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range workQueue {
				if err := s.Execute(ctx, dc); err != nil {
					c.logger.Error().Err(err).Str("member", s.Name()).
						Msg("batch member failed")
					errChan <- fmt.Errorf("skill %s failed: %w", s.Name(), err)
				}
			}
		}()
	}
	wg.Wait()
	close(errChan)

	for err := range errChan {
		return err
	}
	return nil
}
