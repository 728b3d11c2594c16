package strategy

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/optikiln/optikiln/pkg/artifacts"
)

// InferenceModel runs a trained regression model over the current variable
// state and writes the prediction to its single output variable's DOF slot.
//
// The model predicts a delta in scaled space. Per call the skill builds a
// feature vector (the dof-minus-current delta for Delta-typed inputs, zero
// otherwise), scales it, runs the forward pass, inverse-scales the first
// output, and adds it to the output variable's Current value.
//
// Artifacts are loaded once at construction. A corrupt artifact triggers one
// invalidate-and-retry against the store; if the retry also fails the skill
// degrades permanently and every Execute writes 0.0 with a warning.
type InferenceModel struct {
	baseSkill
	modelPath  string
	scalerPath string
	logger     zerolog.Logger

	model    *artifacts.Network
	scalers  artifacts.ScalerBundle
	metadata *artifacts.Metadata
	degraded bool
}

// NewInferenceModel creates an InferenceModel skill and loads its artifacts
// from the store. Artifact load failures do not fail construction; the skill
// comes up degraded instead so one unreachable model file cannot prevent the
// rest of the strategy from running.
func NewInferenceModel(ctx context.Context, name string, cfg SkillConfig, store artifacts.Store, logger zerolog.Logger) (*InferenceModel, error) {
	if cfg.ModelPath == "" || cfg.ScalerPath == "" {
		return nil, NewConfigError("inference model requires model and scaler paths", nil).WithSkill(name)
	}
	if len(cfg.Outputs) != 1 {
		return nil, NewConfigError("inference model requires exactly one output variable", nil).WithSkill(name)
	}
	m := &InferenceModel{
		baseSkill:  baseSkill{name: name, inputs: cfg.Inputs, outputs: cfg.Outputs},
		modelPath:  cfg.ModelPath,
		scalerPath: cfg.ScalerPath,
		logger:     logger.With().Str("skill", name).Logger(),
	}
	if err := m.load(ctx, store, cfg.MetadataPath); err != nil {
		m.logger.Warn().Err(err).Msg("model artifacts unavailable, skill degraded to constant 0.0")
		m.degraded = true
	}
	return m, nil
}

// Kind returns KindInferenceModel.
func (m *InferenceModel) Kind() Kind { return KindInferenceModel }

// Degraded reports whether the skill failed to load its artifacts and is
// writing the constant fallback.
func (m *InferenceModel) Degraded() bool { return m.degraded }

// load fetches the model, scaler bundle, and optional metadata. Stale or
// corrupt artifacts are invalidated in the store and refetched exactly once.
func (m *InferenceModel) load(ctx context.Context, store artifacts.Store, metadataPath string) error {
	model, err := store.GetModel(ctx, m.modelPath)
	if errors.Is(err, artifacts.ErrStale) {
		store.Invalidate(m.modelPath)
		m.logger.Warn().Str("path", m.modelPath).Msg("stale model artifact invalidated, retrying")
		model, err = store.GetModel(ctx, m.modelPath)
	}
	if err != nil {
		return err
	}

	scalers, err := store.GetScaler(ctx, m.scalerPath)
	if errors.Is(err, artifacts.ErrStale) {
		store.Invalidate(m.scalerPath)
		m.logger.Warn().Str("path", m.scalerPath).Msg("stale scaler artifact invalidated, retrying")
		scalers, err = store.GetScaler(ctx, m.scalerPath)
	}
	if err != nil {
		return err
	}

	m.model = model
	m.scalers = scalers

	if metadataPath != "" {
		meta, err := store.GetMetadata(ctx, metadataPath)
		if err != nil {
			// Metadata is advisory; log and continue without it.
			m.logger.Warn().Err(err).Str("path", metadataPath).Msg("model metadata unavailable")
			return nil
		}
		m.metadata = meta
	}
	return nil
}

// Execute predicts the output variable's value and writes it to the output
// DOF slot. Prediction failures never propagate; the output is defaulted to
// 0.0 instead.
func (m *InferenceModel) Execute(_ context.Context, dc *DataContext) error {
	out, err := dc.Variable(m.outputs[0])
	if err != nil {
		return err
	}
	if m.degraded {
		m.logger.Warn().Msg("skill is degraded, writing 0.0")
		out.SetDOF(0.0)
		return nil
	}

	features, err := m.features(dc)
	if err != nil {
		return err
	}

	prediction := 0.0
	raw, predErr := m.model.Forward(features)
	if predErr != nil {
		m.logger.Warn().Err(predErr).Msg("model forward pass failed, substituting 0.0")
	} else if len(raw) == 0 {
		m.logger.Warn().Msg("model produced no outputs, substituting 0.0")
	} else {
		// The model predicts a scaled delta from the current operating
		// point, keyed by the output variable's scaler.
		delta := raw[0]
		if scaler, ok := m.scalers[scalerName(out.ID)]; ok {
			delta = scaler.InverseTransform(delta)
		}
		prediction = out.CurrentOr(0.0) + delta
	}

	out.SetDOF(prediction)
	return nil
}

// features builds the scaled model input vector in input order. Delta-typed
// variables contribute their dof-minus-current movement; all other types
// contribute zero, pinning non-delta features to the training origin.
func (m *InferenceModel) features(dc *DataContext) ([]float64, error) {
	features := make([]float64, len(m.inputs))
	for i, id := range m.inputs {
		v, err := dc.Variable(id)
		if err != nil {
			return nil, err
		}
		value := 0.0
		if v.Type == VarTypeDelta {
			value = v.DOFOr(0.0) - v.CurrentOr(0.0)
		}
		if scaler, ok := m.scalers[scalerName(id)]; ok {
			value = scaler.Transform(value)
		} else {
			m.logger.Debug().Str("variable", id).Msg("no scaler for feature, passing through")
		}
		features[i] = value
	}
	return features, nil
}

// scalerName maps a variable id to its scaler bundle key. Scaler bundles are
// keyed by the base signal name, so a delta_ prefix is stripped.
func scalerName(id string) string {
	return strings.TrimPrefix(id, "delta_")
}
