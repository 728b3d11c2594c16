package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested artifact does not exist in the store.
var ErrNotFound = errors.New("artifact not found")

// ErrStale indicates a cached or fetched artifact is corrupt or no longer
// parseable. Callers should Invalidate the path and retry once against the
// backing store.
var ErrStale = errors.New("artifact is stale or corrupt")

// Metadata describes a trained model: feature ordering and provenance.
type Metadata struct {
	// InputFeatures lists model input feature names in column order.
	InputFeatures []string `json:"input_features"`

	// OutputFeatures lists model output feature names in column order.
	OutputFeatures []string `json:"output_features"`

	// TrainedAt is an opaque provenance timestamp, if recorded.
	TrainedAt string `json:"trained_at,omitempty"`

	// Version is an opaque artifact version, if recorded.
	Version string `json:"version,omitempty"`
}

// Store retrieves model artifacts by store-relative path. Implementations
// must be safe for concurrent use.
type Store interface {
	// GetModel fetches and parses a network weight document.
	GetModel(ctx context.Context, path string) (*Network, error)

	// GetScaler fetches and parses a scaler bundle document.
	GetScaler(ctx context.Context, path string) (ScalerBundle, error)

	// GetMetadata fetches and parses a model metadata document.
	GetMetadata(ctx context.Context, path string) (*Metadata, error)

	// Invalidate drops any cached copy of the artifact at path. Stores
	// without a cache treat this as a no-op.
	Invalidate(path string)
}

// decodeModel parses raw JSON bytes into a Network, mapping parse failures
// to ErrStale so callers can invalidate and refetch.
func decodeModel(raw []byte, path string) (*Network, error) {
	var n Network
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("decode model %s: %w: %v", path, ErrStale, err)
	}
	if len(n.Layers) == 0 {
		return nil, fmt.Errorf("model %s has no layers: %w", path, ErrStale)
	}
	return &n, nil
}

// decodeScaler parses raw JSON bytes into a ScalerBundle.
func decodeScaler(raw []byte, path string) (ScalerBundle, error) {
	var b ScalerBundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode scaler %s: %w: %v", path, ErrStale, err)
	}
	return b, nil
}

// decodeMetadata parses raw JSON bytes into a Metadata document.
func decodeMetadata(raw []byte, path string) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode metadata %s: %w: %v", path, ErrStale, err)
	}
	return &m, nil
}
