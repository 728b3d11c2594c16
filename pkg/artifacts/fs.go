package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FSStore reads artifacts from a local directory tree. Paths are resolved
// relative to the store root.
type FSStore struct {
	root   string
	logger zerolog.Logger
}

// NewFSStore creates a filesystem-backed artifact store rooted at root.
func NewFSStore(root string, logger zerolog.Logger) (*FSStore, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("artifact root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("artifact root %s is not a directory", root)
	}
	return &FSStore{
		root:   root,
		logger: logger.With().Str("component", "artifact-store").Str("backend", "fs").Logger(),
	}, nil
}

// GetModel loads and parses a network weight document.
func (s *FSStore) GetModel(_ context.Context, path string) (*Network, error) {
	raw, err := s.read(path)
	if err != nil {
		return nil, err
	}
	return decodeModel(raw, path)
}

// GetScaler loads and parses a scaler bundle document.
func (s *FSStore) GetScaler(_ context.Context, path string) (ScalerBundle, error) {
	raw, err := s.read(path)
	if err != nil {
		return nil, err
	}
	return decodeScaler(raw, path)
}

// GetMetadata loads and parses a model metadata document.
func (s *FSStore) GetMetadata(_ context.Context, path string) (*Metadata, error) {
	raw, err := s.read(path)
	if err != nil {
		return nil, err
	}
	return decodeMetadata(raw, path)
}

// Invalidate is a no-op; the filesystem store holds no cache.
func (s *FSStore) Invalidate(string) {}

func (s *FSStore) read(path string) ([]byte, error) {
	full := filepath.Join(s.root, filepath.Clean("/"+path))
	raw, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	s.logger.Debug().Str("path", path).Int("bytes", len(raw)).Msg("artifact loaded")
	return raw, nil
}
