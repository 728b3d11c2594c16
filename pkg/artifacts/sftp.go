package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// SFTPConfig holds the connection parameters for a remote artifact share.
type SFTPConfig struct {
	// Host is the remote hostname or IP address.
	Host string `yaml:"host" json:"host" validate:"required"`

	// Port is the SSH port. Defaults to 22.
	Port int `yaml:"port" json:"port"`

	// User is the SSH username.
	User string `yaml:"user" json:"user" validate:"required"`

	// PrivateKeyPath points to an SSH private key file. Takes precedence
	// over Password when both are set.
	PrivateKeyPath string `yaml:"private_key_path" json:"private_key_path"`

	// Password enables password authentication.
	Password string `yaml:"password" json:"password"`

	// Root is the remote directory artifacts are resolved under.
	Root string `yaml:"root" json:"root"`

	// ConnectTimeoutSeconds bounds connection establishment. Defaults to 10.
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds" json:"connect_timeout_seconds"`
}

// Address returns the host:port dial address.
func (c *SFTPConfig) Address() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

// SFTPStore reads artifacts from a remote directory over SFTP. The SSH
// connection is established lazily on first use and re-established after
// transport errors.
type SFTPStore struct {
	config SFTPConfig
	logger zerolog.Logger

	mu     sync.Mutex
	client *ssh.Client
	sftp   *sftp.Client
}

// NewSFTPStore creates an SFTP-backed artifact store. No connection is made
// until the first fetch.
func NewSFTPStore(config SFTPConfig, logger zerolog.Logger) (*SFTPStore, error) {
	if config.Host == "" || config.User == "" {
		return nil, fmt.Errorf("sftp store requires host and user")
	}
	if config.PrivateKeyPath == "" && config.Password == "" {
		return nil, fmt.Errorf("sftp store requires a private key or password")
	}
	return &SFTPStore{
		config: config,
		logger: logger.With().Str("component", "artifact-store").Str("backend", "sftp").Logger(),
	}, nil
}

// GetModel fetches and parses a network weight document.
func (s *SFTPStore) GetModel(ctx context.Context, p string) (*Network, error) {
	raw, err := s.read(ctx, p)
	if err != nil {
		return nil, err
	}
	return decodeModel(raw, p)
}

// GetScaler fetches and parses a scaler bundle document.
func (s *SFTPStore) GetScaler(ctx context.Context, p string) (ScalerBundle, error) {
	raw, err := s.read(ctx, p)
	if err != nil {
		return nil, err
	}
	return decodeScaler(raw, p)
}

// GetMetadata fetches and parses a model metadata document.
func (s *SFTPStore) GetMetadata(ctx context.Context, p string) (*Metadata, error) {
	raw, err := s.read(ctx, p)
	if err != nil {
		return nil, err
	}
	return decodeMetadata(raw, p)
}

// Invalidate is a no-op; the SFTP store holds no cache.
func (s *SFTPStore) Invalidate(string) {}

// Close tears down the SSH connection.
func (s *SFTPStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnectLocked()
}

func (s *SFTPStore) read(ctx context.Context, p string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.connectLocked(); err != nil {
		return nil, err
	}

	remote := path.Join(s.config.Root, path.Clean("/"+p))
	f, err := s.sftp.Open(remote)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("fetch %s: %w", p, ErrNotFound)
		}
		// Assume a broken transport and force a reconnect on the next call.
		_ = s.disconnectLocked()
		return nil, fmt.Errorf("fetch %s: %w", p, err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		_ = s.disconnectLocked()
		return nil, fmt.Errorf("fetch %s: %w", p, err)
	}
	s.logger.Debug().Str("path", p).Int("bytes", len(raw)).Msg("artifact fetched")
	return raw, nil
}

func (s *SFTPStore) connectLocked() error {
	if s.sftp != nil {
		return nil
	}

	auth, err := s.authMethod()
	if err != nil {
		return err
	}
	timeout := time.Duration(s.config.ConnectTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	clientConfig := &ssh.ClientConfig{
		User:            s.config.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	s.logger.Debug().Str("address", s.config.Address()).Msg("establishing SFTP connection")
	client, err := ssh.Dial("tcp", s.config.Address(), clientConfig)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.config.Address(), err)
	}
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("open sftp session: %w", err)
	}
	s.client = client
	s.sftp = sftpClient
	return nil
}

func (s *SFTPStore) authMethod() (ssh.AuthMethod, error) {
	if s.config.PrivateKeyPath != "" {
		key, err := os.ReadFile(s.config.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return ssh.PublicKeys(signer), nil
	}
	return ssh.Password(s.config.Password), nil
}

func (s *SFTPStore) disconnectLocked() error {
	var err error
	if s.sftp != nil {
		err = s.sftp.Close()
		s.sftp = nil
	}
	if s.client != nil {
		if cerr := s.client.Close(); err == nil {
			err = cerr
		}
		s.client = nil
	}
	return err
}
