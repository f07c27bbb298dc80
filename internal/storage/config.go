// server_config.json: secrets and limits that are not passed on the command line.

package storage

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const configFile = "server_config.json"

// ServerConfig is the content of server_config.json. Missing fields take
// their default value and the file is rewritten when something had to be
// generated.
type ServerConfig struct {
	// JWTSecret signs session tokens. It is generated on first start.
	JWTSecret  []byte     `json:"jwt_secret"`
	Quotas     Quotas     `json:"quotas"`
	RateLimits RateLimits `json:"rate_limits"`
}

// Quotas bounds what a single client can make the server store or parse.
type Quotas struct {
	MaxRequestBodyBytes int64 `json:"max_request_body_bytes"`
	// MaxSessionsPerUser is the number of concurrent sign-ins; 0 is unlimited.
	MaxSessionsPerUser int `json:"max_sessions_per_user"`
	// MaxNameLength is in bytes.
	MaxNameLength int `json:"max_name_length"`
}

// DefaultQuotas returns the quotas used for fields absent from the file.
func DefaultQuotas() Quotas {
	return Quotas{MaxRequestBodyBytes: 64 << 10, MaxSessionsPerUser: 10, MaxNameLength: 200}
}

func (q *Quotas) Validate() error {
	switch {
	case q.MaxRequestBodyBytes <= 0:
		return errors.New("max_request_body_bytes must be positive")
	case q.MaxSessionsPerUser < 0:
		return errors.New("max_sessions_per_user must be non-negative")
	case q.MaxNameLength <= 0:
		return errors.New("max_name_length must be positive")
	}
	return nil
}

// RateLimits are per client, in requests per minute. 0 disables a tier.
type RateLimits struct {
	AuthRatePerMin       int `json:"auth_rate_per_min"`
	WriteRatePerMin      int `json:"write_rate_per_min"`
	ReadAuthRatePerMin   int `json:"read_auth_rate_per_min"`
	ReadUnauthRatePerMin int `json:"read_unauth_rate_per_min"`
}

// DefaultRateLimits returns the rate limits used for fields absent from the file.
func DefaultRateLimits() RateLimits {
	return RateLimits{AuthRatePerMin: 10, WriteRatePerMin: 120, ReadAuthRatePerMin: 6000, ReadUnauthRatePerMin: 600}
}

func (r *RateLimits) Validate() error {
	for _, f := range []struct {
		name string
		v    int
	}{
		{"auth_rate_per_min", r.AuthRatePerMin},
		{"write_rate_per_min", r.WriteRatePerMin},
		{"read_auth_rate_per_min", r.ReadAuthRatePerMin},
		{"read_unauth_rate_per_min", r.ReadUnauthRatePerMin},
	} {
		if f.v < 0 {
			return fmt.Errorf("%s must be non-negative", f.name)
		}
	}
	return nil
}

func (c *ServerConfig) Validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt_secret must be at least 32 bytes")
	}
	if err := c.Quotas.Validate(); err != nil {
		return fmt.Errorf("quotas: %w", err)
	}
	if err := c.RateLimits.Validate(); err != nil {
		return fmt.Errorf("rate_limits: %w", err)
	}
	return nil
}

// LoadServerConfig reads dataDir/server_config.json, creating it on first
// start with defaults and a fresh JWT secret.
func LoadServerConfig(dataDir string) (*ServerConfig, error) {
	cfg := &ServerConfig{Quotas: DefaultQuotas(), RateLimits: DefaultRateLimits()}
	data, err := os.ReadFile(filepath.Join(dataDir, configFile)) //nolint:gosec // G304: fixed name under dataDir
	found := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", configFile, err)
	}
	if found {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", configFile, err)
		}
	}
	if len(cfg.JWTSecret) == 0 {
		cfg.JWTSecret = make([]byte, 32)
		_, _ = rand.Read(cfg.JWTSecret)
		found = false
	}
	if !found {
		if err := cfg.Save(dataDir); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", configFile, err)
	}
	return cfg, nil
}

// Save writes the configuration with owner-only permissions, since it holds
// the JWT secret.
func (c *ServerConfig) Save(dataDir string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil { //nolint:gosec // G301: data directory
		return err
	}
	return os.WriteFile(filepath.Join(dataDir, configFile), append(data, '\n'), 0o600)
}
