// Package config loads server configuration from a YAML file with
// environment variable overrides.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Auth modes.
const (
	AuthSealed   = "sealed"
	AuthJWT      = "jwt"
	AuthOIDC     = "oidc"
	AuthUserInfo = "userinfo"
)

type Config struct {
	Addr string `yaml:"addr" env:"RPC_ADDR"`
	// Version is the protocol version marker.
	Version string `yaml:"version" env:"RPC_VERSION"`
	// DebugLevel is the access level that may request debug output. "None"
	// allows anyone; empty disables debug output.
	DebugLevel string `yaml:"debugLevel" env:"RPC_DEBUG_LEVEL"`
	// Levels orders access levels from least to most privileged.
	Levels []string `yaml:"levels" env:"RPC_LEVELS" envSeparator:","`
	// Aliases maps a namespace to a canonical module path.
	Aliases  map[string]string `yaml:"aliases" env:"RPC_ALIASES"`
	LogLevel string            `yaml:"logLevel" env:"RPC_LOG_LEVEL"`
	// AllowedOrigins enables CORS for the listed browser origins.
	AllowedOrigins []string `yaml:"allowedOrigins" env:"RPC_ALLOWED_ORIGINS" envSeparator:","`

	Auth      AuthConfig      `yaml:"auth" envPrefix:"RPC_AUTH_"`
	RateLimit RateLimitConfig `yaml:"rateLimit" envPrefix:"RPC_RATE_LIMIT_"`

	// Users are the accounts accepted by session.login.
	Users map[string]UserConfig `yaml:"users"`
}

type AuthConfig struct {
	Mode string `yaml:"mode" env:"MODE"`

	// sealed
	KeyID string `yaml:"keyID" env:"KEY_ID"`
	// Keys maps key IDs to base64 (std or url, padded or not) 32-byte keys.
	Keys map[string]string `yaml:"keys" env:"KEYS"`

	// jwt
	JWTSecret string `yaml:"jwtSecret" env:"JWT_SECRET"`

	// jwt and oidc
	Issuer   string `yaml:"issuer" env:"ISSUER"`
	Audience string `yaml:"audience" env:"AUDIENCE"`
	ClientID string `yaml:"clientID" env:"CLIENT_ID"`

	// userinfo
	UserInfoURL string `yaml:"userInfoURL" env:"USERINFO_URL"`

	// LevelClaim names the claim carrying the access level.
	LevelClaim string `yaml:"levelClaim" env:"LEVEL_CLAIM"`
}

type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" env:"ENABLED"`
	RPS     float64 `yaml:"rps" env:"RPS"`
	Burst   int     `yaml:"burst" env:"BURST"`
}

type UserConfig struct {
	// PasswordHash is a bcrypt hash.
	PasswordHash string `yaml:"passwordHash"`
	Level        string `yaml:"level"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Addr:       ":8080",
		Version:    "2.0",
		DebugLevel: "Super",
		Levels:     []string{"None", "User", "Admin", "Super"},
		LogLevel:   "info",
		Auth: AuthConfig{
			Mode:       AuthSealed,
			LevelClaim: "acl",
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     30,
			Burst:   60,
		},
	}
}

// Load reads the YAML file at path (if path is not empty) over the defaults,
// then applies environment overrides, then validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("config: addr is required")
	}
	if c.Version == "" {
		return errors.New("config: version is required")
	}
	if len(c.Levels) == 0 || c.Levels[0] != "None" {
		return errors.New(`config: levels must start with "None"`)
	}
	if c.DebugLevel != "" && !slices.Contains(c.Levels, c.DebugLevel) {
		return fmt.Errorf("config: debugLevel %q is not a level", c.DebugLevel)
	}
	for ns, path := range c.Aliases {
		if ns == "" || path == "" || strings.Contains(ns, ".") {
			return fmt.Errorf("config: invalid alias %q -> %q", ns, path)
		}
	}
	for name, u := range c.Users {
		if u.PasswordHash == "" {
			return fmt.Errorf("config: user %q has no passwordHash", name)
		}
		if !slices.Contains(c.Levels, u.Level) {
			return fmt.Errorf("config: user %q has unknown level %q", name, u.Level)
		}
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return errors.New("config: rateLimit rps and burst must be positive")
	}

	a := c.Auth
	switch a.Mode {
	case AuthSealed:
		keys, err := a.DecodeKeys()
		if err != nil {
			return err
		}
		if _, ok := keys[a.KeyID]; !ok {
			return fmt.Errorf("config: auth keyID %q not found in keys", a.KeyID)
		}
	case AuthJWT:
		if a.JWTSecret == "" {
			return errors.New("config: auth jwtSecret is required for jwt mode")
		}
	case AuthOIDC:
		if a.Issuer == "" || a.ClientID == "" {
			return errors.New("config: auth issuer and clientID are required for oidc mode")
		}
	case AuthUserInfo:
		if a.UserInfoURL == "" {
			return errors.New("config: auth userInfoURL is required for userinfo mode")
		}
	default:
		return fmt.Errorf("config: unknown auth mode %q", a.Mode)
	}
	return nil
}

// DecodeKeys decodes the sealing keys.
func (a AuthConfig) DecodeKeys() (map[string][]byte, error) {
	out := make(map[string][]byte, len(a.Keys))
	for id, raw := range a.Keys {
		b, err := decodeBase64(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("config: decode key %q: %w", id, err)
		}
		out[id] = b
	}
	return out, nil
}

func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("invalid base64")
}
