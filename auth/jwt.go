package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mnehpets/rpcdispatch/jsonrpc"
)

// JWTConfig defines how HMAC-signed JWTs are verified.
type JWTConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	// LevelClaim names the claim holding the access level. Defaults to "acl".
	LevelClaim string
	Now        func() time.Time
}

// JWTVerifier verifies HS256 JWTs. Tokens must carry an expiry.
type JWTVerifier struct {
	cfg JWTConfig
}

// NewJWTVerifier creates a JWTVerifier.
func NewJWTVerifier(cfg JWTConfig) (*JWTVerifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth: jwt secret is required")
	}
	if cfg.LevelClaim == "" {
		cfg.LevelClaim = "acl"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &JWTVerifier{cfg: cfg}, nil
}

// Verify implements Verifier.
func (v *JWTVerifier) Verify(_ context.Context, token string) (Credential, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.cfg.Now),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.cfg.Secret, nil
	}, opts...)
	if err != nil {
		return Credential{}, invalidToken("%v", err)
	}

	cred := Credential{}
	if sub, err := claims.GetSubject(); err == nil {
		cred.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		cred.Expires = exp.Time
	}
	if level, ok := claims[v.cfg.LevelClaim].(string); ok {
		cred.Level = jsonrpc.Level(level)
	}
	return cred, nil
}
