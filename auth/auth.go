// Package auth implements the access-control side of the dispatcher: token
// verification and access-level policy.
//
// A Verifier turns a credential token into a Credential. The Controller
// combines a Verifier with a Ladder of ordered levels and satisfies
// jsonrpc.AccessChecker:
//
//	ctrl := auth.NewController(verifier, auth.DefaultLadder)
//	d := jsonrpc.NewDispatcher(registry, ctrl)
//
// Verifiers:
//   - Sealer: opaque tokens sealed with XChaCha20-Poly1305 over CBOR claims.
//   - JWTVerifier: HMAC-signed JWTs.
//   - OIDCVerifier: OIDC ID tokens checked against the issuer's keys.
//   - UserInfoVerifier: opaque OAuth2 access tokens checked against a
//     userinfo endpoint.
//
// Verifiers wrap jsonrpc.ErrInvalidToken when a token is rejected. Any other
// error means the verification could not be carried out.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mnehpets/rpcdispatch/jsonrpc"
)

// ErrUnknownLevel is returned when a required level is not on the ladder.
var ErrUnknownLevel = errors.New("auth: unknown access level")

// Credential is the verified identity behind a token.
type Credential struct {
	Subject string
	Level   jsonrpc.Level
	// Expires is zero when the token carries no expiry.
	Expires time.Time
}

// Verifier validates a token and returns its credential.
type Verifier interface {
	Verify(ctx context.Context, token string) (Credential, error)
}

// VerifierFunc adapts a function to a Verifier.
type VerifierFunc func(ctx context.Context, token string) (Credential, error)

func (f VerifierFunc) Verify(ctx context.Context, token string) (Credential, error) {
	return f(ctx, token)
}

// Ladder lists access levels from least to most privileged. Holding a level
// grants every level below it.
type Ladder []jsonrpc.Level

// DefaultLadder is None < User < Admin < Super.
var DefaultLadder = Ladder{jsonrpc.LevelNone, "User", "Admin", "Super"}

// Rank returns the position of level on the ladder.
func (l Ladder) Rank(level jsonrpc.Level) (int, bool) {
	for i, lv := range l {
		if lv == level {
			return i, true
		}
	}
	return 0, false
}

// Allows reports whether a credential holding held may call an endpoint
// requiring required. An empty held level is the bottom of the ladder; a
// held level not on the ladder grants nothing.
func (l Ladder) Allows(held, required jsonrpc.Level) (bool, error) {
	need, ok := l.Rank(required)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownLevel, required)
	}
	if held == "" {
		return need == 0, nil
	}
	have, ok := l.Rank(held)
	if !ok {
		return false, nil
	}
	return have >= need, nil
}

// Controller checks tokens against access levels.
type Controller struct {
	verifier Verifier
	ladder   Ladder
}

// NewController creates a Controller. A nil ladder means DefaultLadder.
func NewController(v Verifier, ladder Ladder) *Controller {
	if ladder == nil {
		ladder = DefaultLadder
	}
	return &Controller{verifier: v, ladder: ladder}
}

// CheckAccess implements jsonrpc.AccessChecker.
func (c *Controller) CheckAccess(ctx context.Context, token string, level jsonrpc.Level) (bool, error) {
	cred, err := c.Identify(ctx, token)
	if err != nil {
		return false, err
	}
	return c.ladder.Allows(cred.Level, level)
}

// Identify verifies token and returns the credential behind it.
func (c *Controller) Identify(ctx context.Context, token string) (Credential, error) {
	if c.verifier == nil {
		return Credential{}, errors.New("auth: no verifier configured")
	}
	return c.verifier.Verify(ctx, token)
}

func invalidToken(format string, args ...any) error {
	return fmt.Errorf("%w: %s", jsonrpc.ErrInvalidToken, fmt.Sprintf(format, args...))
}
