package jsonrpc

import (
	"context"
	"errors"
)

// Level is a symbolic access tier declared by an endpoint.
type Level string

// LevelNone marks a public endpoint. It is granted without looking at the token.
const LevelNone Level = "None"

// ErrInvalidToken is wrapped by AccessChecker implementations when a token is
// malformed, expired or otherwise rejected by the underlying validator.
var ErrInvalidToken = errors.New("jsonrpc: invalid credential token")

// AccessChecker answers whether a credential token satisfies an access level.
//
// Implementations return (false, nil) for a valid token that lacks the
// level, an error wrapping ErrInvalidToken for a token that cannot be
// validated, and any other error when the check itself could not be
// performed (backing store down, network failure).
type AccessChecker interface {
	CheckAccess(ctx context.Context, token string, level Level) (bool, error)
}

// AccessCheckerFunc adapts a function to an AccessChecker.
type AccessCheckerFunc func(ctx context.Context, token string, level Level) (bool, error)

func (f AccessCheckerFunc) CheckAccess(ctx context.Context, token string, level Level) (bool, error) {
	return f(ctx, token, level)
}

// AuthContext is the request-scoped authentication state handed to service
// providers. It is built from the request token without validating it.
type AuthContext struct {
	Token string
}

// NewAuthContext returns the auth context for token. An empty token is anonymous.
func NewAuthContext(token string) *AuthContext {
	return &AuthContext{Token: token}
}

// Anonymous reports whether the request carried no credential.
func (a *AuthContext) Anonymous() bool {
	return a == nil || a.Token == ""
}

type authKey struct{}

// WithAuth returns a context carrying a.
func WithAuth(ctx context.Context, a *AuthContext) context.Context {
	return context.WithValue(ctx, authKey{}, a)
}

// AuthFromContext returns the auth context stored by the dispatcher, or an
// anonymous one when none is present.
func AuthFromContext(ctx context.Context) *AuthContext {
	if a, ok := ctx.Value(authKey{}).(*AuthContext); ok && a != nil {
		return a
	}
	return &AuthContext{}
}

// authorize consults checker for level and translates its outcome into the
// error taxonomy. method is used for the InsufficientAccess message.
func authorize(ctx context.Context, checker AccessChecker, auth *AuthContext, level Level, method string) error {
	if level == LevelNone {
		return nil
	}
	if auth.Anonymous() {
		return NotAuthenticated(method)
	}
	if checker == nil {
		return ServiceUnavailable(errors.New("jsonrpc: no access checker configured"))
	}
	ok, err := checker.CheckAccess(ctx, auth.Token, level)
	switch {
	case errors.Is(err, ErrInvalidToken):
		return InvalidCredentialToken(err)
	case err != nil:
		return ServiceUnavailable(err)
	case !ok:
		return InsufficientAccess(method)
	}
	return nil
}
