// Package session is the login service. It checks passwords against bcrypt
// hashes and issues sealed tokens, and reports who the caller is.
package session

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mnehpets/rpcdispatch/auth"
	"github.com/mnehpets/rpcdispatch/jsonrpc"
)

// Path is the canonical module path.
const Path = "session"

// User is a login account.
type User struct {
	PasswordHash []byte
	Level        jsonrpc.Level
}

// Config holds the service's collaborators. It is shared by every provider
// and must not be modified once the module is loaded.
type Config struct {
	Users map[string]User
	// Sealer issues tokens on login. Login is unavailable when nil.
	Sealer *auth.Sealer
	// Verifier identifies callers for whoami.
	Verifier auth.Verifier
	// TokenPeriod is the lifetime of issued tokens. Defaults to auth.DefaultTokenPeriod.
	TokenPeriod time.Duration
	Now         func() time.Time
}

// dummyHash is compared against when the username is unknown, so that both
// failure paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not a password"), bcrypt.MinCost)

// Service is the per-request provider.
type Service struct {
	auth *jsonrpc.AuthContext
	cfg  *Config
}

// Module returns a factory building the session module from cfg.
func Module(cfg *Config) func(context.Context) (*jsonrpc.Module, error) {
	return func(context.Context) (*jsonrpc.Module, error) {
		if cfg == nil {
			return nil, errors.New("session: nil config")
		}
		return jsonrpc.NewModule(func(a *jsonrpc.AuthContext) (*Service, error) {
			return &Service{auth: a, cfg: cfg}, nil
		},
			jsonrpc.Method("login", jsonrpc.LevelNone, (*Service).Login),
			jsonrpc.Method("whoami", jsonrpc.LevelNone, (*Service).Whoami),
		)
	}
}

type LoginParams struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResult struct {
	Token   string    `json:"token"`
	Level   string    `json:"level"`
	Expires time.Time `json:"expires"`
}

func (s *Service) Login(_ context.Context, p LoginParams) (*LoginResult, error) {
	if s.cfg.Sealer == nil {
		return nil, jsonrpc.ServiceUnavailable(errors.New("session: login is not enabled"))
	}
	user, known := s.cfg.Users[p.Username]
	hash := user.PasswordHash
	if !known {
		hash = dummyHash
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(p.Password)); err != nil || !known {
		return nil, jsonrpc.InvalidCredentials("login failed for " + p.Username)
	}

	now := time.Now
	if s.cfg.Now != nil {
		now = s.cfg.Now
	}
	period := s.cfg.TokenPeriod
	if period <= 0 {
		period = auth.DefaultTokenPeriod
	}
	cred := auth.Credential{
		Subject: p.Username,
		Level:   user.Level,
		Expires: now().Add(period).UTC().Truncate(time.Second),
	}
	token, err := s.cfg.Sealer.Seal(cred)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, Level: string(cred.Level), Expires: cred.Expires}, nil
}

type WhoamiResult struct {
	Subject string `json:"subject"`
	Level   string `json:"level"`
}

func (s *Service) Whoami(ctx context.Context, _ struct{}) (*WhoamiResult, error) {
	if s.auth.Anonymous() {
		return nil, jsonrpc.NotLoggedIn(Path + ".whoami")
	}
	if s.cfg.Verifier == nil {
		return nil, jsonrpc.ServiceUnavailable(errors.New("session: no verifier configured"))
	}
	cred, err := s.cfg.Verifier.Verify(ctx, s.auth.Token)
	switch {
	case errors.Is(err, jsonrpc.ErrInvalidToken):
		return nil, jsonrpc.InvalidCredentialToken(err)
	case err != nil:
		return nil, jsonrpc.ServiceUnavailable(err)
	}
	return &WhoamiResult{Subject: cred.Subject, Level: string(cred.Level)}, nil
}
