package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mnehpets/rpcdispatch/jsonrpc"
)

var jwtSecret = []byte("test-secret-test-secret-test-secret")

func signJWT(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestJWTVerifier(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	v, err := NewJWTVerifier(JWTConfig{
		Secret:   jwtSecret,
		Issuer:   "rpc-test",
		Audience: "rpcdispatch",
		Now:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatal(err)
	}

	valid := jwt.MapClaims{
		"sub": "alice",
		"iss": "rpc-test",
		"aud": "rpcdispatch",
		"exp": now.Add(time.Hour).Unix(),
		"acl": "Admin",
	}
	with := func(k string, val any) jwt.MapClaims {
		c := jwt.MapClaims{}
		for key, cv := range valid {
			c[key] = cv
		}
		if val == nil {
			delete(c, k)
		} else {
			c[k] = val
		}
		return c
	}

	t.Run("valid", func(t *testing.T) {
		cred, err := v.Verify(context.Background(), signJWT(t, jwt.SigningMethodHS256, jwtSecret, valid))
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if cred.Subject != "alice" || cred.Level != "Admin" || !cred.Expires.Equal(now.Add(time.Hour)) {
			t.Errorf("got %+v", cred)
		}
	})

	t.Run("no level claim", func(t *testing.T) {
		cred, err := v.Verify(context.Background(), signJWT(t, jwt.SigningMethodHS256, jwtSecret, with("acl", nil)))
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if cred.Level != "" {
			t.Errorf("got level %q", cred.Level)
		}
	})

	rejected := map[string]string{
		"expired":        signJWT(t, jwt.SigningMethodHS256, jwtSecret, with("exp", now.Add(-time.Minute).Unix())),
		"no expiry":      signJWT(t, jwt.SigningMethodHS256, jwtSecret, with("exp", nil)),
		"wrong issuer":   signJWT(t, jwt.SigningMethodHS256, jwtSecret, with("iss", "someone-else")),
		"wrong audience": signJWT(t, jwt.SigningMethodHS256, jwtSecret, with("aud", "other-service")),
		"wrong secret":   signJWT(t, jwt.SigningMethodHS256, []byte("a-different-secret-of-some-length"), valid),
		"wrong alg":      signJWT(t, jwt.SigningMethodHS512, jwtSecret, valid),
		"garbage":        "not.a.jwt",
		"empty":          "",
	}
	for name, token := range rejected {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), token)
			if !errors.Is(err, jsonrpc.ErrInvalidToken) {
				t.Errorf("got %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestJWTVerifierCustomClaim(t *testing.T) {
	v, _ := NewJWTVerifier(JWTConfig{Secret: jwtSecret, LevelClaim: "role"})
	token := signJWT(t, jwt.SigningMethodHS256, jwtSecret, jwt.MapClaims{
		"sub":  "bob",
		"exp":  time.Now().Add(time.Hour).Unix(),
		"role": "User",
		"acl":  "Super",
	})
	cred, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatal(err)
	}
	if cred.Level != "User" {
		t.Errorf("got level %q, want User", cred.Level)
	}
}

func TestNewJWTVerifierRequiresSecret(t *testing.T) {
	if _, err := NewJWTVerifier(JWTConfig{}); err == nil {
		t.Error("expected error")
	}
}
