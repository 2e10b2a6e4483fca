package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mnehpets/rpcdispatch/auth"
	"github.com/mnehpets/rpcdispatch/jsonrpc"
)

func newDispatcher(t *testing.T, cfg *Config) *jsonrpc.Dispatcher {
	t.Helper()
	catalog := jsonrpc.NewCatalog()
	catalog.Register(Path, Module(cfg))
	var checker jsonrpc.AccessChecker
	if cfg != nil && cfg.Verifier != nil {
		checker = auth.NewController(cfg.Verifier, nil)
	}
	return jsonrpc.NewDispatcher(jsonrpc.NewRegistry(catalog, nil), checker)
}

func call(t *testing.T, d *jsonrpc.Dispatcher, frame string) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(d.Dispatch(context.Background(), []byte(frame)), &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func code(resp map[string]any) any {
	e, _ := resp["error"].(map[string]any)
	return e["code"]
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	sealer, err := auth.NewSealer("k1", map[string][]byte{"k1": bytes.Repeat([]byte{7}, auth.KeySize)})
	if err != nil {
		t.Fatal(err)
	}
	return &Config{
		Users:    map[string]User{"alice": {PasswordHash: hash, Level: "Admin"}},
		Sealer:   sealer,
		Verifier: sealer,
	}
}

func TestLoginAndWhoami(t *testing.T) {
	d := newDispatcher(t, testConfig(t))

	resp := call(t, d, `{"jsonrpc":"2.0","method":"session.login","params":["alice","hunter2"],"id":1}`)
	result, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("login failed: %v", resp)
	}
	token, _ := result["token"].(string)
	if token == "" || result["level"] != "Admin" {
		t.Fatalf("got %v", result)
	}

	resp = call(t, d, `{"jsonrpc":"2.0","method":"session.whoami","params":[],"id":2,"auth":"`+token+`"}`)
	who, _ := resp["result"].(map[string]any)
	if who["subject"] != "alice" || who["level"] != "Admin" {
		t.Errorf("got %v", resp)
	}
}

func TestLoginFailures(t *testing.T) {
	d := newDispatcher(t, testConfig(t))

	tests := []struct {
		name   string
		params string
	}{
		{"wrong password", `["alice","wrong"]`},
		{"unknown user", `["mallory","hunter2"]`},
		{"named wrong password", `{"username":"alice","password":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(t, d, `{"jsonrpc":"2.0","method":"session.login","params":`+tt.params+`,"id":1}`)
			if code(resp) != "BadAuth" {
				t.Errorf("got %v, want BadAuth", resp)
			}
			e, _ := resp["error"].(map[string]any)
			if e["message"] != "Invalid username and/or password" {
				t.Errorf("got message %v", e["message"])
			}
		})
	}
}

func TestLoginDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sealer = nil
	d := newDispatcher(t, cfg)

	resp := call(t, d, `{"jsonrpc":"2.0","method":"session.login","params":["alice","hunter2"],"id":1}`)
	if code(resp) != "SystemUnavailable" {
		t.Errorf("got %v", resp)
	}
}

func TestLoginExpiry(t *testing.T) {
	cfg := testConfig(t)
	now := time.Date(2026, 3, 1, 8, 0, 0, 500, time.UTC)
	cfg.Now = func() time.Time { return now }
	cfg.TokenPeriod = time.Hour

	s := &Service{auth: jsonrpc.NewAuthContext(""), cfg: cfg}
	res, err := s.Login(context.Background(), LoginParams{Username: "alice", Password: "hunter2"})
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC); !res.Expires.Equal(want) {
		t.Errorf("got expiry %v, want %v", res.Expires, want)
	}
}

func TestWhoamiFailures(t *testing.T) {
	cfg := testConfig(t)
	d := newDispatcher(t, cfg)

	tests := []struct {
		name string
		auth string
		want string
	}{
		{"anonymous", `null`, "NotLoggedIn"},
		{"empty token", `""`, "NotLoggedIn"},
		{"forged token", `"k1.AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"`, "BadAuthToken"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(t, d, `{"jsonrpc":"2.0","method":"session.whoami","params":[],"id":1,"auth":`+tt.auth+`}`)
			if code(resp) != tt.want {
				t.Errorf("got %v, want %s", resp, tt.want)
			}
		})
	}

	t.Run("verifier down", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Verifier = auth.VerifierFunc(func(context.Context, string) (auth.Credential, error) {
			return auth.Credential{}, errors.New("backend down")
		})
		s := &Service{auth: jsonrpc.NewAuthContext("tok"), cfg: cfg}
		_, err := s.Whoami(context.Background(), struct{}{})
		rpcErr, ok := jsonrpc.AsError(err)
		if !ok || rpcErr.Code() != jsonrpc.CodeSystemUnavailable {
			t.Errorf("got %v", err)
		}
	})
}

func TestModuleNilConfig(t *testing.T) {
	if _, err := Module(nil)(context.Background()); err == nil {
		t.Error("expected error")
	}
}
