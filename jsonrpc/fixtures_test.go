package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"testing"
)

// calc is the provider used throughout the package tests.
type calc struct {
	auth *AuthContext
}

type pairParams struct {
	A int `json:"a"`
	B int `json:"b"`
}

type tripleParams struct {
	A int `json:"a"`
	B int `json:"b"`
	C int `json:"c"`
}

var errExploded = errors.New("database exploded")

func (c *calc) Add(_ context.Context, p pairParams) (int, error) {
	return p.A + p.B, nil
}

func (c *calc) Sum3(_ context.Context, p tripleParams) (int, error) {
	return p.A + p.B + p.C, nil
}

func (c *calc) Secret(_ context.Context, _ struct{}) (string, error) {
	return "s3cret", nil
}

func (c *calc) Token(ctx context.Context, _ struct{}) ([]string, error) {
	return []string{c.auth.Token, AuthFromContext(ctx).Token}, nil
}

func (c *calc) Boom(_ context.Context, _ struct{}) (int, error) {
	panic("boom")
}

func (c *calc) Fail(_ context.Context, _ struct{}) (int, error) {
	return 0, errExploded
}

func (c *calc) Reject(_ context.Context, _ struct{}) (int, error) {
	return 0, InvalidArguments("calc.reject", "a must be positive").WithData(map[string]any{"field": "a"})
}

func (c *calc) Unencodable(_ context.Context, _ struct{}) (any, error) {
	return make(chan int), nil
}

// Hidden has the shape of an endpoint but is never declared.
func (c *calc) Hidden(_ context.Context, _ struct{}) (int, error) {
	return 42, nil
}

func calcModule(context.Context) (*Module, error) {
	return NewModule(func(a *AuthContext) (*calc, error) {
		return &calc{auth: a}, nil
	},
		Method("add", LevelNone, (*calc).Add),
		Method("sum3", LevelNone, (*calc).Sum3),
		Method("secret", "User", (*calc).Secret),
		Method("token", LevelNone, (*calc).Token),
		Method("boom", LevelNone, (*calc).Boom),
		Method("fail", LevelNone, (*calc).Fail),
		Method("reject", LevelNone, (*calc).Reject),
		Method("unencodable", LevelNone, (*calc).Unencodable),
	)
}

// countingLoader loads calcModule under "calc" and counts the loads.
type countingLoader struct {
	loads atomic.Int32
}

func (l *countingLoader) Load(ctx context.Context, path string) (*Module, error) {
	if path != "calc" {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, path)
	}
	l.loads.Add(1)
	return calcModule(ctx)
}

// testLevels lists the levels held by each known token.
var testLevels = map[string][]Level{
	"user-token":  {"User"},
	"super-token": {"User", "Super"},
}

func testAccess() AccessChecker {
	return AccessCheckerFunc(func(_ context.Context, token string, level Level) (bool, error) {
		switch token {
		case "expired":
			return false, fmt.Errorf("%w: token expired", ErrInvalidToken)
		case "down":
			return false, errors.New("acl store unreachable")
		}
		return slices.Contains(testLevels[token], level), nil
	})
}

func newTestDispatcher(opts ...Option) (*Dispatcher, *countingLoader) {
	loader := &countingLoader{}
	registry := NewRegistry(loader, map[string]string{"math": "calc"})
	return NewDispatcher(registry, testAccess(), opts...), loader
}

func dispatch(t *testing.T, d *Dispatcher, frame string) map[string]any {
	t.Helper()
	out := d.Dispatch(context.Background(), []byte(frame))
	var resp map[string]any
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, out)
	}
	return resp
}

func errorObj(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	obj, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error response, got %v", resp)
	}
	return obj
}

func errorCode(t *testing.T, resp map[string]any) string {
	t.Helper()
	code, _ := errorObj(t, resp)["code"].(string)
	return code
}

func resolve(t *testing.T, r *Registry, method, token string) *ServiceEndpoint {
	t.Helper()
	se, err := r.Resolve(context.Background(), method, NewAuthContext(token))
	if err != nil {
		t.Fatalf("Resolve(%q): %v", method, err)
	}
	return se
}

func wantKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	rpcErr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error of kind %s, got %T: %v", kind, err, err)
	}
	if rpcErr.Kind != kind {
		t.Fatalf("got kind %s, want %s (%v)", rpcErr.Kind, kind, err)
	}
	return rpcErr
}
