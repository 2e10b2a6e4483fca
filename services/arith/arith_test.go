package arith

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mnehpets/rpcdispatch/jsonrpc"
)

func newDispatcher() *jsonrpc.Dispatcher {
	catalog := jsonrpc.NewCatalog()
	catalog.Register(Path, Module)
	return jsonrpc.NewDispatcher(jsonrpc.NewRegistry(catalog, nil), nil)
}

func call(t *testing.T, d *jsonrpc.Dispatcher, method, params string) map[string]any {
	t.Helper()
	frame := `{"jsonrpc":"2.0","method":"` + method + `","params":` + params + `,"id":1}`
	var resp map[string]any
	if err := json.Unmarshal(d.Dispatch(context.Background(), []byte(frame)), &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestArith(t *testing.T) {
	d := newDispatcher()

	tests := []struct {
		method   string
		params   string
		want     float64
		wantCode string
	}{
		{"arith.add", `[2, 3.5]`, 5.5, ""},
		{"arith.add", `{"a": 2, "b": 3}`, 5, ""},
		{"arith.sub", `[10, 4]`, 6, ""},
		{"arith.sub", `{"b": 4, "a": 10}`, 6, ""},
		{"arith.divide", `[9, 3]`, 3, ""},
		{"arith.divide", `{"dividend": 1, "divisor": 4}`, 0.25, ""},
		{"arith.divide", `[1, 0]`, 0, "InvalidArguments"},
		{"arith.sum", `[[1, 2, 3, 4]]`, 10, ""},
		{"arith.sum", `{"values": []}`, 0, ""},
		{"arith.add", `[1]`, 0, "InvalidArguments"},
		{"arith.add", `{"a": 1, "c": 2}`, 0, "InvalidArguments"},
		{"arith.sum", `[1, 2, 3]`, 0, "InvalidArguments"},
		{"arith.anonymous", `[]`, 0, "RequestNotTranslatable"},
		{"arith.Anonymous", `[]`, 0, "RequestNotTranslatable"},
		{"arith.mul", `[1, 2]`, 0, "RequestNotTranslatable"},
	}

	for _, tt := range tests {
		t.Run(tt.method+tt.params, func(t *testing.T) {
			resp := call(t, d, tt.method, tt.params)
			if tt.wantCode != "" {
				e, _ := resp["error"].(map[string]any)
				if e["code"] != tt.wantCode {
					t.Errorf("got %v, want code %s", resp, tt.wantCode)
				}
				return
			}
			if resp["result"] != tt.want {
				t.Errorf("got %v, want %v", resp, tt.want)
			}
		})
	}
}

func TestAnonymousReflectsAuth(t *testing.T) {
	s, _ := New(jsonrpc.NewAuthContext("tok"))
	if anon, _ := s.Anonymous(context.Background(), struct{}{}); anon {
		t.Error("authenticated context reported as anonymous")
	}
	s, _ = New(jsonrpc.NewAuthContext(""))
	if anon, _ := s.Anonymous(context.Background(), struct{}{}); !anon {
		t.Error("empty token not reported as anonymous")
	}
}
