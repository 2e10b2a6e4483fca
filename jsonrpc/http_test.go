package jsonrpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mnehpets/rpcdispatch/endpoint"
)

func serveRPC(d *Dispatcher, processors ...endpoint.Processor) http.Handler {
	return endpoint.Handler(d.Endpoint, processors...)
}

func TestHTTPPOSTOnly(t *testing.T) {
	d, _ := newTestDispatcher()

	tests := []struct {
		method   string
		wantCode int
	}{
		{http.MethodGet, http.StatusMethodNotAllowed},
		{http.MethodPut, http.StatusMethodNotAllowed},
		{http.MethodDelete, http.StatusMethodNotAllowed},
		{http.MethodPost, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/rpc", strings.NewReader(`{"jsonrpc":"2.0","method":"calc.add","params":[1,2],"id":1}`))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			serveRPC(d).ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Errorf("got status %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestHTTPContentType(t *testing.T) {
	d, _ := newTestDispatcher()

	tests := []struct {
		contentType string
		wantCode    int
	}{
		{"application/json", http.StatusOK},
		{"application/json; charset=utf-8", http.StatusOK},
		{"", http.StatusOK},
		{"text/plain", http.StatusUnsupportedMediaType},
		{"application/x-www-form-urlencoded", http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(`{"jsonrpc":"2.0","method":"calc.add","params":[1,2],"id":1}`))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			serveRPC(d).ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Errorf("got status %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestHTTPEnvelope(t *testing.T) {
	d, _ := newTestDispatcher()

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"success", `{"jsonrpc":"2.0","method":"calc.add","params":[1,2],"id":1}`, ""},
		{"malformed body", `{"jsonrpc":`, "FAIL"},
		{"empty body", ``, "FAIL"},
		{"access denied", `{"jsonrpc":"2.0","method":"calc.secret","params":[],"id":1}`, "BadAuth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			serveRPC(d).ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("got status %d, want 200: errors travel in the envelope", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("got Content-Type %q", ct)
			}
			var resp map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if tt.wantCode == "" {
				if resp["result"] != float64(3) {
					t.Errorf("got %v", resp)
				}
				return
			}
			if code := errorCode(t, resp); code != tt.wantCode {
				t.Errorf("got code %s, want %s", code, tt.wantCode)
			}
		})
	}
}

func TestHTTPBodyLimit(t *testing.T) {
	d, _ := newTestDispatcher()
	body := bytes.Repeat([]byte(" "), 1<<20+1)
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	serveRPC(d).ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("got status %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestHTTPProcessorShortCircuit(t *testing.T) {
	d, loader := newTestDispatcher()
	deny := endpoint.ProcessorFunc(func(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
		return endpoint.Error(http.StatusForbidden, "blocked", nil)
	})

	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(`{"jsonrpc":"2.0","method":"calc.add","params":[1,2],"id":1}`))
	rec := httptest.NewRecorder()
	serveRPC(d, deny).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("got status %d", rec.Code)
	}
	if loader.loads.Load() != 0 {
		t.Error("request reached the dispatcher")
	}
}
