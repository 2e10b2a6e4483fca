package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mnehpets/rpcdispatch/endpoint"
)

func TestRequestLogger(t *testing.T) {
	fail := endpoint.ProcessorFunc(func(http.ResponseWriter, *http.Request, func(http.ResponseWriter, *http.Request) error) error {
		return endpoint.Error(http.StatusTooManyRequests, "slow down", nil)
	})
	broken := endpoint.ProcessorFunc(func(http.ResponseWriter, *http.Request, func(http.ResponseWriter, *http.Request) error) error {
		return errors.New("boom")
	})

	tests := []struct {
		name       string
		extra      []endpoint.Processor
		wantLevel  string
		wantStatus float64
	}{
		{"ok", nil, "info", http.StatusOK},
		{"endpoint error", []endpoint.Processor{fail}, "warn", http.StatusTooManyRequests},
		{"plain error", []endpoint.Processor{broken}, "error", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := &RequestLogger{Logger: zerolog.New(&buf)}
			h := endpoint.Handler(okEndpoint, append([]endpoint.Processor{logger}, tt.extra...)...)

			req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
			req.RemoteAddr = "192.0.2.7:5555"
			h.ServeHTTP(httptest.NewRecorder(), req)

			var line map[string]any
			if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
				t.Fatalf("log line %q: %v", buf.String(), err)
			}
			if line["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %s", line["level"], tt.wantLevel)
			}
			if line["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %v", line["status"], tt.wantStatus)
			}
			if line["message"] != "http_request" || line["method"] != "POST" || line["path"] != "/rpc" || line["client_ip"] != "192.0.2.7" {
				t.Errorf("got %v", line)
			}
		})
	}
}

func TestRequestLoggerCountsBytes(t *testing.T) {
	var buf bytes.Buffer
	h := endpoint.Handler(okEndpoint, &RequestLogger{Logger: zerolog.New(&buf)})
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/rpc", nil))

	var line struct {
		Bytes int `json:"bytes"`
	}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatal(err)
	}
	if line.Bytes != len("\"ok\"\n") {
		t.Errorf("bytes = %d", line.Bytes)
	}
}
