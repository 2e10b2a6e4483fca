package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/mnehpets/rpcdispatch/endpoint"
)

// RequestLogger is a Processor that logs one line per HTTP request once the
// rest of the chain has run.
type RequestLogger struct {
	Logger zerolog.Logger
}

// Process implements endpoint.Processor.
func (l *RequestLogger) Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w}
	err := next(sw, r)

	status := sw.status
	if err != nil && status == 0 {
		// The handler writes the error response after the chain returns.
		status = http.StatusInternalServerError
		if code := errorStatus(err); code != 0 {
			status = code
		}
	}
	if status == 0 {
		status = http.StatusOK
	}

	event := l.Logger.Info()
	if status >= 500 {
		event = l.Logger.Error()
	} else if status >= 400 {
		event = l.Logger.Warn()
	}
	event.
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Dur("duration", time.Since(start)).
		Str("client_ip", clientKey(r)).
		Int("bytes", sw.bytes).
		Msg("http_request")
	return err
}

func errorStatus(err error) int {
	var ee *endpoint.EndpointError
	if errors.As(err, &ee) && ee.Status >= 100 {
		return ee.Status
	}
	return 0
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
