// Package endpoint provides typed HTTP handlers built from three parts:
//
//  1. Processors run first, in order, and may short-circuit the request by
//     returning an error (rate limiting, CORS preflight, logging).
//  2. The EndpointFunc receives params decoded from the request by Unmarshal
//     and returns a Renderer. It never writes the response itself.
//  3. The Renderer writes status, headers and body.
//
// Errors from any stage become plain-text HTTP errors; an *EndpointError
// chooses the status and message.
//
// The JSON-RPC dispatcher is served this way, see jsonrpc.Dispatcher.Endpoint:
//
//	mux.Handle("/rpc", endpoint.Handler(d.Endpoint, &middleware.APIHeaders{}))
package endpoint

import (
	"errors"
	"io"
	"net/http"
)

// EndpointError is an error that carries the HTTP status to respond with.
// Message is sent to the client; Cause is not.
type EndpointError struct {
	Status  int
	Message string
	Cause   error
}

func (e *EndpointError) Error() string {
	if e == nil {
		return "endpoint: error: <nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
		if msg == "" {
			msg = "unknown error"
		}
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *EndpointError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Error creates an EndpointError. If err already is or wraps an
// EndpointError, err is returned unchanged.
func Error(status int, message string, err error) error {
	return newEndpointError(status, message, err)
}

func newEndpointError(status int, message string, err error) error {
	var ee *EndpointError
	if errors.As(err, &ee) {
		return err
	}
	return &EndpointError{Status: status, Message: message, Cause: err}
}

// Renderer writes a response. Render must call WriteHeader. A Renderer that
// also implements io.Closer is closed once Render returns.
type Renderer interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// RendererFunc adapts a function to a Renderer.
type RendererFunc func(w http.ResponseWriter, r *http.Request) error

func (f RendererFunc) Render(w http.ResponseWriter, r *http.Request) error {
	return f(w, r)
}

// Processor runs before the endpoint. It calls next to continue, or returns
// without calling it to stop the request. Processors may set response
// headers but must not write the status or body; a processor that ends the
// request does so by returning an error.
type Processor interface {
	Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error
}

// ProcessorFunc adapts a function to a Processor.
type ProcessorFunc func(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error

func (f ProcessorFunc) Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error {
	return f(w, r, next)
}

// EndpointFunc handles a request whose params have been decoded into P.
// P must be a struct, or a pointer to a struct, tagged for Unmarshal.
type EndpointFunc[P any] func(w http.ResponseWriter, r *http.Request, params P) (Renderer, error)

// EndpointHandler is an http.Handler running Processors, then Endpoint,
// then the returned Renderer.
type EndpointHandler[P any] struct {
	Endpoint   EndpointFunc[P]
	Processors []Processor
}

// Handler constructs an EndpointHandler, inferring P from fn.
func Handler[P any](fn EndpointFunc[P], processors ...Processor) *EndpointHandler[P] {
	return &EndpointHandler[P]{Endpoint: fn, Processors: processors}
}

// HandleFunc is Handler as an http.HandlerFunc.
func HandleFunc[P any](fn EndpointFunc[P], processors ...Processor) http.HandlerFunc {
	return Handler(fn, processors...).ServeHTTP
}

// ServeHTTP implements http.Handler.
func (h *EndpointHandler[P]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Endpoint == nil {
		http.Error(w, "endpoint: nil EndpointFunc", http.StatusInternalServerError)
		return
	}

	// Build the chain from the inside out: the endpoint, wrapped by the last
	// processor, wrapped by the one before it, and so on.
	next := h.serve
	for i := len(h.Processors) - 1; i >= 0; i-- {
		p := h.Processors[i]
		if p == nil {
			next = func(http.ResponseWriter, *http.Request) error {
				return errors.New("endpoint: nil processor")
			}
			continue
		}
		inner := next
		next = func(w http.ResponseWriter, r *http.Request) error {
			return p.Process(w, r, inner)
		}
	}

	if err := next(w, r); err != nil {
		writeError(w, err)
	}
}

func (h *EndpointHandler[P]) serve(w http.ResponseWriter, r *http.Request) error {
	var params P
	if err := Unmarshal(r, &params); err != nil {
		return err
	}
	renderer, err := h.Endpoint(w, r, params)
	if err != nil {
		return err
	}
	if renderer == nil {
		return errors.New("endpoint: nil renderer")
	}
	if c, ok := renderer.(io.Closer); ok {
		defer c.Close()
	}
	return renderer.Render(w, r)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := err.Error()

	var ee *EndpointError
	if errors.As(err, &ee) && ee != nil {
		if ee.Status >= 100 {
			status = ee.Status
		}
		message = ee.Message
		if message == "" {
			message = http.StatusText(status)
		}
	}

	switch status {
	case http.StatusNoContent, http.StatusNotModified:
		w.WriteHeader(status)
	default:
		http.Error(w, message, status)
	}
}
