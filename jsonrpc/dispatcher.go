package jsonrpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// DefaultDebugLevel is the access level a caller must hold for a debug
// request to be honored.
const DefaultDebugLevel Level = "Super"

// Observer receives one call per dispatched request. method is the resolved
// qualified name, or empty when resolution did not succeed. code is empty on
// success.
type Observer interface {
	Observe(method string, code Code, elapsed time.Duration)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithVersion sets the protocol version marker required on requests and
// written on responses.
func WithVersion(version string) Option {
	return func(d *Dispatcher) {
		if version != "" {
			d.version = version
		}
	}
}

// WithDebugLevel sets the access level that authorizes debug output. LevelNone
// grants debug output to every caller that asks for it; an empty level
// disables debug output entirely.
func WithDebugLevel(level Level) Option {
	return func(d *Dispatcher) {
		d.debugLevel = level
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithObserver registers an observer notified after every request.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

// Dispatcher runs the request lifecycle: deframe, build the auth context,
// resolve, authorize, invoke, frame. Any failure along the way ends the
// pipeline and is framed as an error response exactly once.
//
// A Dispatcher is safe for concurrent use.
type Dispatcher struct {
	registry   *Registry
	access     AccessChecker
	version    string
	debugLevel Level
	logger     zerolog.Logger
	observer   Observer
}

// NewDispatcher creates a Dispatcher resolving through registry and
// authorizing through access.
func NewDispatcher(registry *Registry, access AccessChecker, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:   registry,
		access:     access,
		version:    DefaultVersion,
		debugLevel: DefaultDebugLevel,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Version returns the protocol version marker in use.
func (d *Dispatcher) Version() string {
	return d.version
}

// Dispatch handles one raw request frame and returns the encoded response.
// It always returns a well-formed response. A panic raised anywhere while
// handling the request is reported as an untyped failure.
func (d *Dispatcher) Dispatch(ctx context.Context, frame []byte) (out []byte) {
	started := time.Now()
	var (
		req      *Request
		resolved string
		debug    bool
	)
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		var id json.RawMessage
		method := resolved
		if req != nil {
			id = req.ID
			if method == "" {
				method = req.Method
			}
		}
		out = d.fail(id, method, resolved, newPanicError(method, r), debug, started)
	}()

	req, err := Deframer{Version: d.version}.Deframe(frame)
	if err != nil {
		return d.fail(nil, "", "", err, false, started)
	}
	if err := req.AuthErr(); err != nil {
		return d.fail(req.ID, req.Method, "", err, false, started)
	}

	auth := NewAuthContext(req.Token)
	ctx = WithAuth(ctx, auth)
	debug = d.debugAuthorized(ctx, req, auth)

	se, result, err := d.process(ctx, req, auth)
	if se != nil {
		resolved = se.QualifiedName
	}
	if err != nil {
		return d.fail(req.ID, req.Method, resolved, err, debug, started)
	}

	out, err = FrameSuccess(d.version, req.ID, result)
	if err != nil {
		return d.fail(req.ID, req.Method, resolved, err, debug, started)
	}
	d.logger.Debug().
		Str("method", req.Method).
		RawJSON("rpc_id", normalizeID(req.ID)).
		Dur("latency", time.Since(started)).
		Msg("rpc response")
	d.observe(resolved, "", started)
	return out
}

// process runs the Resolved → Authorized → Invoked steps.
func (d *Dispatcher) process(ctx context.Context, req *Request, auth *AuthContext) (*ServiceEndpoint, any, error) {
	se, err := d.registry.Resolve(ctx, req.Method, auth)
	if err != nil {
		return nil, nil, err
	}
	if err := authorize(ctx, d.access, auth, se.Level, se.QualifiedName); err != nil {
		return se, nil, err
	}
	result, err := Invoke(ctx, se, req.Params)
	return se, result, err
}

// debugAuthorized reports whether debug output was requested and the caller
// holds the debug level. A failed check only withholds debug output.
func (d *Dispatcher) debugAuthorized(ctx context.Context, req *Request, auth *AuthContext) bool {
	if !req.Debug || d.debugLevel == "" {
		return false
	}
	return authorize(ctx, d.access, auth, d.debugLevel, "") == nil
}

func (d *Dispatcher) fail(id json.RawMessage, method, resolved string, err error, debug bool, started time.Time) []byte {
	code := CodeFail
	if rpcErr, ok := AsError(err); ok {
		code = rpcErr.Code()
		d.logger.Debug().
			Err(err).
			Str("method", method).
			Str("rpc_code", string(code)).
			Dur("latency", time.Since(started)).
			Msg("rpc failed")
	} else {
		d.logger.Error().
			Err(err).
			Str("method", method).
			Dur("latency", time.Since(started)).
			Msg("rpc failed")
	}
	d.observe(resolved, code, started)
	return FrameError(d.version, id, err, debug)
}

func (d *Dispatcher) observe(method string, code Code, started time.Time) {
	if d.observer != nil {
		d.observer.Observe(method, code, time.Since(started))
	}
}
