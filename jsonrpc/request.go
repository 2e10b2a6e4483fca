package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DefaultVersion is the protocol version marker expected on requests and
// written on every response.
const DefaultVersion = "2.0"

type paramsKind int

const (
	paramsInvalid paramsKind = iota
	paramsPositional
	paramsNamed
)

// Params holds request parameters as either an ordered list (Positional) or
// a name→value mapping (Named). The zero value is neither and is rejected by
// the invoker.
type Params struct {
	kind       paramsKind
	positional []json.RawMessage
	named      map[string]json.RawMessage
}

// PositionalParams builds Params from ordered raw JSON values.
func PositionalParams(values ...json.RawMessage) Params {
	if values == nil {
		values = []json.RawMessage{}
	}
	return Params{kind: paramsPositional, positional: values}
}

// NamedParams builds Params from a name→raw JSON value mapping.
func NamedParams(values map[string]json.RawMessage) Params {
	if values == nil {
		values = map[string]json.RawMessage{}
	}
	return Params{kind: paramsNamed, named: values}
}

func (p Params) IsPositional() bool { return p.kind == paramsPositional }
func (p Params) IsNamed() bool      { return p.kind == paramsNamed }

// Len returns the number of supplied parameters, or -1 for an invalid shape.
func (p Params) Len() int {
	switch p.kind {
	case paramsPositional:
		return len(p.positional)
	case paramsNamed:
		return len(p.named)
	}
	return -1
}

func parseParams(raw json.RawMessage) Params {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Params{}
	}
	switch trimmed[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err == nil {
			return PositionalParams(list...)
		}
	case '{':
		var m map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &m); err == nil {
			return NamedParams(m)
		}
	}
	return Params{}
}

// Request is a deframed request.
type Request struct {
	Method string
	Params Params
	// ID is the raw JSON correlation value, echoed verbatim in the response.
	ID json.RawMessage
	// Token is the credential; empty means anonymous.
	Token string
	Debug bool

	// authErr is set when the auth member is present but not a string.
	authErr error
}

// AuthErr returns the error for an unusable auth member, or nil. The request
// is otherwise well formed, so the error is reported with the request id.
func (r *Request) AuthErr() error {
	if r.authErr == nil {
		return nil
	}
	return InvalidCredentialToken(r.authErr)
}

// Deframer validates raw frames and parses them into Requests.
type Deframer struct {
	// Version is the required "jsonrpc" marker. Empty means DefaultVersion.
	Version string
}

// Deframe parses frame. Required members are checked in order (jsonrpc,
// method, params, id) and the first absent one is reported. A non-string
// auth member does not fail deframing; see Request.AuthErr.
func (d Deframer) Deframe(frame []byte) (*Request, error) {
	var msg map[string]json.RawMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, MalformedPayload(err)
	}
	if msg == nil {
		return nil, MalformedPayload(fmt.Errorf("frame is not an object"))
	}

	version := d.Version
	if version == "" {
		version = DefaultVersion
	}
	raw, ok := msg["jsonrpc"]
	if !ok {
		return nil, MissingField("jsonrpc", "")
	}
	var got string
	if err := json.Unmarshal(raw, &got); err != nil || got != version {
		return nil, MissingField("jsonrpc", "unsupported RPC version "+string(raw))
	}

	req := &Request{}
	raw, ok = msg["method"]
	if !ok {
		return nil, MissingField("method", "")
	}
	if err := json.Unmarshal(raw, &req.Method); err != nil {
		return nil, MissingField("method", "method must be a string")
	}

	raw, ok = msg["params"]
	if !ok {
		return nil, MissingField("params", "")
	}
	req.Params = parseParams(raw)

	raw, ok = msg["id"]
	if !ok {
		return nil, MissingField("id", "")
	}
	req.ID = raw

	if raw, ok := msg["auth"]; ok {
		var token *string
		if err := json.Unmarshal(raw, &token); err != nil {
			req.authErr = fmt.Errorf("auth must be a string: %w", err)
		} else if token != nil {
			req.Token = *token
		}
	}
	if raw, ok := msg["debug"]; ok {
		var debug bool
		if err := json.Unmarshal(raw, &debug); err == nil {
			req.Debug = debug
		}
	}
	return req, nil
}
