package jsonrpc

import (
	"errors"
	"fmt"
	"runtime"
)

// Code is the symbolic error code carried in the "code" member of an error
// response. Codes are stable across versions.
type Code string

const (
	CodeNotLoggedIn            Code = "NotLoggedIn"
	CodeBadAuth                Code = "BadAuth"
	CodeBadACL                 Code = "BadACL"
	CodeSystemUnavailable      Code = "SystemUnavailable"
	CodeBadAuthToken           Code = "BadAuthToken"
	CodeRequestNotTranslatable Code = "RequestNotTranslatable"
	CodeInvalidArguments       Code = "InvalidArguments"
	CodeFail                   Code = "FAIL"
)

// genericMessage is shown to callers for failures that carry no safe message.
const genericMessage = "Error Processing Request"

// Kind identifies one variant of the closed error taxonomy.
type Kind int

const (
	KindUnknown Kind = iota
	KindMalformedPayload
	KindMissingField
	KindNotAuthenticated
	KindInvalidCredentials
	KindNotLoggedIn
	KindInsufficientAccess
	KindInvalidCredentialToken
	KindServiceUnavailable
	KindEndpointNotResolvable
	KindInvalidArguments
	KindResponseEncodingFailed
)

func (k Kind) String() string {
	switch k {
	case KindMalformedPayload:
		return "MalformedPayload"
	case KindMissingField:
		return "MissingField"
	case KindNotAuthenticated:
		return "NotAuthenticated"
	case KindInvalidCredentials:
		return "InvalidCredentials"
	case KindNotLoggedIn:
		return "NotLoggedIn"
	case KindInsufficientAccess:
		return "InsufficientAccess"
	case KindInvalidCredentialToken:
		return "InvalidCredentialToken"
	case KindServiceUnavailable:
		return "ServiceUnavailable"
	case KindEndpointNotResolvable:
		return "EndpointNotResolvable"
	case KindInvalidArguments:
		return "InvalidArguments"
	case KindResponseEncodingFailed:
		return "ResponseEncodingFailed"
	default:
		return "Unknown"
	}
}

// Code maps a kind to its wire code. This is the only place the mapping lives.
func (k Kind) Code() Code {
	switch k {
	case KindNotAuthenticated, KindInvalidCredentials:
		return CodeBadAuth
	case KindNotLoggedIn:
		return CodeNotLoggedIn
	case KindInsufficientAccess:
		return CodeBadACL
	case KindInvalidCredentialToken:
		return CodeBadAuthToken
	case KindServiceUnavailable:
		return CodeSystemUnavailable
	case KindEndpointNotResolvable:
		return CodeRequestNotTranslatable
	case KindInvalidArguments:
		return CodeInvalidArguments
	default:
		// MalformedPayload, MissingField, ResponseEncodingFailed, Unknown.
		return CodeFail
	}
}

// Error is a typed protocol error.
//
// Message is safe to show to any caller. Internal, Cause and the captured
// stack are only rendered into a response when debug output is authorized.
// Service endpoints may return an *Error to choose the wire code themselves;
// any other error returned by an endpoint is reported as FAIL.
type Error struct {
	Kind     Kind
	Message  string
	Internal string
	// Method is the qualified method name the error relates to, if any.
	Method string
	// Field is the missing request member for KindMissingField.
	Field string
	Data  any
	Cause error

	stack []uintptr
}

func newError(kind Kind, message string) *Error {
	e := &Error{Kind: kind, Message: message}
	pcs := make([]uintptr, 32)
	// Skip runtime.Callers, newError and the exported constructor.
	n := runtime.Callers(3, pcs)
	e.stack = pcs[:n]
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return "jsonrpc: error: <nil>"
	}
	msg := "jsonrpc: " + e.Kind.String()
	if e.Internal != "" {
		msg += ": " + e.Internal
	} else if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Code returns the wire code for the error's kind.
func (e *Error) Code() Code {
	return e.Kind.Code()
}

// WithData attaches a structured payload rendered as the "data" member.
func (e *Error) WithData(data any) *Error {
	e.Data = data
	return e
}

// StackTrace returns the call stack captured when the error was constructed.
func (e *Error) StackTrace() []string {
	return formatStack(e.stack)
}

func formatStack(pcs []uintptr) []string {
	if len(pcs) == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs)
	out := make([]string, 0, len(pcs))
	for {
		f, more := frames.Next()
		out = append(out, fmt.Sprintf("%s (%s:%d)", f.Function, f.File, f.Line))
		if !more {
			break
		}
	}
	return out
}

// AsError reports whether err is, or wraps, an *Error.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

// MalformedPayload reports a request frame that could not be parsed.
func MalformedPayload(cause error) *Error {
	e := newError(KindMalformedPayload, "Failed to deserialize JSON")
	e.Cause = cause
	return e
}

// MissingField reports the first required request member that is absent or unusable.
func MissingField(field, internal string) *Error {
	e := newError(KindMissingField, fmt.Sprintf("Invalid JSON-RPC message: missing %s", field))
	e.Field = field
	e.Internal = internal
	return e
}

func NotAuthenticated(method string) *Error {
	e := newError(KindNotAuthenticated, "You must be logged in to perform this action.")
	e.Method = method
	return e
}

func InvalidCredentials(internal string) *Error {
	e := newError(KindInvalidCredentials, "Invalid username and/or password")
	e.Internal = internal
	return e
}

func NotLoggedIn(method string) *Error {
	e := newError(KindNotLoggedIn, "You must be logged in to perform this action.")
	e.Method = method
	return e
}

func InsufficientAccess(method string) *Error {
	e := newError(KindInsufficientAccess, fmt.Sprintf("Insufficient access to call method %q", method))
	e.Method = method
	return e
}

func InvalidCredentialToken(cause error) *Error {
	e := newError(KindInvalidCredentialToken, "Invalid Authorization, re-log in")
	e.Cause = cause
	return e
}

func ServiceUnavailable(cause error) *Error {
	e := newError(KindServiceUnavailable, "System unavailable, please try again later")
	e.Cause = cause
	return e
}

func EndpointNotResolvable(method string, cause error) *Error {
	e := newError(KindEndpointNotResolvable, fmt.Sprintf("Error translating service method %q", method))
	e.Method = method
	e.Cause = cause
	return e
}

func InvalidArguments(method, internal string) *Error {
	e := newError(KindInvalidArguments, fmt.Sprintf("Invalid arguments given to service method %q", method))
	e.Method = method
	e.Internal = internal
	return e
}

func ResponseEncodingFailed(cause error) *Error {
	e := newError(KindResponseEncodingFailed, genericMessage)
	e.Cause = cause
	return e
}
