package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
)

type successResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
}

type errorResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   any             `json:"error"`
}

// errorObject is the "error" member.
type errorObject struct {
	Message string `json:"message"`
	Code    Code   `json:"code"`
	Data    any    `json:"data"`
}

// debugErrorObject is the "error" member when debug output is authorized.
// Every debug member is always present; _method is null when the error is
// not tied to a method.
type debugErrorObject struct {
	errorObject
	InternalMessage string   `json:"_message"`
	Kind            string   `json:"_kind"`
	Stack           []string `json:"_stack"`
	Method          *string  `json:"_method"`
}

// fallbackError is written when even the error response cannot be encoded.
const fallbackError = `{"jsonrpc":%q,"id":null,"error":{"message":"Error Processing Request","code":"FAIL","data":null}}`

// stackTracer is implemented by errors that carry their own stack.
type stackTracer interface {
	StackTrace() []string
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

// FrameSuccess encodes a result response. It fails with
// ResponseEncodingFailed if result cannot be encoded as JSON.
func FrameSuccess(version string, id json.RawMessage, result any) ([]byte, error) {
	b, err := json.Marshal(successResponse{
		JSONRPC: version,
		ID:      normalizeID(id),
		Result:  result,
	})
	if err != nil {
		return nil, ResponseEncodingFailed(err)
	}
	return b, nil
}

// FrameError encodes an error response for err. Typed errors render their
// own message, code and data; any other error is reported as FAIL with a
// generic message. With debug set, the internal message, error kind, stack
// and method name are included as well.
func FrameError(version string, id json.RawMessage, err error, debug bool) []byte {
	obj := errorObject{Message: genericMessage, Code: CodeFail}
	rpcErr, typed := AsError(err)
	if typed {
		obj.Message = rpcErr.Message
		obj.Code = rpcErr.Code()
		obj.Data = rpcErr.Data
	}

	resp := errorResponse{JSONRPC: version, ID: normalizeID(id), Error: obj}
	var dbg *debugErrorObject
	if debug {
		dbg = debugObject(obj, err, rpcErr)
		resp.Error = dbg
	}
	b, mErr := json.Marshal(resp)
	if mErr == nil {
		return b
	}
	// The data payload is the only caller-supplied value; retry without it.
	obj.Data = nil
	resp.Error = obj
	if dbg != nil {
		dbg.Data = nil
		resp.Error = dbg
	}
	if b, mErr = json.Marshal(resp); mErr == nil {
		return b
	}
	return []byte(fmt.Sprintf(fallbackError, version))
}

func debugObject(obj errorObject, err error, rpcErr *Error) *debugErrorObject {
	dbg := &debugErrorObject{errorObject: obj, Stack: []string{}}
	if err == nil {
		return dbg
	}
	dbg.InternalMessage = err.Error()

	method := ""
	if rpcErr != nil {
		dbg.Kind = rpcErr.Kind.String()
		method = rpcErr.Method
	} else {
		dbg.Kind = fmt.Sprintf("%T", err)
		var pe *PanicError
		if errors.As(err, &pe) {
			method = pe.Method
		}
	}
	if method != "" {
		dbg.Method = &method
	}

	var stack []string
	if st, ok := err.(stackTracer); ok {
		stack = st.StackTrace()
	} else if rpcErr != nil {
		stack = rpcErr.StackTrace()
	} else {
		pcs := make([]uintptr, 32)
		stack = formatStack(pcs[:runtime.Callers(3, pcs)])
	}
	if stack != nil {
		dbg.Stack = stack
	}
	return dbg
}
