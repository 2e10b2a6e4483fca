package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"
)

// PanicError reports a recovered panic: from an endpoint, or from anything
// else the dispatcher calls while handling a request.
type PanicError struct {
	Method string
	Value  any
	stack  []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("jsonrpc: panic in %s: %v", e.Method, e.Value)
}

func newPanicError(method string, v any) *PanicError {
	return &PanicError{Method: method, Value: v, stack: debug.Stack()}
}

// StackTrace returns the goroutine stack recorded at the panic.
func (e *PanicError) StackTrace() []string {
	return strings.Split(strings.TrimSpace(string(e.stack)), "\n")
}

// Invoke binds params to se's declared parameters and calls it.
//
// Positional params must supply exactly Arity values, in order. Named params
// must supply exactly Arity members, one for each declared name. Anything
// else is InvalidArguments. Errors returned by the endpoint are passed
// through unchanged.
func Invoke(ctx context.Context, se *ServiceEndpoint, params Params) (result any, err error) {
	args, err := bind(se, params)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = newPanicError(se.QualifiedName, r)
		}
	}()
	return se.endpoint.call(se.provider, ctx, args)
}

func bind(se *ServiceEndpoint, params Params) (reflect.Value, error) {
	ep := se.endpoint
	arg := reflect.New(ep.paramType).Elem()

	switch params.kind {
	case paramsPositional:
		if len(params.positional) != len(ep.paramFields) {
			return reflect.Value{}, InvalidArguments(se.QualifiedName,
				fmt.Sprintf("expected %d params, got %d", len(ep.paramFields), len(params.positional)))
		}
		for i, raw := range params.positional {
			field := arg.Field(ep.paramFields[i])
			if err := json.Unmarshal(raw, field.Addr().Interface()); err != nil {
				return reflect.Value{}, InvalidArguments(se.QualifiedName,
					fmt.Sprintf("param %d (%s): %v", i, ep.paramNames[i], err))
			}
		}
	case paramsNamed:
		if len(params.named) != len(ep.paramFields) {
			return reflect.Value{}, InvalidArguments(se.QualifiedName,
				fmt.Sprintf("expected %d params, got %d", len(ep.paramFields), len(params.named)))
		}
		for i, name := range ep.paramNames {
			raw, ok := params.named[name]
			if !ok {
				return reflect.Value{}, InvalidArguments(se.QualifiedName, "missing param: "+name)
			}
			field := arg.Field(ep.paramFields[i])
			if err := json.Unmarshal(raw, field.Addr().Interface()); err != nil {
				return reflect.Value{}, InvalidArguments(se.QualifiedName,
					fmt.Sprintf("param %s: %v", name, err))
			}
		}
	default:
		return reflect.Value{}, InvalidArguments(se.QualifiedName, "params must be an array or an object")
	}
	return arg, nil
}
