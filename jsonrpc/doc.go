// Package jsonrpc provides a request dispatcher for a JSON-RPC style
// protocol with access control, integrated with the endpoint processor chain.
//
// # Basic Usage
//
// Register module factories in a Catalog, resolve through a Registry, and
// serve a Dispatcher over HTTP:
//
//	catalog := jsonrpc.NewCatalog()
//	catalog.Register("math", mathModule)
//	registry := jsonrpc.NewRegistry(catalog, nil)
//	d := jsonrpc.NewDispatcher(registry, accessChecker)
//	http.Handle("/rpc", endpoint.Handler(d.Endpoint))
//
// A module is a provider constructor plus an explicit list of endpoints:
//
//	type Math struct{ auth *jsonrpc.AuthContext }
//
//	type AddParams struct {
//	    A int `json:"a"`
//	    B int `json:"b"`
//	}
//
//	func (m *Math) Add(ctx context.Context, p AddParams) (int, error) {
//	    return p.A + p.B, nil
//	}
//
//	func mathModule(context.Context) (*jsonrpc.Module, error) {
//	    return jsonrpc.NewModule(func(a *jsonrpc.AuthContext) (*Math, error) {
//	        return &Math{auth: a}, nil
//	    }, jsonrpc.Method("add", jsonrpc.LevelNone, (*Math).Add))
//	}
//
// Only endpoints declared with Method are callable. A fresh provider is built
// for every request; modules are loaded once per path and cached.
//
// # Requests
//
// A request frame is a JSON object:
//
//	{"jsonrpc":"2.0","method":"math.add","params":[1,2],"id":7,
//	 "auth":"<token>","debug":false}
//
// jsonrpc, method, params and id are required. params may be an array
// (positional, exactly arity values) or an object (named, exactly one member
// per declared parameter). auth and debug are optional.
//
// # Responses
//
// Success:
//
//	{"jsonrpc":"2.0","id":7,"result":3}
//
// Failure:
//
//	{"jsonrpc":"2.0","id":7,"error":{"message":"...","code":"BadACL","data":null}}
//
// Codes are symbolic strings: NotLoggedIn, BadAuth, BadACL,
// SystemUnavailable, BadAuthToken, RequestNotTranslatable, InvalidArguments
// and FAIL. Endpoints return an *Error to pick a code; any other error is
// reported as FAIL with a generic message.
//
// When a request asks for debug output and the caller holds the debug level,
// the error object also carries _message, _kind, _stack and _method.
//
// # Access Control
//
// Every endpoint declares a Level. LevelNone is public. Any other level is
// checked by the AccessChecker passed to NewDispatcher, which sees only the
// token and the level.
//
// # Processor Integration
//
// Processors can be passed to endpoint.Handler for cross-cutting concerns:
//
//	http.Handle("/rpc", endpoint.Handler(d.Endpoint, rateLimiter, requestLogger))
//
// Processor errors return HTTP error responses, not RPC error envelopes.
package jsonrpc
