package jsonrpc

import (
	"net/http"
	"strings"

	"github.com/mnehpets/rpcdispatch/endpoint"
)

// rpcParams captures the raw request frame. Parsing is deferred to the
// Deframer since malformed frames must still produce a response envelope.
type rpcParams struct {
	Body        []byte `body:"" maxLength:"1048576"`
	ContentType string `header:"Content-Type"`
}

// Endpoint is the endpoint function serving the dispatcher over HTTP.
// Pass it to endpoint.Handler() to create an http.Handler:
//
//	http.Handle("/rpc", endpoint.Handler(d.Endpoint))
//
// Transport errors (wrong method, content type, oversized body) are plain
// HTTP errors; everything else is a 200 response carrying an envelope.
func (d *Dispatcher) Endpoint(w http.ResponseWriter, r *http.Request, params rpcParams) (endpoint.Renderer, error) {
	if r.Method != http.MethodPost {
		return nil, endpoint.Error(http.StatusMethodNotAllowed, "JSON-RPC requires POST method", nil)
	}
	if params.ContentType != "" && !strings.HasPrefix(params.ContentType, "application/json") {
		return nil, endpoint.Error(http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
	}
	return &endpoint.JSONRenderer{Raw: d.Dispatch(r.Context(), params.Body)}, nil
}
