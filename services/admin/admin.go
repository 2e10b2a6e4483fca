// Package admin exposes read-only introspection of the dispatcher's registry
// to administrators.
package admin

import (
	"context"
	"errors"

	"github.com/mnehpets/rpcdispatch/jsonrpc"
)

// Path is the canonical module path.
const Path = "admin"

// Level is required for every admin endpoint.
const Level jsonrpc.Level = "Admin"

type Service struct {
	registry *jsonrpc.Registry
}

// Module returns a factory building the admin module over registry.
func Module(registry *jsonrpc.Registry) func(context.Context) (*jsonrpc.Module, error) {
	return func(context.Context) (*jsonrpc.Module, error) {
		if registry == nil {
			return nil, errors.New("admin: nil registry")
		}
		return jsonrpc.NewModule(func(*jsonrpc.AuthContext) (*Service, error) {
			return &Service{registry: registry}, nil
		},
			jsonrpc.Method("loaded", Level, (*Service).Loaded),
			jsonrpc.Method("describe", Level, (*Service).Describe),
		)
	}
}

// Loaded lists the canonical paths of the modules loaded so far.
func (s *Service) Loaded(_ context.Context, _ struct{}) ([]string, error) {
	return s.registry.Loaded(), nil
}

type DescribeParams struct {
	Path string `json:"path"`
}

type EndpointInfo struct {
	Name   string   `json:"name"`
	Level  string   `json:"level"`
	Arity  int      `json:"arity"`
	Params []string `json:"params"`
}

// Describe lists the endpoints of the module at path, loading it if needed.
func (s *Service) Describe(ctx context.Context, p DescribeParams) ([]EndpointInfo, error) {
	m, err := s.registry.Module(ctx, p.Path)
	if err != nil {
		return nil, jsonrpc.EndpointNotResolvable(p.Path, err)
	}
	names := m.Endpoints()
	out := make([]EndpointInfo, 0, len(names))
	for _, name := range names {
		ep, _ := m.Endpoint(name)
		out = append(out, EndpointInfo{
			Name:   name,
			Level:  string(ep.Level()),
			Arity:  ep.Arity(),
			Params: ep.Params(),
		})
	}
	return out, nil
}
