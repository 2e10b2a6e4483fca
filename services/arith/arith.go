// Package arith is a public arithmetic service, mostly useful for exercising
// positional and named parameter binding.
package arith

import (
	"context"

	"github.com/mnehpets/rpcdispatch/jsonrpc"
)

// Path is the canonical module path.
const Path = "arith"

// Service is the per-request provider.
type Service struct {
	auth *jsonrpc.AuthContext
}

// New constructs a provider for one request.
func New(auth *jsonrpc.AuthContext) (*Service, error) {
	return &Service{auth: auth}, nil
}

// Module builds the arith module. It is suitable for jsonrpc.Catalog.Register.
func Module(context.Context) (*jsonrpc.Module, error) {
	return jsonrpc.NewModule(New,
		jsonrpc.Method("add", jsonrpc.LevelNone, (*Service).Add),
		jsonrpc.Method("sub", jsonrpc.LevelNone, (*Service).Sub),
		jsonrpc.Method("divide", jsonrpc.LevelNone, (*Service).Divide),
		jsonrpc.Method("sum", jsonrpc.LevelNone, (*Service).Sum),
	)
}

type PairParams struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

func (s *Service) Add(_ context.Context, p PairParams) (float64, error) {
	return p.A + p.B, nil
}

func (s *Service) Sub(_ context.Context, p PairParams) (float64, error) {
	return p.A - p.B, nil
}

type DivideParams struct {
	Dividend float64 `json:"dividend"`
	Divisor  float64 `json:"divisor"`
}

func (s *Service) Divide(_ context.Context, p DivideParams) (float64, error) {
	if p.Divisor == 0 {
		return 0, jsonrpc.InvalidArguments(Path+".divide", "division by zero")
	}
	return p.Dividend / p.Divisor, nil
}

type SumParams struct {
	Values []float64 `json:"values"`
}

func (s *Service) Sum(_ context.Context, p SumParams) (float64, error) {
	var total float64
	for _, v := range p.Values {
		total += v
	}
	return total, nil
}

// Anonymous reports whether the request was made without a credential. It
// has the shape of an endpoint but is not declared, so it is not callable
// over RPC.
func (s *Service) Anonymous(_ context.Context, _ struct{}) (bool, error) {
	return s.auth.Anonymous(), nil
}
