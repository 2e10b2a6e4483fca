package jsonrpc

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Endpoint is a service operation exposed over RPC. Only values built with
// Method are ever resolvable; nothing else on a provider can be called.
type Endpoint struct {
	name         string
	level        Level
	providerType reflect.Type
	paramType    reflect.Type
	paramNames   []string // json names, in positional order
	paramFields  []int    // struct field indices, in positional order
	call         func(provider any, ctx context.Context, params reflect.Value) (any, error)
}

// Method declares an endpoint named name, callable at level, served by fn on
// a provider of type *S. P must be a struct; its exported fields, in
// declaration order, are the endpoint's parameters, named by their json tags.
// The endpoint's arity is the number of such fields.
//
// Method expressions fit naturally:
//
//	jsonrpc.Method("add", jsonrpc.LevelNone, (*Math).Add)
func Method[S, P, R any](name string, level Level, fn func(*S, context.Context, P) (R, error)) *Endpoint {
	pt := reflect.TypeFor[P]()
	if pt.Kind() != reflect.Struct {
		panic("jsonrpc: params of method " + name + " must be a struct, got " + pt.String())
	}
	names, fields := paramFields(pt)
	return &Endpoint{
		name:         name,
		level:        level,
		providerType: reflect.TypeFor[*S](),
		paramType:    pt,
		paramNames:   names,
		paramFields:  fields,
		call: func(provider any, ctx context.Context, params reflect.Value) (any, error) {
			svc, ok := provider.(*S)
			if !ok {
				return nil, fmt.Errorf("jsonrpc: provider %T cannot serve %s", provider, name)
			}
			return fn(svc, ctx, params.Interface().(P))
		},
	}
}

// Name returns the endpoint's leaf name.
func (e *Endpoint) Name() string { return e.name }

// Level returns the access level required to call the endpoint.
func (e *Endpoint) Level() Level { return e.level }

// Arity returns the exact number of parameters the endpoint takes.
func (e *Endpoint) Arity() int { return len(e.paramFields) }

// Params returns the declared parameter names in positional order.
func (e *Endpoint) Params() []string { return append([]string(nil), e.paramNames...) }

func paramFields(t reflect.Type) (names []string, fields []int) {
	names = make([]string, 0, t.NumField())
	fields = make([]int, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag := f.Tag.Get("json"); tag != "" {
			name = strings.Split(tag, ",")[0]
			if name == "-" {
				continue
			}
			if name == "" {
				name = f.Name
			}
		}
		names = append(names, name)
		fields = append(fields, i)
	}
	return names, fields
}

// Module is a loaded service namespace: a provider constructor plus the
// table of endpoints it exposes.
type Module struct {
	newProvider func(*AuthContext) (any, error)
	endpoints   map[string]*Endpoint
}

// NewModule builds a module whose providers are created by newProvider, once
// per request. Every endpoint must be served by *S.
func NewModule[S any](newProvider func(*AuthContext) (*S, error), endpoints ...*Endpoint) (*Module, error) {
	if newProvider == nil {
		return nil, errors.New("jsonrpc: nil provider constructor")
	}
	want := reflect.TypeFor[*S]()
	m := &Module{
		newProvider: func(a *AuthContext) (any, error) {
			return newProvider(a)
		},
		endpoints: make(map[string]*Endpoint, len(endpoints)),
	}
	for _, ep := range endpoints {
		if ep == nil {
			return nil, errors.New("jsonrpc: nil endpoint")
		}
		if ep.providerType != want {
			return nil, fmt.Errorf("jsonrpc: endpoint %s is served by %s, module provides %s", ep.name, ep.providerType, want)
		}
		if _, exists := m.endpoints[ep.name]; exists {
			return nil, fmt.Errorf("jsonrpc: endpoint name collision: %s", ep.name)
		}
		m.endpoints[ep.name] = ep
	}
	return m, nil
}

// Endpoints returns the sorted leaf names exposed by the module.
func (m *Module) Endpoints() []string {
	names := make([]string, 0, len(m.endpoints))
	for name := range m.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Endpoint returns the endpoint exposed under leaf name.
func (m *Module) Endpoint(name string) (*Endpoint, bool) {
	ep, ok := m.endpoints[name]
	return ep, ok
}

// Loader loads the module stored under a canonical path.
type Loader interface {
	Load(ctx context.Context, path string) (*Module, error)
}

// LoaderFunc adapts a function to a Loader.
type LoaderFunc func(ctx context.Context, path string) (*Module, error)

func (f LoaderFunc) Load(ctx context.Context, path string) (*Module, error) {
	return f(ctx, path)
}

// ErrModuleNotFound is returned by Catalog.Load for unknown paths.
var ErrModuleNotFound = errors.New("jsonrpc: module not found")

// Catalog is a Loader backed by module factories registered up front. A
// factory runs only when its path is first resolved.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]func(context.Context) (*Module, error)
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]func(context.Context) (*Module, error))}
}

// Register adds a module factory under path. It panics on duplicate paths.
func (c *Catalog) Register(path string, factory func(context.Context) (*Module, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.factories[path]; exists {
		panic("jsonrpc: module path collision: " + path)
	}
	c.factories[path] = factory
}

func (c *Catalog) Load(ctx context.Context, path string) (*Module, error) {
	c.mu.RLock()
	factory, ok := c.factories[path]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, path)
	}
	return factory(ctx)
}

// ServiceEndpoint is a resolved endpoint bound to the provider built for the
// current request.
type ServiceEndpoint struct {
	QualifiedName string
	Level         Level
	Arity         int

	endpoint *Endpoint
	provider any
}

// Params returns the declared parameter names in positional order.
func (se *ServiceEndpoint) Params() []string {
	return se.endpoint.Params()
}

// Registry resolves dotted method names to endpoints.
//
// Modules are loaded on first use and cached by canonical path for the life
// of the Registry; the cache is read-mostly afterwards. Concurrent first
// resolutions of one path share a single load. A failed load is not cached,
// so the next request retries it. Providers are never cached.
type Registry struct {
	loader  Loader
	aliases map[string]string

	mu      sync.RWMutex
	modules map[string]*Module
	group   singleflight.Group
}

// NewRegistry creates a Registry loading modules through loader. aliases
// maps a namespace to the canonical module path it stands for.
func NewRegistry(loader Loader, aliases map[string]string) *Registry {
	a := make(map[string]string, len(aliases))
	for k, v := range aliases {
		a[k] = v
	}
	return &Registry{
		loader:  loader,
		aliases: a,
		modules: make(map[string]*Module),
	}
}

// Resolve splits method into namespace and leaf, obtains the namespace's
// module, builds a fresh provider for auth, and returns the leaf endpoint
// bound to it.
func (r *Registry) Resolve(ctx context.Context, method string, auth *AuthContext) (*ServiceEndpoint, error) {
	parts := strings.Split(method, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, EndpointNotResolvable(method, errors.New("method name must have the form namespace.leaf"))
	}
	namespace, leaf := parts[0], parts[1]

	m, err := r.Module(ctx, r.canonical(namespace))
	if err != nil {
		return nil, EndpointNotResolvable(method, err)
	}
	ep, ok := m.endpoints[leaf]
	if !ok {
		return nil, EndpointNotResolvable(method, fmt.Errorf("no endpoint %q in namespace %q", leaf, namespace))
	}
	provider, err := m.newProvider(auth)
	if err != nil {
		return nil, EndpointNotResolvable(method, fmt.Errorf("construct provider: %w", err))
	}
	return &ServiceEndpoint{
		QualifiedName: method,
		Level:         ep.level,
		Arity:         ep.Arity(),
		endpoint:      ep,
		provider:      provider,
	}, nil
}

func (r *Registry) canonical(namespace string) string {
	if path, ok := r.aliases[namespace]; ok {
		return path
	}
	return namespace
}

// Module returns the module cached under path, loading it if needed.
// Callers never observe a partially constructed module.
func (r *Registry) Module(ctx context.Context, path string) (*Module, error) {
	r.mu.RLock()
	m, ok := r.modules[path]
	r.mu.RUnlock()
	if ok {
		return m, nil
	}
	if r.loader == nil {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, path)
	}

	v, err, _ := r.group.Do(path, func() (any, error) {
		r.mu.RLock()
		m, ok := r.modules[path]
		r.mu.RUnlock()
		if ok {
			return m, nil
		}
		// Shared by every waiter: detach from the first caller's cancellation.
		m, err := r.loader.Load(context.WithoutCancel(ctx), path)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, fmt.Errorf("jsonrpc: loader returned nil module for %s", path)
		}
		r.mu.Lock()
		r.modules[path] = m
		r.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Module), nil
}

// Loaded returns the sorted canonical paths of the modules loaded so far.
func (r *Registry) Loaded() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	paths := make([]string, 0, len(r.modules))
	for p := range r.modules {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
