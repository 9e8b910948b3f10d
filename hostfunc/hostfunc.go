package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrUnknownFunction = errors.New("unknown function")
	ErrArity           = errors.New("wrong number of arguments")
	ErrBadArgument     = errors.New("bad argument")
)

type Func func(ctx context.Context, args map[string]any) (any, error)

// Spec describes a registered function. Params gives the order in which
// positional arguments from a script are mapped onto args keys.
type Spec struct {
	Name   string
	Params []string
	Fn     Func
}

type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Spec
	order []string
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Spec)}
}

// Register adds fn under name. Re-registering a name replaces the function
// but keeps its original position in List.
func (r *Registry) Register(name string, fn Func, params ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.funcs[name]; !ok {
		r.order = append(r.order, name)
	}
	r.funcs[name] = Spec{Name: name, Params: append([]string(nil), params...), Fn: fn}
}

func (r *Registry) Get(name string) (Func, bool) {
	r.mu.RLock()
	spec, ok := r.funcs[name]
	r.mu.RUnlock()
	return spec.Fn, ok
}

func (r *Registry) Spec(name string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.funcs[name]
	return spec, ok
}

// List returns the registered names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Specs returns every registered function in registration order.
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.funcs[name])
	}
	return specs
}

// Call invokes name with keyword arguments.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	fn, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	return fn(ctx, args)
}

// CallPositional maps positional arguments onto the function's parameter
// names and invokes it.
func (r *Registry) CallPositional(ctx context.Context, name string, args []any) (any, error) {
	spec, ok := r.Spec(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	if len(args) != len(spec.Params) {
		return nil, fmt.Errorf("%w: %s takes %d, got %d", ErrArity, name, len(spec.Params), len(args))
	}
	named := make(map[string]any, len(args))
	for i, p := range spec.Params {
		named[p] = args[i]
	}
	return spec.Fn(ctx, named)
}

// String returns args[key] as a string.
func String(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrBadArgument, key)
	}
	return v, nil
}

// Bool returns args[key] as a bool. Numbers are accepted the way scripting
// languages treat them: zero is false.
func Bool(args map[string]any, key string) (bool, error) {
	switch v := args[key].(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case int:
		return v != 0, nil
	default:
		return false, fmt.Errorf("%w: %s must be a bool", ErrBadArgument, key)
	}
}
