// Package hostfunc provides the registry of host capabilities exposed to an
// embedded script runtime.
//
// A capability is a Go function with keyword arguments. Each registration
// carries the names of its positional parameters, so a runtime backend can
// present the registry to a script as an object with ordinary methods:
//
//	registry := hostfunc.NewRegistry()
//	registry.Register("setStatusbarText", func(ctx context.Context, args map[string]any) (any, error) {
//	    text, err := hostfunc.String(args, "text")
//	    ...
//	}, "text")
//
// From a script the call above is bridge.setStatusbarText("Ready").
//
// # Backends
//
// The javascript backend turns every [Spec] into a function property on a
// goja object and calls [Registry.CallPositional]. The python backend writes
// a proxy class whose methods send a call message over stderr, and the host
// answers through [Registry.Call].
//
// Only the capabilities that were registered are visible. The runtime never
// sees the Go value behind the registry.
package hostfunc
