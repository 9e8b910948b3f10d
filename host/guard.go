package host

import (
	"context"

	"github.com/caffeineduck/mnemobridge/hostfunc"
)

// Guard returns a copy of h whose interpreter and objects fail with
// ErrWrongThread whenever onThread reports false.
func (h *Handles) Guard(onThread func() bool) *Handles {
	if h == nil {
		return nil
	}
	return &Handles{
		Interpreter:      &guardedInterpreter{in: h.Interpreter, on: onThread},
		App:              guardObject(h.App, onThread),
		ReviewController: guardObject(h.ReviewController, onThread),
		Bridge:           guardObject(h.Bridge, onThread),
		Service:          h.Service,
	}
}

func guardObject(o Object, on func() bool) Object {
	if o == nil {
		return nil
	}
	if g, ok := o.(*guardedObject); ok {
		o = g.obj
	}
	return &guardedObject{obj: o, on: on}
}

// unwrapArgs hands the backend its own objects back.
func unwrapArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		if g, ok := a.(*guardedObject); ok {
			a = g.obj
		}
		out[i] = a
	}
	return out
}

type guardedObject struct {
	obj Object
	on  func() bool
}

func (g *guardedObject) Call(ctx context.Context, method string, args ...any) (Object, error) {
	if !g.on() {
		return nil, ErrWrongThread
	}
	res, err := g.obj.Call(ctx, method, unwrapArgs(args)...)
	return guardObject(res, g.on), err
}

type guardedInterpreter struct {
	in Interpreter
	on func() bool
}

func (g *guardedInterpreter) Name() string {
	return g.in.Name()
}

func (g *guardedInterpreter) Exec(ctx context.Context, code string) (string, error) {
	if !g.on() {
		return "", ErrWrongThread
	}
	return g.in.Exec(ctx, code)
}

func (g *guardedInterpreter) InsertPath(ctx context.Context, index int, entry string) error {
	if !g.on() {
		return ErrWrongThread
	}
	return g.in.InsertPath(ctx, index, entry)
}

func (g *guardedInterpreter) Path(ctx context.Context) ([]string, error) {
	if !g.on() {
		return nil, ErrWrongThread
	}
	return g.in.Path(ctx)
}

func (g *guardedInterpreter) LoadModule(ctx context.Context, path string) error {
	if !g.on() {
		return ErrWrongThread
	}
	return g.in.LoadModule(ctx, path)
}

func (g *guardedInterpreter) Global(ctx context.Context, name string) (Object, error) {
	if !g.on() {
		return nil, ErrWrongThread
	}
	obj, err := g.in.Global(ctx, name)
	return guardObject(obj, g.on), err
}

func (g *guardedInterpreter) Bind(ctx context.Context, name string, r *hostfunc.Registry) (Object, error) {
	if !g.on() {
		return nil, ErrWrongThread
	}
	obj, err := g.in.Bind(ctx, name, r)
	return guardObject(obj, g.on), err
}

func (g *guardedInterpreter) Call(ctx context.Context, fn string, args ...any) (Object, error) {
	if !g.on() {
		return nil, ErrWrongThread
	}
	obj, err := g.in.Call(ctx, fn, unwrapArgs(args)...)
	return guardObject(obj, g.on), err
}

// Close is allowed from any goroutine.
func (g *guardedInterpreter) Close() error {
	return g.in.Close()
}
