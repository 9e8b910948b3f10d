// Package javascript is an in-process host.Language backed by goja.
//
// The interpreter keeps a global sys.path array. LoadModule runs a script
// file in the global scope, and require() resolves modules against the
// directory entries of sys.path at the time of the load.
package javascript

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caffeineduck/mnemobridge/host"
	"github.com/caffeineduck/mnemobridge/hostfunc"
	"github.com/caffeineduck/mnemobridge/internal/logging"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"github.com/rs/zerolog"
)

const Name = "javascript"

func init() {
	host.RegisterLanguage(Language{})
}

// Language opens goja interpreters.
type Language struct{}

func (Language) Name() string {
	return Name
}

func (Language) Open(_ context.Context, cfg host.OpenConfig) (host.Interpreter, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	in := &Interpreter{
		vm:     vm,
		mounts: cfg.Mounts,
		log:    logging.Component(cfg.Logger, Name),
	}
	in.out = &printer{log: in.log}

	sys := vm.NewObject()
	if err := sys.Set("path", vm.NewArray()); err != nil {
		return nil, err
	}
	if err := vm.Set("sys", sys); err != nil {
		return nil, err
	}
	in.enableRequire(nil)
	return in, nil
}

// Interpreter is one goja runtime. It is not safe for concurrent use.
type Interpreter struct {
	vm     *goja.Runtime
	mounts []host.Mount
	log    zerolog.Logger
	out    *printer
	closed bool
}

func (in *Interpreter) Name() string {
	return Name
}

// Exec runs code and returns what it logged to the console, followed by the
// value of the last expression unless that is undefined.
func (in *Interpreter) Exec(ctx context.Context, code string) (string, error) {
	if in.closed {
		return "", host.ErrClosed
	}
	var buf bytes.Buffer
	in.out.capture = &buf
	defer func() { in.out.capture = nil }()

	var v goja.Value
	err := in.guard(ctx, func() (err error) {
		v, err = in.vm.RunString(code)
		return err
	})
	if err != nil {
		return buf.String(), err
	}
	if v != nil && !goja.IsUndefined(v) {
		buf.WriteString(v.String())
		buf.WriteByte('\n')
	}
	return buf.String(), nil
}

func (in *Interpreter) InsertPath(_ context.Context, index int, entry string) error {
	if in.closed {
		return host.ErrClosed
	}
	path := in.sysPath()
	splice, ok := goja.AssertFunction(path.Get("splice"))
	if !ok {
		return errors.New("sys.path is not an array")
	}
	_, err := splice(path, in.vm.ToValue(index), in.vm.ToValue(0), in.vm.ToValue(entry))
	return err
}

func (in *Interpreter) Path(context.Context) ([]string, error) {
	if in.closed {
		return nil, host.ErrClosed
	}
	var out []string
	if err := in.vm.ExportTo(in.sysPath(), &out); err != nil {
		return nil, fmt.Errorf("sys.path: %w", err)
	}
	return out, nil
}

func (in *Interpreter) LoadModule(ctx context.Context, path string) error {
	if in.closed {
		return host.ErrClosed
	}
	src, err := in.readFile(path)
	if err != nil {
		return err
	}

	folders, err := in.Path(ctx)
	if err != nil {
		return err
	}
	in.enableRequire(folders)

	return in.guard(ctx, func() error {
		_, err := in.vm.RunScript(path, string(src))
		return err
	})
}

func (in *Interpreter) Global(_ context.Context, name string) (host.Object, error) {
	if in.closed {
		return nil, host.ErrClosed
	}
	return in.wrap(in.vm.Get(name)), nil
}

// Bind creates a global object with one function per registry entry.
// Positional arguments are mapped through the entry's parameter names.
func (in *Interpreter) Bind(ctx context.Context, name string, r *hostfunc.Registry) (host.Object, error) {
	if in.closed {
		return nil, host.ErrClosed
	}
	ctx = context.WithoutCancel(ctx)
	obj := in.vm.NewObject()
	for _, spec := range r.Specs() {
		fn := spec.Name
		err := obj.Set(fn, func(call goja.FunctionCall) goja.Value {
			args := make([]any, len(call.Arguments))
			for i, a := range call.Arguments {
				args[i] = a.Export()
			}
			res, err := r.CallPositional(ctx, fn, args)
			if err != nil {
				panic(in.vm.NewGoError(err))
			}
			return in.vm.ToValue(res)
		})
		if err != nil {
			return nil, err
		}
	}
	if err := in.vm.Set(name, obj); err != nil {
		return nil, err
	}
	return &Object{in: in, v: obj}, nil
}

func (in *Interpreter) Call(ctx context.Context, fn string, args ...any) (host.Object, error) {
	if in.closed {
		return nil, host.ErrClosed
	}
	f, ok := goja.AssertFunction(in.vm.Get(fn))
	if !ok {
		return nil, fmt.Errorf("%w: %s", host.ErrEntrySymbolMissing, fn)
	}
	return in.invoke(ctx, fn, f, goja.Undefined(), args)
}

// Close interrupts any running script. Later calls fail with host.ErrClosed.
func (in *Interpreter) Close() error {
	if in.closed {
		return nil
	}
	in.closed = true
	in.vm.Interrupt(host.ErrClosed)
	return nil
}

func (in *Interpreter) invoke(ctx context.Context, name string, f goja.Callable, this goja.Value, args []any) (host.Object, error) {
	vals := make([]goja.Value, len(args))
	for i, a := range args {
		if o, ok := a.(*Object); ok {
			vals[i] = o.v
			continue
		}
		vals[i] = in.vm.ToValue(a)
	}

	var res goja.Value
	err := in.guard(ctx, func() (err error) {
		res, err = f(this, vals...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return in.wrap(res), nil
}

// guard interrupts the runtime when ctx ends while fn is running.
func (in *Interpreter) guard(ctx context.Context, fn func() error) error {
	stop := context.AfterFunc(ctx, func() {
		in.vm.Interrupt(ctx.Err())
	})
	err := fn()
	if !stop() {
		in.vm.ClearInterrupt()
	}
	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		if cause, ok := ie.Value().(error); ok {
			return fmt.Errorf("interrupted: %w", cause)
		}
	}
	return err
}

func (in *Interpreter) wrap(v goja.Value) host.Object {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return &Object{in: in, v: v}
}

func (in *Interpreter) sysPath() *goja.Object {
	return in.vm.Get("sys").ToObject(in.vm).Get("path").ToObject(in.vm)
}

// enableRequire installs a fresh require() resolving against folders, with
// the console module writing to the logger.
func (in *Interpreter) enableRequire(folders []string) {
	var dirs []string
	for _, f := range folders {
		if info, err := os.Stat(f); err == nil && info.IsDir() {
			dirs = append(dirs, f)
		}
	}
	reg := require.NewRegistry(
		require.WithGlobalFolders(dirs...),
		require.WithLoader(in.readFile),
	)
	reg.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(in.out))
	reg.Enable(in.vm)
	console.Enable(in.vm)
}

// readFile loads script sources. With mounts configured, only files below a
// mount are readable.
func (in *Interpreter) readFile(path string) ([]byte, error) {
	if len(in.mounts) > 0 && !in.mounted(path) {
		in.log.Debug().Str("path", path).Msg("outside mounts")
		return nil, require.ModuleFileDoesNotExistError
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && info.IsDir()) {
		return nil, require.ModuleFileDoesNotExistError
	}
	return os.ReadFile(path)
}

func (in *Interpreter) mounted(path string) bool {
	path = filepath.Clean(path)
	for _, m := range in.mounts {
		if m.Path == "" {
			continue
		}
		root := filepath.Clean(m.Path)
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Object is a JavaScript value held by the interpreter.
type Object struct {
	in *Interpreter
	v  goja.Value
}

func (o *Object) Call(ctx context.Context, method string, args ...any) (host.Object, error) {
	if o.in.closed {
		return nil, host.ErrClosed
	}
	obj := o.v.ToObject(o.in.vm)
	f, ok := goja.AssertFunction(obj.Get(method))
	if !ok {
		return nil, fmt.Errorf("%w: %s", host.ErrEntrySymbolMissing, method)
	}
	return o.in.invoke(ctx, method, f, obj, args)
}

// Export returns the Go value of o.
func (o *Object) Export() any {
	return o.v.Export()
}

func (o *Object) String() string {
	return o.v.String()
}

type printer struct {
	log     zerolog.Logger
	capture *bytes.Buffer
}

func (p *printer) Log(s string) {
	p.log.Info().Msg(s)
	p.write(s)
}

func (p *printer) Warn(s string) {
	p.log.Warn().Msg(s)
	p.write(s)
}

func (p *printer) Error(s string) {
	p.log.Error().Msg(s)
	p.write(s)
}

func (p *printer) write(s string) {
	if p.capture != nil {
		p.capture.WriteString(s)
		p.capture.WriteByte('\n')
	}
}
