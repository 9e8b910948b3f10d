// Package python runs a WASI build of the Python interpreter under wazero
// and drives it as a host.Language.
//
// The interpreter is started once with an embedded prelude that serves
// JSON commands on stdin and reports back through NUL-delimited frames on
// stderr. Objects living in the guest are referred to by integer handles.
package python

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/caffeineduck/mnemobridge/host"
	"github.com/caffeineduck/mnemobridge/hostfunc"
	"github.com/caffeineduck/mnemobridge/internal/logging"
	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

//go:generate sh -c "cd testdata && GOOS=wasip1 GOARCH=wasm go build -o mock.wasm mock.go"

//go:embed prelude.py
var prelude string

const (
	Name = "python"

	// WasmFile is looked up in the core library directory.
	WasmFile = "python.wasm"
)

var startTimeout = 30 * time.Second

func init() {
	host.RegisterLanguage(Language{})
}

// Language opens wazero-hosted Python interpreters.
type Language struct{}

func (Language) Name() string {
	return Name
}

func (Language) Open(ctx context.Context, cfg host.OpenConfig) (host.Interpreter, error) {
	path := filepath.Join(cfg.Library.Core, WasmFile)
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read interpreter: %w", err)
	}
	return Start(ctx, wasm, cfg)
}

// Interpreter is a running guest. Commands are serialized; one runs at a
// time.
type Interpreter struct {
	rt    wazero.Runtime
	cache wazero.CompilationCache
	log   zerolog.Logger

	stdin       *io.PipeWriter
	stdinReader *io.PipeReader
	stdout      *output
	proto       *protocol

	exited  chan struct{}
	exitErr error

	mu     sync.Mutex
	closed bool
	seq    uint64
}

// Start compiles wasm and runs it with the prelude until it reports ready.
func Start(ctx context.Context, wasm []byte, cfg host.OpenConfig) (*Interpreter, error) {
	log := logging.Component(cfg.Logger, Name)

	var cache wazero.CompilationCache
	if cfg.CacheDir != "" {
		c, err := wazero.NewCompilationCacheWithDir(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
		cache = c
	}

	rtConfig := wazero.NewRuntimeConfig()
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.MemoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	// The guest outlives ctx, so the runtime is not bound to it.
	bg := context.Background()
	rt := wazero.NewRuntimeWithConfig(bg, rtConfig)
	in := &Interpreter{
		rt:     rt,
		cache:  cache,
		log:    log,
		stdout: &output{},
		exited: make(chan struct{}),
	}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		in.release()
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, wasm)
	if err != nil {
		in.release()
		return nil, fmt.Errorf("compile %s: %w", Name, err)
	}

	in.stdinReader, in.stdin = io.Pipe()
	in.proto = newProtocol(bg, in.stdin, log)

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(in.stdout).
		WithStderr(in.proto).
		WithStdin(in.stdinReader).
		WithArgs("python", "-c", prelude).
		WithEnv("CLE_SESSION", "1").
		WithFSConfig(fsConfig(cfg.Mounts)).
		WithSysWalltime().
		WithSysNanotime().
		WithName("")

	go func() {
		_, err := rt.InstantiateModule(bg, compiled, moduleConfig)
		in.exitErr = err
		close(in.exited)
	}()

	timer := time.NewTimer(startTimeout)
	defer timer.Stop()

	select {
	case <-in.proto.Ready():
		log.Debug().Int("mounts", len(cfg.Mounts)).Msg("interpreter ready")
		return in, nil
	case <-in.exited:
		in.release()
		return nil, fmt.Errorf("interpreter exited during start: %v: %s", in.exitErr, in.proto.Stderr())
	case <-ctx.Done():
		in.release()
		return nil, ctx.Err()
	case <-timer.C:
		in.release()
		return nil, errors.New("interpreter start timeout")
	}
}

// fsConfig exposes each mount at its host path.
func fsConfig(mounts []host.Mount) wazero.FSConfig {
	fs := wazero.NewFSConfig()
	for _, m := range mounts {
		if m.Path == "" {
			continue
		}
		if m.Mode == host.MountReadWrite {
			fs = fs.WithDirMount(m.Path, m.Path)
		} else {
			fs = fs.WithReadOnlyDirMount(m.Path, m.Path)
		}
	}
	return fs
}

func (in *Interpreter) Name() string {
	return Name
}

type command struct {
	Seq    uint64           `json:"seq"`
	Type   string           `json:"type"`
	Code   string           `json:"code,omitempty"`
	Path   string           `json:"path,omitempty"`
	Name   string           `json:"name,omitempty"`
	Index  *int             `json:"index,omitempty"`
	Entry  string           `json:"entry,omitempty"`
	Target *int64           `json:"target,omitempty"`
	Fn     string           `json:"fn,omitempty"`
	Args   []map[string]any `json:"args,omitempty"`
	Fns    []fnSpec         `json:"fns,omitempty"`
}

type fnSpec struct {
	Name   string   `json:"name"`
	Params []string `json:"params"`
}

// run sends one command and waits for its completion. The returned string
// is everything the guest printed meanwhile. A command abandoned through ctx
// keeps running in the guest; its completion is dropped when it arrives.
func (in *Interpreter) run(ctx context.Context, cmd command) (reply, string, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return reply{}, "", host.ErrClosed
	}

	in.seq++
	cmd.Seq = in.seq
	in.stdout.Reset()
	in.proto.resetExec(cmd.Seq)

	line, err := json.Marshal(cmd)
	if err != nil {
		return reply{}, "", fmt.Errorf("encode command: %w", err)
	}
	line = append(line, '\n')

	go func() {
		in.proto.writeMu.Lock()
		defer in.proto.writeMu.Unlock()
		if _, err := in.stdin.Write(line); err != nil {
			in.proto.deliver(result{err: fmt.Errorf("write command: %w", err)})
		}
	}()

	select {
	case r := <-in.proto.Done():
		return r.reply, in.stdout.String() + in.proto.Stderr(), r.err
	case <-in.exited:
		return reply{}, in.stdout.String() + in.proto.Stderr(),
			fmt.Errorf("%w: interpreter exited: %v", host.ErrClosed, in.exitErr)
	case <-ctx.Done():
		return reply{}, in.stdout.String() + in.proto.Stderr(), ctx.Err()
	}
}

func (in *Interpreter) Exec(ctx context.Context, code string) (string, error) {
	_, out, err := in.run(ctx, command{Type: "exec", Code: code})
	return out, err
}

func (in *Interpreter) InsertPath(ctx context.Context, index int, entry string) error {
	_, _, err := in.run(ctx, command{Type: "path", Index: &index, Entry: entry})
	return err
}

func (in *Interpreter) Path(ctx context.Context) ([]string, error) {
	r, _, err := in.run(ctx, command{Type: "path"})
	if err != nil {
		return nil, err
	}
	list, _ := r.Value.([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("sys.path entry %v is not a string", v)
		}
		out = append(out, s)
	}
	return out, nil
}

func (in *Interpreter) LoadModule(ctx context.Context, path string) error {
	_, _, err := in.run(ctx, command{Type: "load", Path: path})
	return err
}

func (in *Interpreter) Global(ctx context.Context, name string) (host.Object, error) {
	r, _, err := in.run(ctx, command{Type: "global", Name: name})
	if err != nil {
		return nil, err
	}
	return in.object(r), nil
}

// Bind installs a proxy object whose methods call into r. The proxy maps
// positional arguments onto the registered parameter names.
func (in *Interpreter) Bind(ctx context.Context, name string, r *hostfunc.Registry) (host.Object, error) {
	specs := r.Specs()
	fns := make([]fnSpec, len(specs))
	for i, s := range specs {
		fns[i] = fnSpec{Name: s.Name, Params: s.Params}
	}
	in.proto.bind(name, r)

	rep, _, err := in.run(ctx, command{Type: "bind", Name: name, Fns: fns})
	if err != nil {
		return nil, err
	}
	return in.object(rep), nil
}

func (in *Interpreter) Call(ctx context.Context, fn string, args ...any) (host.Object, error) {
	return in.call(ctx, nil, fn, args)
}

func (in *Interpreter) call(ctx context.Context, target *int64, fn string, args []any) (host.Object, error) {
	encoded, err := in.encodeArgs(args)
	if err != nil {
		return nil, err
	}
	r, _, err := in.run(ctx, command{Type: "call", Target: target, Fn: fn, Args: encoded})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	return in.object(r), nil
}

func (in *Interpreter) encodeArgs(args []any) ([]map[string]any, error) {
	out := make([]map[string]any, len(args))
	for i, a := range args {
		if o, ok := a.(*Object); ok {
			if o.in != in {
				return nil, fmt.Errorf("argument %d belongs to another interpreter", i)
			}
			out[i] = map[string]any{"h": o.handle}
			continue
		}
		out[i] = map[string]any{"v": a}
	}
	return out, nil
}

func (in *Interpreter) object(r reply) host.Object {
	if r.Handle == nil {
		return nil
	}
	return &Object{in: in, handle: *r.Handle, value: r.Value}
}

// Close stops the guest and releases the runtime.
func (in *Interpreter) Close() error {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return nil
	}
	in.closed = true
	in.mu.Unlock()
	return in.release()
}

func (in *Interpreter) release() error {
	// Closing the pipe gives the guest EOF so it leaves its command loop.
	if in.stdinReader != nil {
		in.stdinReader.Close()
	}
	if in.stdin != nil {
		in.stdin.Close()
	}

	ctx := context.Background()
	var errs []error
	if err := in.rt.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if in.cache != nil {
		if err := in.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Object is a handle to a value in the guest.
type Object struct {
	in     *Interpreter
	handle int64
	value  any
}

func (o *Object) Call(ctx context.Context, method string, args ...any) (host.Object, error) {
	h := o.handle
	return o.in.call(ctx, &h, method, args)
}

// Export returns the JSON form of the value at the time it was returned,
// or its repr for values JSON cannot carry.
func (o *Object) Export() any {
	return o.value
}

type output struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (o *output) Write(data []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.Write(data)
}

func (o *output) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}

func (o *output) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buf.Reset()
}
