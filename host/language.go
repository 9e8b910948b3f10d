package host

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/caffeineduck/mnemobridge/hostfunc"
	"github.com/rs/zerolog"
)

// Language opens interpreters of one script language. Backends register
// themselves from an init function, the way database/sql drivers do.
type Language interface {
	// Name is the identifier passed to Service.ImportContext, e.g. "python".
	Name() string

	Open(ctx context.Context, cfg OpenConfig) (Interpreter, error)
}

// Interpreter is one live interpreter context. Implementations are not safe
// for concurrent use; the worker loop serializes every call.
type Interpreter interface {
	Name() string

	// Exec runs source in the interpreter's global scope and returns what
	// it printed.
	Exec(ctx context.Context, code string) (string, error)

	// InsertPath inserts entry into the module search path at index.
	InsertPath(ctx context.Context, index int, entry string) error

	// Path returns the module search path, highest precedence first.
	Path(ctx context.Context) ([]string, error)

	// LoadModule executes the script at path into the global scope.
	LoadModule(ctx context.Context, path string) error

	// Global looks up a global object. A missing global is (nil, nil).
	Global(ctx context.Context, name string) (Object, error)

	// Bind exposes the registry to scripts as an object under name and
	// returns that object.
	Bind(ctx context.Context, name string, r *hostfunc.Registry) (Object, error)

	// Call invokes a global function. A missing function wraps
	// ErrEntrySymbolMissing. A None/undefined result is a nil Object.
	Call(ctx context.Context, fn string, args ...any) (Object, error)

	Close() error
}

// Object is a handle to a value living in the interpreter.
type Object interface {
	// Call invokes a method. A missing method wraps ErrEntrySymbolMissing.
	// A None/undefined result is a nil Object.
	Call(ctx context.Context, method string, args ...any) (Object, error)
}

// MountMode is the access a script gets to a mounted directory.
type MountMode int

const (
	MountReadOnly MountMode = iota
	MountReadWrite
)

// Mount exposes a host directory to the interpreter at the same path.
type Mount struct {
	Path string
	Mode MountMode
}

// OpenConfig is what a Language receives when a context is imported.
type OpenConfig struct {
	Library LibraryPaths
	Mounts  []Mount
	Logger  zerolog.Logger

	// CacheDir enables a persistent compilation cache when set.
	CacheDir string
	// MemoryLimitPages caps interpreter memory in 64KiB pages; 0 means the
	// backend default.
	MemoryLimitPages uint32
}

// OpenOption adjusts the OpenConfig of an imported context.
type OpenOption func(*OpenConfig)

func WithMount(path string, mode MountMode) OpenOption {
	return func(c *OpenConfig) {
		c.Mounts = append(c.Mounts, Mount{Path: path, Mode: mode})
	}
}

func WithLogger(log zerolog.Logger) OpenOption {
	return func(c *OpenConfig) {
		c.Logger = log
	}
}

func WithCacheDir(dir string) OpenOption {
	return func(c *OpenConfig) {
		c.CacheDir = dir
	}
}

// Memory limits in 64KiB pages.
const (
	MemoryLimit1MB   uint32 = 16
	MemoryLimit16MB  uint32 = 256
	MemoryLimit64MB  uint32 = 1024
	MemoryLimit256MB uint32 = 4096
	MemoryLimit1GB   uint32 = 16384
)

func WithMemoryLimit(pages uint32) OpenOption {
	return func(c *OpenConfig) {
		c.MemoryLimitPages = pages
	}
}

var (
	languagesMu sync.RWMutex
	languages   = make(map[string]Language)
)

// RegisterLanguage makes a backend available by name. It panics if the name
// is taken.
func RegisterLanguage(lang Language) {
	languagesMu.Lock()
	defer languagesMu.Unlock()
	if lang == nil {
		panic("host: RegisterLanguage with nil language")
	}
	if _, dup := languages[lang.Name()]; dup {
		panic("host: RegisterLanguage called twice for " + lang.Name())
	}
	languages[lang.Name()] = lang
}

// LookupLanguage returns the backend registered under name.
func LookupLanguage(name string) (Language, error) {
	languagesMu.RLock()
	defer languagesMu.RUnlock()
	lang, ok := languages[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, name)
	}
	return lang, nil
}

// Languages lists the registered backends.
func Languages() []string {
	languagesMu.RLock()
	defer languagesMu.RUnlock()
	names := make([]string, 0, len(languages))
	for name := range languages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
