package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caffeineduck/mnemobridge/hostfunc"
	"github.com/rs/zerolog"
)

const (
	DefaultServiceName = "cle"
	DefaultCredential  = "123"
	DefaultLanguage    = "python"

	ExtrasArchive      = "python_extras_r14.zip"
	DefaultEntryScript = "mnemosyne/cle/mnemosyne_android.py"

	AppObject              = "mnemosyne"
	StartSymbol            = "start_mnemosyne"
	ReviewControllerSymbol = "review_controller"
	BridgeObject           = "bridge"
)

const (
	attachHandles = "handles"
)

// DefaultServiceKey is the service the review application runs in.
var DefaultServiceKey = ServiceKey{Name: DefaultServiceName, Credential: DefaultCredential}

// PathConfig is the filesystem layout under one base directory.
type PathConfig struct {
	Base    string
	Library LibraryPaths

	// Search lists the entries in the order they are inserted at index 0,
	// so the last one ends up with the highest precedence.
	Search []string

	EntryScript string
}

// DefaultPaths derives the layout from basedir.
func DefaultPaths(basedir string) PathConfig {
	files := filepath.Join(basedir, "files")
	lib := filepath.Join(basedir, "lib")
	return PathConfig{
		Base: basedir,
		Library: LibraryPaths{
			Core:      lib,
			Share:     lib,
			Operation: files,
		},
		Search: []string{
			filepath.Join(files, ExtrasArchive),
			lib,
			filepath.Join(files, "lib-dynload"),
			files,
		},
		EntryScript: filepath.Join(files, DefaultEntryScript),
	}
}

// Precedence returns the search entries highest precedence first, as they
// appear at the head of the interpreter's path after Start.
func (p PathConfig) Precedence() []string {
	out := make([]string, len(p.Search))
	for i, entry := range p.Search {
		out[len(p.Search)-1-i] = entry
	}
	return out
}

// StartConfig is the input of Start.
type StartConfig struct {
	Paths      PathConfig
	DataDir    string
	DBFilename string

	// Language defaults to DefaultLanguage.
	Language string
	// Service defaults to DefaultServiceKey.
	Service ServiceKey
	// Factory defaults to Default().
	Factory *Factory

	Open   []OpenOption
	Logger zerolog.Logger
}

// Handles are the runtime objects the worker keeps after Start.
type Handles struct {
	Interpreter      Interpreter
	App              Object
	ReviewController Object
	Bridge           Object
	Service          *Service
}

// Start brings up the review application in the embedded runtime and hands
// it the callbacks registry. If the service already exists, Start does
// nothing and returns the handles created by the first call with reused set.
//
// Calls sharing a factory run one at a time. A call made while another is
// still starting waits for it (or for ctx) and then reuses its handles.
//
// On error no service is left behind for the key.
func Start(ctx context.Context, cfg StartConfig, callbacks *hostfunc.Registry) (h *Handles, reused bool, err error) {
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.Service == (ServiceKey{}) {
		cfg.Service = DefaultServiceKey
	}
	factory := cfg.Factory
	if factory == nil {
		factory = Default()
	}
	log := cfg.Logger

	if err := checkLibraries(cfg.Paths.Library); err != nil {
		return nil, false, err
	}
	SetLibraryPaths(cfg.Paths.Library)

	select {
	case factory.starting <- struct{}{}:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
	defer func() { <-factory.starting }()

	log.Debug().Msg("Initialising starcore")

	if svc := factory.Service(cfg.Service); svc != nil {
		existing, _ := svc.Attachment(attachHandles).(*Handles)
		if existing == nil {
			return nil, false, fmt.Errorf("%w: service %s exists without handles", ErrRuntimeLoad, cfg.Service)
		}
		log.Debug().Str("service", cfg.Service.Name).Msg("service already initialised, reusing")
		return existing, true, nil
	}

	svc, err := factory.InitSimple(cfg.Service)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrRuntimeLoad, err)
	}
	defer func() {
		if err != nil {
			if rerr := factory.Remove(cfg.Service); rerr != nil {
				log.Warn().Err(rerr).Msg("cleanup after failed start")
			}
		}
	}()
	svc.CheckPassword(false)

	opts := append([]OpenOption{
		WithLogger(log),
		WithMount(cfg.Paths.Base, MountReadOnly),
	}, cfg.Open...)
	if cfg.DataDir != "" {
		opts = append(opts, WithMount(cfg.DataDir, MountReadWrite))
	}

	interp, err := svc.ImportContext(ctx, cfg.Language, opts...)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrRuntimeLoad, err)
	}

	for _, entry := range cfg.Paths.Search {
		if err := interp.InsertPath(ctx, 0, entry); err != nil {
			return nil, false, fmt.Errorf("%w: insert %s: %w", ErrPathSetup, entry, err)
		}
	}

	log.Debug().Msg("about to start Mnemosyne")

	if err := interp.LoadModule(ctx, cfg.Paths.EntryScript); err != nil {
		return nil, false, fmt.Errorf("%w: load %s: %w", ErrRuntimeLoad, cfg.Paths.EntryScript, err)
	}

	app, err := interp.Global(ctx, AppObject)
	if err != nil {
		return nil, false, fmt.Errorf("%w: lookup %s: %w", ErrRuntimeLoad, AppObject, err)
	}
	if app == nil {
		return nil, false, fmt.Errorf("%w: %s", ErrEntrySymbolMissing, AppObject)
	}

	bridgeObj, err := interp.Bind(ctx, BridgeObject, callbacks)
	if err != nil {
		return nil, false, fmt.Errorf("%w: bind %s: %w", ErrRuntimeLoad, BridgeObject, err)
	}

	if _, err := interp.Call(ctx, StartSymbol, cfg.DataDir, cfg.DBFilename, bridgeObj); err != nil {
		return nil, false, classify(StartSymbol, err)
	}

	controller, err := app.Call(ctx, ReviewControllerSymbol)
	if err != nil {
		return nil, false, classify(ReviewControllerSymbol, err)
	}
	if controller == nil {
		return nil, false, fmt.Errorf("%w: %s returned nothing", ErrEntrySymbolMissing, ReviewControllerSymbol)
	}

	h = &Handles{
		Interpreter:      interp,
		App:              app,
		ReviewController: controller,
		Bridge:           bridgeObj,
		Service:          svc,
	}
	svc.Attach(attachHandles, h)

	log.Debug().Msg("started Mnemosyne")
	return h, false, nil
}

// classify keeps a missing-symbol error as is and reports anything else the
// script raised as a load failure.
func classify(symbol string, err error) error {
	if errors.Is(err, ErrEntrySymbolMissing) {
		return fmt.Errorf("%s: %w", symbol, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrRuntimeLoad, symbol, err)
}

func checkLibraries(p LibraryPaths) error {
	for _, dir := range []string{p.Core, p.Share} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPathSetup, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: %s is not a directory", ErrPathSetup, dir)
		}
	}
	return nil
}
