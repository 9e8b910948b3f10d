package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// LibraryPaths are the directories the runtime loads itself from. They must
// be set before the first service is created.
type LibraryPaths struct {
	Core      string
	Share     string
	Operation string
}

var (
	libraryMu    sync.RWMutex
	libraryPaths LibraryPaths
)

// SetLibraryPaths configures the process-wide library directories.
func SetLibraryPaths(p LibraryPaths) {
	libraryMu.Lock()
	libraryPaths = p
	libraryMu.Unlock()
}

// CurrentLibraryPaths returns the process-wide library directories.
func CurrentLibraryPaths() LibraryPaths {
	libraryMu.RLock()
	defer libraryMu.RUnlock()
	return libraryPaths
}

// ServiceKey identifies a service. The credential is opaque; it only takes
// part in lookups.
type ServiceKey struct {
	Name       string
	Credential string
}

func (k ServiceKey) String() string {
	return k.Name
}

// Factory owns the runtime services of the process. Services live until the
// process exits; there is no teardown.
type Factory struct {
	mu       sync.Mutex
	services map[ServiceKey]*Service
	log      zerolog.Logger

	// starting is held by the Start call in progress.
	starting chan struct{}
}

var (
	defaultOnce    sync.Once
	defaultFactory *Factory
)

// Default returns the process-wide factory.
func Default() *Factory {
	defaultOnce.Do(func() {
		defaultFactory = NewFactory(zerolog.Nop())
	})
	return defaultFactory
}

// NewFactory returns an independent factory. Outside of tests use Default.
func NewFactory(log zerolog.Logger) *Factory {
	return &Factory{
		services: make(map[ServiceKey]*Service),
		log:      log,
		starting: make(chan struct{}, 1),
	}
}

// Service returns the service registered under key, or nil.
func (f *Factory) Service(key ServiceKey) *Service {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.services[key]
}

// InitSimple creates the service for key.
func (f *Factory) InitSimple(key ServiceKey) (*Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.services[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceExists, key)
	}
	s := &Service{
		key:           key,
		checkPassword: true,
		contexts:      make(map[string]Interpreter),
		attachments:   make(map[string]any),
		log:           f.log.With().Str("service", key.Name).Logger(),
	}
	f.services[key] = s
	return s, nil
}

// Remove drops a service and closes its interpreters. Start uses it to undo
// a failed initialization.
func (f *Factory) Remove(key ServiceKey) error {
	f.mu.Lock()
	s, ok := f.services[key]
	delete(f.services, key)
	f.mu.Unlock()
	if !ok {
		return nil
	}
	return s.closeContexts()
}

// Len returns the number of live services.
func (f *Factory) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.services)
}

type Service struct {
	key ServiceKey
	log zerolog.Logger

	mu            sync.Mutex
	checkPassword bool
	contexts      map[string]Interpreter
	attachments   map[string]any
}

func (s *Service) Key() ServiceKey {
	return s.key
}

// CheckPassword turns credential checks for this service on or off.
func (s *Service) CheckPassword(on bool) {
	s.mu.Lock()
	s.checkPassword = on
	s.mu.Unlock()
}

func (s *Service) PasswordChecked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkPassword
}

// ImportContext opens an interpreter of the named language, or returns the
// one already opened for it.
func (s *Service) ImportContext(ctx context.Context, lang string, opts ...OpenOption) (Interpreter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if interp, ok := s.contexts[lang]; ok {
		return interp, nil
	}

	l, err := LookupLanguage(lang)
	if err != nil {
		return nil, err
	}

	cfg := OpenConfig{
		Library: CurrentLibraryPaths(),
		Logger:  s.log,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	interp, err := l.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", lang, err)
	}
	s.contexts[lang] = interp
	return interp, nil
}

// Context returns an already imported interpreter.
func (s *Service) Context(lang string) (Interpreter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	interp, ok := s.contexts[lang]
	return interp, ok
}

// Attach stores v on the service under key, replacing any previous value.
func (s *Service) Attach(key string, v any) {
	s.mu.Lock()
	s.attachments[key] = v
	s.mu.Unlock()
}

func (s *Service) Attachment(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachments[key]
}

func (s *Service) closeContexts() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for name, interp := range s.contexts {
		if err := interp.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(s.contexts, name)
	}
	return errors.Join(errs...)
}
