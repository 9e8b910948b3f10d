package host

import "errors"

// Startup failures. Every error returned by Start wraps one of these.
var (
	// ErrPathSetup means the library directories are missing or the
	// interpreter's search path could not be set.
	ErrPathSetup = errors.New("path setup failed")

	// ErrRuntimeLoad means the interpreter or the entry module could not be
	// loaded.
	ErrRuntimeLoad = errors.New("runtime load failed")

	// ErrEntrySymbolMissing means the entry module lacks an expected symbol,
	// or the review controller lookup returned nothing.
	ErrEntrySymbolMissing = errors.New("entry symbol missing")

	// ErrWrongThread means an interpreter handle was used off the worker
	// loop.
	ErrWrongThread = errors.New("interpreter used off its worker thread")
)

var (
	ErrServiceExists   = errors.New("service already exists")
	ErrUnknownLanguage = errors.New("unknown language")
	ErrClosed          = errors.New("interpreter closed")
)
