package docstore

import "errors"

// Sentinel error kinds, checked with errors.Is and wrapped at every layer
// boundary with fmt.Errorf("...: %w", ...).
var (
	// ErrParse is returned by Query when filter text fails to lex or
	// parse. Wraps a *filter.ParseError carrying position detail.
	ErrParse = errors.New("docstore: parse error")

	// ErrIO is returned when the persistence layer fails to read or write
	// the base directory.
	ErrIO = errors.New("docstore: io error")

	// ErrInvalidArgument is returned for a null/empty id, null fields, or
	// another argument that violates a precondition of a public method.
	ErrInvalidArgument = errors.New("docstore: invalid argument")

	// ErrLockHeld is returned by Open/OpenWithOptions when another open
	// store, in this process or another one, already holds the advisory
	// lock on the base directory.
	ErrLockHeld = errors.New("docstore: lock held by another process")
)
