package persist

import "errors"

// ErrIO wraps every failure reading or writing the base directory: a
// missing/unreadable file, a malformed snapshot, a disk write failure. The
// root package re-wraps this under its own exported sentinel so callers
// outside the module never import this internal package directly.
var ErrIO = errors.New("persist: io error")

// ErrLockHeld is returned by [Open] when another open handle, in this
// process or another one, already holds the advisory lock on the base
// directory.
var ErrLockHeld = errors.New("persist: lock held by another process")
