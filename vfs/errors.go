package vfs

import "errors"

// Sentinel errors for the file system stack.
// These errors can be checked with errors.Is() for specific error handling.
var (
	// Stream errors
	ErrBusy   = errors.New("a stream is already open")
	ErrClosed = errors.New("file system is not open")

	// Lookup errors
	ErrNotFound          = errors.New("no such file or directory")
	ErrExists            = errors.New("file already exists")
	ErrExpectedFile      = errors.New("expected file, got directory")
	ErrExpectedDirectory = errors.New("expected directory but got file")
	ErrNotEmpty          = errors.New("directory not empty")

	// Name errors
	ErrNameTooLong = errors.New("name too long")

	// Archive errors
	ErrCorrupt  = errors.New("archive trailer or central directory not found")
	ErrReadOnly = errors.New("file system is read-only")

	// Commit errors
	ErrPartialCommit = errors.New("pending changes were not fully committed")

	ErrUnsupported = errors.ErrUnsupported
)
