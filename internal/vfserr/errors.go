// Package vfserr defines the typed error family shared by the dirtree and
// vfs packages. The ledger and objectstore packages define their own
// sentinel errors.
//
// Errors are plain sentinel values (comparable with errors.Is) rather than
// exception-style types: a named string type with one constant per error.
package vfserr

type baseErr string

func (e baseErr) Error() string { return string(e) }

const (
	// Path shape.
	ErrInvalidPath             = baseErr("invalid path")
	ErrInvalidNamingConvention = baseErr("invalid naming convention")

	// Path presence.
	ErrPathNotExists      = baseErr("path does not exist")
	ErrDirOfPathNotExists = baseErr("directory of path does not exist")
	ErrPathExists         = baseErr("path already exists")
	ErrPathIsNotFile      = baseErr("path is not a file")
	ErrPathIsNotDir       = baseErr("path is not a directory")

	// Operation legality.
	ErrInvalidOperation           = baseErr("invalid operation")
	ErrInvalidCurrentDirOperation = baseErr("invalid operation on current directory")

	// Content.
	ErrFileIDNotFound = baseErr("file has no content bound")
)
