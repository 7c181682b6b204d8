package vfs

import "io"

// ReadStream is a use-once handle for reading a file. Close releases the
// underlying resource.
type ReadStream interface {
	io.Reader
	io.Closer
}

// WriteStream is a use-once handle for writing a file. Data is only
// guaranteed to reach the backing store once Close returns nil.
type WriteStream interface {
	io.Writer
	io.Closer
}

// FileSystem is the capability set every store in the stack implements.
//
// Names are slash separated and relative to the store root; the empty name
// is the root directory. Queries never fail: they report false for paths that
// do not exist. Mutating calls and stream constructors return an error that
// can be matched against the sentinel errors of this package.
type FileSystem interface {
	IsFile(name string) bool
	IsDirectory(name string) bool

	// DirectoryCreate succeeds if name is already a directory. It fails when
	// a file exists at name or the parent directory does not exist.
	DirectoryCreate(name string) error

	// DirectoryScan returns the names of the immediate children of name,
	// without duplicates.
	DirectoryScan(name string) ([]string, error)

	// FileRemove removes a file or an empty directory.
	FileRemove(name string) error
	FileRename(from, to string) error

	GetReadStream(name string) (ReadStream, error)
	GetWriteStream(name string) (WriteStream, error)
}

// Exists reports whether name is a file or a directory in fsys.
func Exists(fsys FileSystem, name string) bool {
	return fsys.IsFile(name) || fsys.IsDirectory(name)
}
