// Package vfs defines the storage abstraction shared by every layer of the
// synfig virtual file system.
//
// A FileSystem is a small capability set: file and directory queries,
// directory creation and listing, removal, rename, and use-once read and
// write streams. Everything else is written on top of those capabilities
// and works for any implementation:
//   - Copy, CopyRecursive, RemoveRecursive, DirectoryCreateRecursive, Walk
//   - FixSlashes and the path component helpers (Filename, Stem, Extension,
//     ParentPath)
//
// Two implementations live here. Native serves an afero file system (the OS,
// a directory jail or an in-memory tree). Group composes several stores into
// one namespace by longest prefix match; the archive container is usually
// mounted at the "#" marker so that "#images/a.png" resolves inside it.
//
// Implementations are not safe for concurrent use. A stack is owned by one
// caller at a time.
package vfs
