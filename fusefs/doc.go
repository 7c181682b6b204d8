// Package fusefs mounts any vfs.FileSystem with FUSE.
//
// Directory nodes map straight onto the FileSystem queries. File nodes read
// the whole file on first access, keep it in memory while the kernel holds
// the node and write it back on flush or fsync. All calls into the wrapped
// FileSystem are serialized, since a container serves one stream at a time.
//
// The FileSystem has no timestamps of its own: directories report the mount
// time and files report their last local modification.
package fusefs
