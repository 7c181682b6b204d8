package fusefs

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/synfig/synfig-vfs/vfs"
)

// FS exposes a vfs.FileSystem through FUSE.
type FS struct {
	root    vfs.FileSystem
	inodes  *InodeTable
	logger  *slog.Logger
	mounted time.Time

	// mu serializes every call into root. Containers allow a single open
	// stream, so reads and writes cannot overlap.
	mu sync.Mutex
}

// Option configures an FS.
type Option func(*FS)

// WithLogger sets the logger used for failed operations.
func WithLogger(l *slog.Logger) Option {
	return func(f *FS) { f.logger = l }
}

// WithInodes shares an inode table between mounts.
func WithInodes(t *InodeTable) Option {
	return func(f *FS) { f.inodes = t }
}

// New returns an FS serving root.
func New(root vfs.FileSystem, opts ...Option) *FS {
	f := &FS{
		root:    root,
		inodes:  NewInodeTable(),
		logger:  slog.Default(),
		mounted: time.Now(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Root returns the root directory node
func (f *FS) Root() (fs.Node, error) {
	return &Dir{fs: f}, nil
}

// Inodes returns the table numbering the nodes of f.
func (f *FS) Inodes() *InodeTable {
	return f.inodes
}

// errno translates a vfs error into the errno reported to the kernel.
func errno(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, vfs.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, vfs.ErrExists):
		return syscall.EEXIST
	case errors.Is(err, vfs.ErrNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, vfs.ErrExpectedDirectory):
		return syscall.ENOTDIR
	case errors.Is(err, vfs.ErrExpectedFile):
		return syscall.EISDIR
	case errors.Is(err, vfs.ErrBusy):
		return syscall.EBUSY
	case errors.Is(err, vfs.ErrNameTooLong):
		return syscall.ENAMETOOLONG
	case errors.Is(err, vfs.ErrReadOnly):
		return syscall.EROFS
	case errors.Is(err, vfs.ErrUnsupported):
		return syscall.ENOTSUP
	}
	return syscall.EIO
}

func (f *FS) fail(op, name string, err error) error {
	e := errno(err)
	if e == syscall.EIO {
		f.logger.Error("filesystem operation failed", "op", op, "path", name, "error", err)
	} else {
		f.logger.Debug("filesystem operation failed", "op", op, "path", name, "error", err)
	}
	return e
}

// Dir is a directory node. The root has the empty path.
type Dir struct {
	fs   *FS
	path string
}

// Attr returns directory attributes
func (d *Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Inode = d.fs.inodes.Inode(d.path)
	a.Mode = os.ModeDir | 0o755
	a.Mtime = d.fs.mounted
	a.Ctime = d.fs.mounted
	a.Atime = time.Now()
	return nil
}

// Lookup resolves file/directory names to nodes
func (d *Dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	full := vfs.Join(d.path, name)

	d.fs.mu.Lock()
	isDir := d.fs.root.IsDirectory(full)
	isFile := !isDir && d.fs.root.IsFile(full)
	d.fs.mu.Unlock()

	switch {
	case isDir:
		return &Dir{fs: d.fs, path: full}, nil
	case isFile:
		return &File{fs: d.fs, path: full}, nil
	}
	return nil, syscall.ENOENT
}

// ReadDirAll lists directory contents
func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()

	names, err := d.fs.root.DirectoryScan(d.path)
	if err != nil {
		return nil, d.fs.fail("readdir", d.path, err)
	}
	dirents := make([]fuse.Dirent, 0, len(names))
	for _, name := range names {
		full := vfs.Join(d.path, name)
		typ := fuse.DT_File
		if d.fs.root.IsDirectory(full) {
			typ = fuse.DT_Dir
		}
		dirents = append(dirents, fuse.Dirent{
			Inode: d.fs.inodes.Inode(full),
			Name:  name,
			Type:  typ,
		})
	}
	return dirents, nil
}

// Create creates a new file
func (d *Dir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	full := vfs.Join(d.path, req.Name)

	d.fs.mu.Lock()
	if d.fs.root.IsDirectory(full) {
		d.fs.mu.Unlock()
		return nil, nil, syscall.EISDIR
	}
	// the file exists from here on so that Lookup finds it before the first flush
	err := vfs.WriteFile(d.fs.root, full, nil)
	d.fs.mu.Unlock()
	if err != nil {
		return nil, nil, d.fs.fail("create", full, err)
	}

	file := &File{
		fs:       d.fs,
		path:     full,
		data:     []byte{},
		loaded:   true,
		modified: time.Now(),
	}
	file.fillAttr(&resp.Attr)
	return file, file, nil
}

// Mkdir creates a new directory
func (d *Dir) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	full := vfs.Join(d.path, req.Name)

	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	if d.fs.root.IsDirectory(full) {
		return nil, syscall.EEXIST
	}
	if err := d.fs.root.DirectoryCreate(full); err != nil {
		return nil, d.fs.fail("mkdir", full, err)
	}
	return &Dir{fs: d.fs, path: full}, nil
}

// Remove removes a file or an empty directory
func (d *Dir) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	full := vfs.Join(d.path, req.Name)

	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	switch {
	case req.Dir && !d.fs.root.IsDirectory(full):
		if d.fs.root.IsFile(full) {
			return syscall.ENOTDIR
		}
		return syscall.ENOENT
	case !req.Dir && !d.fs.root.IsFile(full):
		if d.fs.root.IsDirectory(full) {
			return syscall.EISDIR
		}
		return syscall.ENOENT
	}
	if err := d.fs.root.FileRemove(full); err != nil {
		return d.fs.fail("remove", full, err)
	}
	d.fs.inodes.ForgetTree(full)
	return nil
}

// Rename moves an entry of d into newDir
func (d *Dir) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fs.Node) error {
	target, ok := newDir.(*Dir)
	if !ok {
		return syscall.EXDEV
	}
	from := vfs.Join(d.path, req.OldName)
	to := vfs.Join(target.path, req.NewName)

	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	// rename(2) replaces an existing file
	if d.fs.root.IsFile(to) && d.fs.root.IsFile(from) {
		if err := d.fs.root.FileRemove(to); err != nil {
			return d.fs.fail("rename", to, err)
		}
		d.fs.inodes.Forget(to)
	}
	if err := d.fs.root.FileRename(from, to); err != nil {
		return d.fs.fail("rename", from, err)
	}
	d.fs.inodes.ForgetTree(from)
	return nil
}

// File is a file node. Its content is buffered in memory from the first
// access and written back on flush.
type File struct {
	fs       *FS
	path     string
	data     []byte
	loaded   bool
	dirty    bool
	modified time.Time
	mu       sync.RWMutex
}

// load reads the content of f. The caller holds f.mu for writing.
func (f *File) load() error {
	if f.loaded {
		return nil
	}
	f.fs.mu.Lock()
	data, err := vfs.ReadFile(f.fs.root, f.path)
	f.fs.mu.Unlock()
	if err != nil {
		return f.fs.fail("read", f.path, err)
	}
	f.data = data
	f.loaded = true
	return nil
}

// fillAttr fills a from the buffered state. The caller holds f.mu.
func (f *File) fillAttr(a *fuse.Attr) {
	mtime := f.modified
	if mtime.IsZero() {
		mtime = f.fs.mounted
	}
	a.Inode = f.fs.inodes.Inode(f.path)
	a.Mode = 0o644
	a.Size = uint64(len(f.data))
	a.Mtime = mtime
	a.Ctime = mtime
	a.Atime = time.Now()
}

// Attr returns file attributes
func (f *File) Attr(ctx context.Context, a *fuse.Attr) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.load(); err != nil {
		return err
	}
	f.fillAttr(a)
	return nil
}

// ReadAll reads the entire file content
func (f *File) ReadAll(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.load(); err != nil {
		return nil, err
	}
	return f.data, nil
}

// Write writes data to the file
func (f *File) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.load(); err != nil {
		return err
	}
	newLen := int(req.Offset) + len(req.Data)
	if newLen > len(f.data) {
		newData := make([]byte, newLen)
		copy(newData, f.data)
		f.data = newData
	}
	copy(f.data[req.Offset:], req.Data)
	resp.Size = len(req.Data)

	f.modified = time.Now()
	f.dirty = true
	return nil
}

// Flush writes buffered changes back to the file system
func (f *File) Flush(ctx context.Context, req *fuse.FlushRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flush()
}

func (f *File) flush() error {
	if !f.dirty {
		return nil
	}
	f.fs.mu.Lock()
	err := vfs.WriteFile(f.fs.root, f.path, f.data)
	f.fs.mu.Unlock()
	if err != nil {
		return f.fs.fail("flush", f.path, err)
	}
	f.dirty = false
	return nil
}

// Fsync forces synchronization
func (f *File) Fsync(ctx context.Context, req *fuse.FsyncRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flush()
}

// Setattr sets file attributes
func (f *File) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if req.Valid.Size() {
		if err := f.load(); err != nil {
			return err
		}
		if req.Size < uint64(len(f.data)) {
			f.data = f.data[:req.Size]
		} else if req.Size > uint64(len(f.data)) {
			newData := make([]byte, req.Size)
			copy(newData, f.data)
			f.data = newData
		}
		f.modified = time.Now()
		f.dirty = true
	}

	if req.Valid.Mtime() {
		f.modified = req.Mtime
	}

	f.fillAttr(&resp.Attr)
	return nil
}

// Forget drops the buffered content once the kernel no longer references f
func (f *File) Forget() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dirty {
		if err := f.flush(); err != nil {
			return
		}
	}
	f.data = nil
	f.loaded = false
}
