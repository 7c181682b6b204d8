package vfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/afero"
)

// Native is the leaf store backed by an afero file system: the real OS, a
// directory jail or an in-memory tree.
type Native struct {
	fs afero.Fs
}

// NewNative wraps an afero file system.
func NewNative(fsys afero.Fs) *Native {
	return &Native{fs: fsys}
}

// NewOSNative returns a store rooted at root on the OS file system. An empty
// root serves the process working directory.
func NewOSNative(root string) *Native {
	osFs := afero.NewOsFs()
	if root == "" {
		return NewNative(osFs)
	}
	return NewNative(afero.NewBasePathFs(osFs, root))
}

// Fs returns the underlying afero file system.
func (n *Native) Fs() afero.Fs {
	return n.fs
}

func (n *Native) real(name string) string {
	name = FixSlashes(name)
	if name == "" {
		return "."
	}
	return name
}

func (n *Native) stat(name string) (os.FileInfo, bool) {
	fi, err := n.fs.Stat(n.real(name))
	if err != nil {
		return nil, false
	}
	return fi, true
}

func (n *Native) IsFile(name string) bool {
	fi, ok := n.stat(name)
	return ok && fi.Mode().IsRegular()
}

func (n *Native) IsDirectory(name string) bool {
	fi, ok := n.stat(name)
	return ok && fi.IsDir()
}

func (n *Native) DirectoryCreate(name string) error {
	if n.IsDirectory(name) {
		return nil
	}
	if n.IsFile(name) {
		return fmt.Errorf("create directory %q: %w", name, ErrExpectedDirectory)
	}
	if !n.IsDirectory(Dir(FixSlashes(name))) {
		return fmt.Errorf("create directory %q: parent: %w", name, ErrNotFound)
	}
	return n.fs.Mkdir(n.real(name), 0o755)
}

func (n *Native) DirectoryScan(name string) ([]string, error) {
	if !n.IsDirectory(name) {
		return nil, fmt.Errorf("scan %q: %w", name, ErrExpectedDirectory)
	}
	infos, err := afero.ReadDir(n.fs, n.real(name))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, fi := range infos {
		names = append(names, fi.Name())
	}
	return names, nil
}

func (n *Native) FileRemove(name string) error {
	fi, ok := n.stat(name)
	if !ok {
		return fmt.Errorf("remove %q: %w", name, ErrNotFound)
	}
	if fi.IsDir() {
		empty, err := afero.IsEmpty(n.fs, n.real(name))
		if err != nil {
			return err
		}
		if !empty {
			return fmt.Errorf("remove %q: %w", name, ErrNotEmpty)
		}
	}
	return n.fs.Remove(n.real(name))
}

func (n *Native) FileRename(from, to string) error {
	if !Exists(n, from) {
		return fmt.Errorf("rename %q: %w", from, ErrNotFound)
	}
	return n.fs.Rename(n.real(from), n.real(to))
}

func (n *Native) GetReadStream(name string) (ReadStream, error) {
	f, err := n.fs.Open(n.real(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %q: %w", name, ErrNotFound)
		}
		return nil, err
	}
	if fi, err := f.Stat(); err == nil && fi.IsDir() {
		f.Close()
		return nil, fmt.Errorf("open %q: %w", name, ErrExpectedFile)
	}
	return NewReadStream(f.Read, f.Close), nil
}

func (n *Native) GetWriteStream(name string) (WriteStream, error) {
	if n.IsDirectory(name) {
		return nil, fmt.Errorf("write %q: %w", name, ErrExpectedFile)
	}
	if !n.IsDirectory(Dir(FixSlashes(name))) {
		return nil, fmt.Errorf("write %q: parent: %w", name, ErrNotFound)
	}
	f, err := n.fs.OpenFile(n.real(name), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return NewWriteStream(f.Write, f.Close), nil
}
