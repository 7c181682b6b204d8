package vfs

import (
	"fmt"
	"io"
	"sort"
)

// Copy pumps the content of srcName in src into dstName in dst. When src and
// dst are the same store the content is buffered in memory first, since a
// store may allow only one open stream at a time.
func Copy(src FileSystem, srcName string, dst FileSystem, dstName string) error {
	if src == dst {
		data, err := ReadFile(src, srcName)
		if err != nil {
			return fmt.Errorf("copy %q: %w", srcName, err)
		}
		if err := WriteFile(dst, dstName, data); err != nil {
			return fmt.Errorf("copy to %q: %w", dstName, err)
		}
		return nil
	}

	rs, err := src.GetReadStream(srcName)
	if err != nil {
		return fmt.Errorf("copy %q: %w", srcName, err)
	}
	defer rs.Close()

	ws, err := dst.GetWriteStream(dstName)
	if err != nil {
		return fmt.Errorf("copy to %q: %w", dstName, err)
	}
	if _, err := io.Copy(ws, rs); err != nil {
		ws.Close()
		return fmt.Errorf("copy %q to %q: %w", srcName, dstName, err)
	}
	if err := ws.Close(); err != nil {
		return fmt.Errorf("copy to %q: %w", dstName, err)
	}
	return rs.Close()
}

// CopyRecursive copies a file or a whole directory tree.
func CopyRecursive(src FileSystem, srcName string, dst FileSystem, dstName string) error {
	if src.IsFile(srcName) {
		return Copy(src, srcName, dst, dstName)
	}
	if !src.IsDirectory(srcName) {
		return fmt.Errorf("copy %q: %w", srcName, ErrNotFound)
	}
	if err := DirectoryCreateRecursive(dst, dstName); err != nil {
		return err
	}
	names, err := src.DirectoryScan(srcName)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := CopyRecursive(src, Join(srcName, name), dst, Join(dstName, name)); err != nil {
			return err
		}
	}
	return nil
}

// RemoveRecursive removes a file or a directory with everything below it.
// Removing a nonexistent name is not an error.
func RemoveRecursive(fsys FileSystem, name string) error {
	if fsys.IsDirectory(name) {
		names, err := fsys.DirectoryScan(name)
		if err != nil {
			return err
		}
		for _, child := range names {
			if err := RemoveRecursive(fsys, Join(name, child)); err != nil {
				return err
			}
		}
	} else if !fsys.IsFile(name) {
		return nil
	}
	return fsys.FileRemove(name)
}

// DirectoryCreateRecursive creates name and every missing parent.
func DirectoryCreateRecursive(fsys FileSystem, name string) error {
	name = FixSlashes(name)
	if fsys.IsDirectory(name) {
		return nil
	}
	if fsys.IsFile(name) {
		return fmt.Errorf("create directory %q: %w", name, ErrExpectedDirectory)
	}
	if parent := Dir(name); parent != name {
		if err := DirectoryCreateRecursive(fsys, parent); err != nil {
			return err
		}
	}
	return fsys.DirectoryCreate(name)
}

// Walk calls fn for every file and directory below root in lexical order,
// root excluded.
func Walk(fsys FileSystem, root string, fn func(name string, isDir bool) error) error {
	names, err := fsys.DirectoryScan(root)
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, n := range names {
		full := Join(root, n)
		isDir := fsys.IsDirectory(full)
		if err := fn(full, isDir); err != nil {
			return err
		}
		if isDir {
			if err := Walk(fsys, full, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
