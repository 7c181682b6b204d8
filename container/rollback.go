package container

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/synfig/synfig-vfs/vfs"
)

// FindVersion returns the history record that ends at storageSize.
func FindVersion(fsys afero.Fs, path string, storageSize int64) (HistoryRecord, error) {
	records, err := ReadHistory(fsys, path)
	if err != nil {
		return HistoryRecord{}, err
	}
	for _, r := range records {
		if r.StorageSize == storageSize {
			return r, nil
		}
	}
	return HistoryRecord{}, fmt.Errorf("no version of %s ends at %d: %w", path, storageSize, vfs.ErrNotFound)
}

// Rollback makes the version ending at storageSize the newest one.
//
// By default the old version is re-saved at the end of the storage, so the
// versions in between stay reachable through the history. With inPlace the
// storage is truncated to storageSize and everything after it is lost.
func Rollback(fsys afero.Fs, path string, storageSize int64, inPlace bool, opts ...Option) error {
	if _, err := FindVersion(fsys, path, storageSize); err != nil {
		return err
	}

	if inPlace {
		f, err := fsys.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			return err
		}
		if err := f.Truncate(storageSize); err != nil {
			f.Close()
			return fmt.Errorf("truncate %s to %d: %w", path, storageSize, err)
		}
		return f.Close()
	}

	c := New(append([]Option{WithFs(fsys)}, opts...)...)
	if err := c.OpenFromHistory(path, storageSize); err != nil {
		return err
	}
	c.Touch()
	if err := c.Save(); err != nil {
		c.Close()
		return err
	}
	return c.Close()
}

// ExportVersion writes the bytes of the version ending at storageSize into
// a new container at dest.
func ExportVersion(fsys afero.Fs, path string, storageSize int64, dest string) error {
	if _, err := FindVersion(fsys, path, storageSize); err != nil {
		return err
	}
	src, err := fsys.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := fsys.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, io.NewSectionReader(src, 0, storageSize)); err != nil {
		dst.Close()
		return fmt.Errorf("export %s: %w", dest, err)
	}
	return dst.Close()
}

// Verify reads every file of the open version and checks its checksum. All
// failures are reported together.
func (c *Container) Verify() error {
	if !c.IsOpen() {
		return vfs.ErrClosed
	}
	var errs []error
	for _, e := range c.Entries() {
		if e.IsDirectory {
			continue
		}
		rs, err := c.GetReadStream(e.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		n, err := io.Copy(io.Discard, rs)
		if cerr := rs.Close(); err == nil {
			err = cerr
		}
		if err == nil && n != e.UncompressedSize {
			err = fmt.Errorf("read %q: %d bytes, want %d: %w", e.Name, n, e.UncompressedSize, vfs.ErrCorrupt)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
