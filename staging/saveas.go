package staging

import (
	"fmt"
	"io"
	"os"

	"github.com/synfig/synfig-vfs/container"
	"github.com/synfig/synfig-vfs/vfs"
)

// MountFunc builds the FileSystem the pending changes are committed through
// once the container they belong in is open. It usually registers the
// container in a Group at the "#" marker.
type MountFunc func(*container.Container) vfs.FileSystem

// SaveAs stores the pending changes in a container at dest.
//
// The last saved version of src is copied to dest first, or an empty
// container is created there when src is not open or was never saved. The
// changes are then committed through mount and the new container is saved.
// Unless asCopy is set, the pending changes are consumed and the overlay
// targets the new stack afterwards. The caller owns
// the returned container. When dest is the path of src the changes are
// committed in place and src itself is returned.
func (o *Overlay) SaveAs(src *container.Container, dest string, asCopy bool, mount MountFunc) (*container.Container, error) {
	if src.IsOpen() && dest == src.Path() {
		fsys := mount(src)
		var err error
		if asCopy {
			err = o.SaveChangesCopy(fsys)
		} else {
			o.target = fsys
			err = o.SaveChanges()
		}
		if err != nil {
			return nil, err
		}
		return src, src.Save()
	}

	dst := container.New(container.WithFs(src.Fs()), container.WithLogger(o.logger))
	if src.IsOpen() && src.StorageSize() > 0 {
		if err := copyContainer(src, dest); err != nil {
			return nil, err
		}
		if err := dst.Open(dest); err != nil {
			return nil, err
		}
	} else if err := dst.Create(dest); err != nil {
		return nil, err
	}

	fsys := mount(dst)
	if err := o.SaveChangesCopy(fsys); err != nil {
		dst.Close()
		return nil, err
	}
	// a copy without changes still gets a trailer of its own
	dst.Touch()
	if err := dst.Save(); err != nil {
		dst.Close()
		return nil, err
	}

	if !asCopy {
		for _, e := range o.entries {
			if e.TmpPath != "" && o.temp.IsFile(e.TmpPath) {
				if err := o.temp.FileRemove(e.TmpPath); err != nil {
					o.logger.Debug("failed to remove temporary file", "path", e.TmpPath, "error", err)
				}
			}
		}
		o.entries = make(map[string]*Entry)
		o.target = fsys
		o.autosave()
	}
	return dst, nil
}

func copyContainer(src *container.Container, dest string) error {
	rs, err := src.OpenReadWhole()
	if err != nil {
		return err
	}
	defer rs.Close()

	f, err := src.Fs().OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, rs); err != nil {
		f.Close()
		return fmt.Errorf("copy container to %s: %w", dest, err)
	}
	return f.Close()
}
