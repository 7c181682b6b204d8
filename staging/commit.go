package staging

import (
	"errors"
	"fmt"
	"sort"

	"github.com/synfig/synfig-vfs/vfs"
)

// SaveChanges applies every pending change to the target and drains the
// pending map. Changes that could not be applied stay pending and the call
// returns vfs.ErrPartialCommit; calling it again retries them.
func (o *Overlay) SaveChanges() error {
	if o.target == nil {
		return fmt.Errorf("commit: no target: %w", vfs.ErrClosed)
	}
	err := o.commit(o.target, o.entries, true)
	o.autosave()
	return err
}

// SaveChangesCopy applies the pending changes to target without consuming
// them: the pending map and the temporary files are left as they are.
func (o *Overlay) SaveChangesCopy(target vfs.FileSystem) error {
	return o.commit(target, o.cloneEntries(), false)
}

func (o *Overlay) cloneEntries() map[string]*Entry {
	out := make(map[string]*Entry, len(o.entries))
	for name, e := range o.entries {
		c := *e
		out[name] = &c
	}
	return out
}

func byDepth(names []string, deepestFirst bool) {
	sort.Slice(names, func(i, j int) bool {
		di, dj := vfs.Depth(names[i]), vfs.Depth(names[j])
		if di != dj {
			if deepestFirst {
				return di > dj
			}
			return di < dj
		}
		return names[i] < names[j]
	})
}

// conflicts reports whether e has to clear what target holds at its name
// before it can be applied.
func conflicts(target vfs.FileSystem, e *Entry) bool {
	switch {
	case e.IsRemoved:
		return true
	case e.IsDirectory:
		return target.IsFile(e.Name)
	default:
		return target.IsDirectory(e.Name)
	}
}

// commit resolves entries against target in three ordered passes: removals
// and type conflicts deepest first, then directories parents first, then
// files. Resolved entries are deleted from entries.
func (o *Overlay) commit(target vfs.FileSystem, entries map[string]*Entry, removeTemp bool) error {
	var failures []error

	var removals []string
	for name, e := range entries {
		if conflicts(target, e) {
			removals = append(removals, name)
		}
	}
	byDepth(removals, true)
	for _, name := range removals {
		e := entries[name]
		if vfs.Exists(target, name) {
			if err := target.FileRemove(name); err != nil {
				o.logger.Debug("commit: remove failed", "name", name, "error", err)
				failures = append(failures, err)
				continue
			}
		}
		if e.IsRemoved {
			delete(entries, name)
		}
	}

	var dirs []string
	for name, e := range entries {
		if e.IsDirectory && !e.IsRemoved {
			dirs = append(dirs, name)
		}
	}
	byDepth(dirs, false)
	for _, name := range dirs {
		if err := vfs.DirectoryCreateRecursive(target, name); err != nil {
			o.logger.Debug("commit: create directory failed", "name", name, "error", err)
			failures = append(failures, err)
			continue
		}
		delete(entries, name)
	}

	var files []string
	for name, e := range entries {
		if !e.IsDirectory && !e.IsRemoved {
			files = append(files, name)
		}
	}
	sort.Strings(files)
	for _, name := range files {
		e := entries[name]
		if err := o.commitFile(target, e); err != nil {
			o.logger.Debug("commit: copy failed", "name", name, "error", err)
			failures = append(failures, err)
			continue
		}
		if removeTemp {
			if err := o.temp.FileRemove(e.TmpPath); err != nil {
				o.logger.Debug("commit: failed to remove temporary file", "path", e.TmpPath, "error", err)
			}
		}
		delete(entries, name)
	}

	if len(entries) > 0 {
		return fmt.Errorf("%d changes left: %w", len(entries), errors.Join(append([]error{vfs.ErrPartialCommit}, failures...)...))
	}
	return nil
}

func (o *Overlay) commitFile(target vfs.FileSystem, e *Entry) error {
	if e.TmpPath == "" {
		return fmt.Errorf("commit %q: no backing file: %w", e.Name, vfs.ErrNotFound)
	}
	if err := vfs.DirectoryCreateRecursive(target, vfs.Dir(e.Name)); err != nil {
		return err
	}
	return vfs.Copy(o.temp, e.TmpPath, target, e.Name)
}

// DiscardChanges drops every pending change and the metadata, deletes the
// temporary files and removes the manifest.
func (o *Overlay) DiscardChanges() error {
	var errs []error
	for _, e := range o.entries {
		if e.TmpPath == "" || !o.temp.IsFile(e.TmpPath) {
			continue
		}
		if err := o.temp.FileRemove(e.TmpPath); err != nil {
			errs = append(errs, err)
		}
	}
	o.entries = make(map[string]*Entry)
	o.meta = make(map[string]string)
	if err := o.removeManifest(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
