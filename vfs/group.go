package vfs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Mount is one entry of a Group routing table.
type Mount struct {
	Prefix       string
	Target       FileSystem
	TargetPrefix string

	// RequiresBoundary demands that the prefix is followed by a separator or
	// the end of the name. Markers such as "#" are registered without it so
	// that "#img/a.png" routes on the bare prefix.
	RequiresBoundary bool
}

// Group composes several stores into one namespace by longest prefix match.
type Group struct {
	mounts []Mount
}

// NewGroup returns a Group that routes everything not matched by a later
// Register call to root. root may be nil.
func NewGroup(root FileSystem) *Group {
	g := &Group{}
	if root != nil {
		g.Register("", root, "", false)
	}
	return g
}

// Register mounts target at prefix. Inner names are built by stripping prefix
// and prepending targetPrefix. A second registration of the same prefix
// replaces the first.
func (g *Group) Register(prefix string, target FileSystem, targetPrefix string, requiresBoundary bool) {
	prefix = FixSlashes(prefix)
	g.Unregister(prefix)
	g.mounts = append(g.mounts, Mount{
		Prefix:           prefix,
		Target:           target,
		TargetPrefix:     FixSlashes(targetPrefix),
		RequiresBoundary: requiresBoundary,
	})
	sort.SliceStable(g.mounts, func(i, j int) bool {
		return len(g.mounts[i].Prefix) > len(g.mounts[j].Prefix)
	})
}

// Unregister removes the mount registered at prefix, if any.
func (g *Group) Unregister(prefix string) {
	prefix = FixSlashes(prefix)
	for i, m := range g.mounts {
		if m.Prefix == prefix {
			g.mounts = append(g.mounts[:i], g.mounts[i+1:]...)
			return
		}
	}
}

// Mounts returns the routing table, most specific prefix first.
func (g *Group) Mounts() []Mount {
	return append([]Mount(nil), g.mounts...)
}

func (m Mount) match(name string) (string, bool) {
	if !strings.HasPrefix(name, m.Prefix) {
		return "", false
	}
	rest := name[len(m.Prefix):]
	if m.RequiresBoundary && m.Prefix != "" && rest != "" && rest[0] != '/' {
		return "", false
	}
	return Join(m.TargetPrefix, strings.TrimLeft(rest, "/")), true
}

// Find resolves name to the store that serves it and the name inside that
// store.
func (g *Group) Find(name string) (FileSystem, string, bool) {
	name = FixSlashes(name)
	for _, m := range g.mounts {
		if inner, ok := m.match(name); ok {
			return m.Target, inner, true
		}
	}
	return nil, "", false
}

func (g *Group) IsFile(name string) bool {
	fsys, inner, ok := g.Find(name)
	return ok && fsys.IsFile(inner)
}

func (g *Group) IsDirectory(name string) bool {
	if FixSlashes(name) == "" {
		return true
	}
	fsys, inner, ok := g.Find(name)
	return ok && fsys.IsDirectory(inner)
}

func (g *Group) DirectoryCreate(name string) error {
	fsys, inner, ok := g.Find(name)
	if !ok {
		return fmt.Errorf("create directory %q: %w", name, ErrNotFound)
	}
	return fsys.DirectoryCreate(inner)
}

// DirectoryScan lists the resolved store and adds the mount points whose
// parent is the scanned directory.
func (g *Group) DirectoryScan(name string) ([]string, error) {
	name = FixSlashes(name)
	set := make(map[string]struct{})

	fsys, inner, ok := g.Find(name)
	var scanErr error
	if ok {
		names, err := fsys.DirectoryScan(inner)
		if err != nil {
			scanErr = err
		}
		for _, n := range names {
			set[n] = struct{}{}
		}
	} else {
		scanErr = fmt.Errorf("scan %q: %w", name, ErrNotFound)
	}

	found := false
	for _, m := range g.mounts {
		if m.Prefix == "" || m.Prefix == name || Dir(m.Prefix) != name {
			continue
		}
		if !m.Target.IsDirectory(m.TargetPrefix) {
			continue
		}
		set[Base(m.Prefix)] = struct{}{}
		found = true
	}

	if scanErr != nil && !found && name != "" {
		return nil, scanErr
	}

	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// FileRemove removes name from its store. Names that do not exist, or that no
// mount serves, are ignored.
func (g *Group) FileRemove(name string) error {
	fsys, inner, ok := g.Find(name)
	if !ok || !Exists(fsys, inner) {
		return nil
	}
	return fsys.FileRemove(inner)
}

// FileRename renames within one store, and falls back to copy and remove
// when the names resolve to different stores or the store cannot rename.
func (g *Group) FileRename(from, to string) error {
	src, srcName, ok := g.Find(from)
	if !ok {
		return fmt.Errorf("rename %q: %w", from, ErrNotFound)
	}
	dst, dstName, ok := g.Find(to)
	if !ok {
		return fmt.Errorf("rename to %q: %w", to, ErrNotFound)
	}
	if src == dst {
		if srcName == "" || strings.HasPrefix(dstName, srcName+"/") {
			return fmt.Errorf("rename %q into itself: %w", from, ErrUnsupported)
		}
		err := src.FileRename(srcName, dstName)
		if !errors.Is(err, ErrUnsupported) {
			return err
		}
	}
	if err := CopyRecursive(src, srcName, dst, dstName); err != nil {
		return err
	}
	return RemoveRecursive(src, srcName)
}

func (g *Group) GetReadStream(name string) (ReadStream, error) {
	fsys, inner, ok := g.Find(name)
	if !ok {
		return nil, fmt.Errorf("open %q: %w", name, ErrNotFound)
	}
	return fsys.GetReadStream(inner)
}

func (g *Group) GetWriteStream(name string) (WriteStream, error) {
	fsys, inner, ok := g.Find(name)
	if !ok {
		return nil, fmt.Errorf("write %q: %w", name, ErrNotFound)
	}
	return fsys.GetWriteStream(inner)
}
