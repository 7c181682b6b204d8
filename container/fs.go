package container

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/synfig/synfig-vfs/vfs"
)

var _ vfs.FileSystem = (*Container)(nil)

func (c *Container) checkMutable(op, name string) error {
	if !c.IsOpen() {
		return fmt.Errorf("%s %q: %w", op, name, vfs.ErrClosed)
	}
	if c.readOnly {
		return fmt.Errorf("%s %q: %w", op, name, vfs.ErrReadOnly)
	}
	return nil
}

// checkStoredName rejects absolute names and names with a ".." segment.
// Extracting such an entry with a ZIP tool would write outside the target
// directory.
func checkStoredName(op, name string) error {
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return fmt.Errorf("%s %q: absolute name: %w", op, name, vfs.ErrUnsupported)
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return fmt.Errorf("%s %q: parent segment: %w", op, name, vfs.ErrUnsupported)
		}
	}
	return nil
}

func (c *Container) holdStream(s io.Closer, name string) {
	c.stream = s
	c.streamName = name
}

func (c *Container) releaseStream() {
	c.stream = nil
	c.streamName = ""
}

func (c *Container) IsFile(name string) bool {
	if !c.IsOpen() {
		return false
	}
	e, ok := c.entries[vfs.FixSlashes(name)]
	return ok && !e.IsDirectory
}

func (c *Container) IsDirectory(name string) bool {
	if !c.IsOpen() {
		return false
	}
	name = vfs.FixSlashes(name)
	if name == "" {
		return true
	}
	e, ok := c.entries[name]
	return ok && e.IsDirectory
}

func (c *Container) DirectoryCreate(name string) error {
	name = vfs.FixSlashes(name)
	if err := c.checkMutable("create directory", name); err != nil {
		return err
	}
	if err := checkStoredName("create directory", name); err != nil {
		return err
	}
	if c.IsDirectory(name) {
		return nil
	}
	if c.IsFile(name) {
		return fmt.Errorf("create directory %q: %w", name, vfs.ErrExpectedDirectory)
	}
	if len(name) > maxDirName {
		return fmt.Errorf("create directory %q: %w", name, vfs.ErrNameTooLong)
	}
	if vfs.Base(name) == "" {
		return fmt.Errorf("create directory %q: empty name: %w", name, vfs.ErrNotFound)
	}
	if !c.IsDirectory(vfs.Dir(name)) {
		return fmt.Errorf("create directory %q: parent: %w", name, vfs.ErrNotFound)
	}

	c.entries[name] = &Entry{
		Name:        name,
		IsDirectory: true,
		Modified:    time.Now(),
	}
	c.changed = true
	return nil
}

func (c *Container) DirectoryScan(name string) ([]string, error) {
	name = vfs.FixSlashes(name)
	if !c.IsDirectory(name) {
		return nil, fmt.Errorf("scan %q: %w", name, vfs.ErrExpectedDirectory)
	}
	var names []string
	for entryName := range c.entries {
		if vfs.Dir(entryName) == name {
			names = append(names, vfs.Base(entryName))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (c *Container) hasChildren(dir string) bool {
	for name := range c.entries {
		if vfs.Dir(name) == dir {
			return true
		}
	}
	return false
}

// FileRemove drops a file or an empty directory from the directory. The
// stored bytes remain in the storage. Removing a missing name is not an
// error.
func (c *Container) FileRemove(name string) error {
	name = vfs.FixSlashes(name)
	if err := c.checkMutable("remove", name); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("remove root: %w", vfs.ErrUnsupported)
	}
	e, ok := c.entries[name]
	if !ok {
		return nil
	}
	if c.stream != nil && c.streamName == name {
		return fmt.Errorf("remove %q: %w", name, vfs.ErrBusy)
	}
	if e.IsDirectory && c.hasChildren(name) {
		return fmt.Errorf("remove %q: %w", name, vfs.ErrNotEmpty)
	}
	delete(c.entries, name)
	c.changed = true
	return nil
}

// FileRename moves a file or a directory tree to a new name. Only the
// directory changes; no stored data is copied.
func (c *Container) FileRename(from, to string) error {
	from, to = vfs.FixSlashes(from), vfs.FixSlashes(to)
	if err := c.checkMutable("rename", from); err != nil {
		return err
	}
	if c.stream != nil {
		return fmt.Errorf("rename %q: %w", from, vfs.ErrBusy)
	}
	e, ok := c.entries[from]
	if !ok {
		return fmt.Errorf("rename %q: %w", from, vfs.ErrNotFound)
	}
	if from == to {
		return nil
	}
	if err := checkStoredName("rename", to); err != nil {
		return err
	}
	if vfs.Exists(c, to) {
		return fmt.Errorf("rename %q to %q: %w", from, to, vfs.ErrExists)
	}
	if !c.IsDirectory(vfs.Dir(to)) {
		return fmt.Errorf("rename %q to %q: parent: %w", from, to, vfs.ErrNotFound)
	}

	moves := map[string]string{from: to}
	if e.IsDirectory {
		if strings.HasPrefix(to, from+"/") {
			return fmt.Errorf("rename %q into itself: %w", from, vfs.ErrUnsupported)
		}
		for name := range c.entries {
			if strings.HasPrefix(name, from+"/") {
				moves[name] = to + name[len(from):]
			}
		}
	}
	for oldName, newName := range moves {
		limit := maxFileName
		if c.entries[oldName].IsDirectory {
			limit = maxDirName
		}
		if len(newName) > limit {
			return fmt.Errorf("rename %q to %q: %w", oldName, newName, vfs.ErrNameTooLong)
		}
	}

	moved := make(map[string]*Entry, len(moves))
	for oldName, newName := range moves {
		entry := c.entries[oldName]
		delete(c.entries, oldName)
		entry.Name = newName
		moved[newName] = entry
	}
	for name, entry := range moved {
		c.entries[name] = entry
	}
	c.changed = true
	return nil
}

func (c *Container) GetReadStream(name string) (vfs.ReadStream, error) {
	name = vfs.FixSlashes(name)
	if !c.IsOpen() {
		return nil, fmt.Errorf("read %q: %w", name, vfs.ErrClosed)
	}
	if c.stream != nil {
		return nil, fmt.Errorf("read %q: %w", name, vfs.ErrBusy)
	}
	e, ok := c.entries[name]
	if !ok {
		return nil, fmt.Errorf("read %q: %w", name, vfs.ErrNotFound)
	}
	if e.IsDirectory {
		return nil, fmt.Errorf("read %q: %w", name, vfs.ErrExpectedFile)
	}
	rs, err := c.openEntry(e)
	if err != nil {
		return nil, err
	}
	c.holdStream(rs, name)
	return rs, nil
}

// GetWriteStream stores name with the container's default compression
// method. See OpenWriteCompressed.
func (c *Container) GetWriteStream(name string) (vfs.WriteStream, error) {
	return c.OpenWriteCompressed(name, c.compression)
}
