package container

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/spf13/afero"
	"github.com/synfig/synfig-vfs/vfs"
)

// Entry describes one file or directory stored in a container.
type Entry struct {
	Name             string
	IsDirectory      bool
	DirectorySaved   bool
	Size             int64 // bytes stored in the container
	UncompressedSize int64
	HeaderOffset     int64
	Compression      uint16
	CRC32            uint32
	Modified         time.Time
}

// Container is an append-only archive that implements vfs.FileSystem.
//
// Every Save appends the directories created since the previous save, a
// fresh central directory and a trailer whose comment records where the
// previous version ended. Bytes before the last confirmed trailer are never
// rewritten, so every saved version stays readable through OpenFromHistory.
//
// At most one read or write stream may be open at a time. A Container is not
// safe for concurrent use.
type Container struct {
	fs       afero.Fs
	readOnly bool
	logger   *slog.Logger

	path    string
	file    afero.File
	entries map[string]*Entry

	// end is where the next append goes; prevStorageSize is the end of the
	// last confirmed trailer.
	end             int64
	prevStorageSize int64
	changed         bool

	compression uint16
	stream      io.Closer
	streamName  string
}

// Option configures a Container.
type Option func(*Container)

// WithFs stores the container on fsys instead of the OS file system.
func WithFs(fsys afero.Fs) Option {
	return func(c *Container) {
		c.fs = fsys
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		c.logger = logger
	}
}

// WithCompression sets the method GetWriteStream stores new files with.
func WithCompression(method uint16) Option {
	return func(c *Container) {
		c.compression = method
	}
}

// ReadOnly opens the storage read-only. Every mutation fails with
// vfs.ErrReadOnly.
func ReadOnly() Option {
	return func(c *Container) {
		c.readOnly = true
	}
}

// New returns a closed container.
func New(opts ...Option) *Container {
	c := &Container{
		fs:     afero.NewOsFs(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create truncates or creates path and opens it as an empty container.
func (c *Container) Create(path string) error {
	if c.IsOpen() {
		return fmt.Errorf("create %s: %w", path, vfs.ErrBusy)
	}
	if c.readOnly {
		return fmt.Errorf("create %s: %w", path, vfs.ErrReadOnly)
	}
	f, err := c.fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	c.path = path
	c.file = f
	c.entries = make(map[string]*Entry)
	c.end = 0
	c.prevStorageSize = 0
	c.changed = true
	return nil
}

// Open opens the newest version stored at path.
func (c *Container) Open(path string) error {
	return c.OpenFromHistory(path, 0)
}

// OpenFromHistory opens the version of the container that ends at
// truncateToSize, or the newest version when truncateToSize is zero or not
// smaller than the file. New data is still appended at the real end of the
// file, so saving a reopened old version records it as the newest one.
func (c *Container) OpenFromHistory(path string, truncateToSize int64) error {
	if c.IsOpen() {
		return fmt.Errorf("open %s: %w", path, vfs.ErrBusy)
	}

	flag := os.O_RDWR
	if c.readOnly {
		flag = os.O_RDONLY
	}
	f, err := c.fs.OpenFile(path, flag, 0)
	if err != nil {
		return err
	}

	entries, actualSize, err := c.load(f, truncateToSize)
	if err != nil {
		f.Close()
		return fmt.Errorf("open %s: %w", path, err)
	}

	c.path = path
	c.file = f
	c.entries = entries
	c.end = actualSize
	c.prevStorageSize = actualSize
	c.changed = false
	return nil
}

func (c *Container) load(f afero.File, truncateToSize int64) (map[string]*Entry, int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	actualSize := fi.Size()
	if actualSize < endOfCentralLen {
		return nil, 0, fmt.Errorf("file smaller than a trailer record: %w", vfs.ErrCorrupt)
	}
	size := actualSize
	if truncateToSize > 0 && truncateToSize < size {
		size = truncateToSize
	}

	window, err := readWindow(f, size)
	if err != nil {
		return nil, 0, err
	}
	trailer, _, ok := findTrailer(window)
	if !ok {
		return nil, 0, fmt.Errorf("no trailer before offset %d: %w", size, vfs.ErrCorrupt)
	}
	if int64(trailer.offset) > size {
		return nil, 0, fmt.Errorf("central directory offset %d past %d: %w", trailer.offset, size, vfs.ErrCorrupt)
	}

	entries := make(map[string]*Entry)
	r := bufio.NewReader(io.NewSectionReader(f, int64(trailer.offset), size-int64(trailer.offset)))
	raw := make([]byte, centralHeaderLen)
	for i := 0; i < int(trailer.currentRecords); i++ {
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, 0, fmt.Errorf("central directory record %d: %w", i, vfs.ErrCorrupt)
		}
		var h centralHeader
		if err := h.unmarshal(raw); err != nil {
			return nil, 0, err
		}
		tail := make([]byte, int(h.nameLen)+int(h.extraLen)+int(h.commentLen))
		if _, err := io.ReadFull(r, tail); err != nil {
			return nil, 0, fmt.Errorf("central directory record %d: %w", i, vfs.ErrCorrupt)
		}
		if h.nameLen == 0 || h.flags&unsupportedFlags != 0 {
			c.logger.Debug("skipping central directory record", "index", i, "flags", h.flags)
			continue
		}

		name := string(tail[:h.nameLen])
		e := &Entry{
			Size:             int64(h.compressedSize),
			UncompressedSize: int64(h.uncompressedSize),
			HeaderOffset:     int64(h.offset),
			Compression:      h.method,
			CRC32:            h.crc32,
			Modified:         timeFromDOS(h.modTime, h.modDate),
		}
		if name[len(name)-1] == '/' {
			name = name[:len(name)-1]
			e.IsDirectory = true
			e.DirectorySaved = true
		}
		e.Name = vfs.FixSlashes(name)
		entries[e.Name] = e
	}

	// directories implied by nested names but never stored
	now := time.Now()
	for name := range entries {
		for dir := vfs.Dir(name); dir != ""; dir = vfs.Dir(dir) {
			if _, ok := entries[dir]; ok {
				break
			}
			entries[dir] = &Entry{Name: dir, IsDirectory: true, Modified: now}
		}
	}

	return entries, actualSize, nil
}

// IsOpen reports whether the container has storage attached.
func (c *Container) IsOpen() bool {
	return c.file != nil
}

// Path returns the storage path of an open container.
func (c *Container) Path() string {
	return c.path
}

// Fs returns the file system the storage lives on.
func (c *Container) Fs() afero.Fs {
	return c.fs
}

// StorageSize returns the offset at which the last confirmed version ends.
func (c *Container) StorageSize() int64 {
	return c.prevStorageSize
}

// Changed reports whether the container holds modifications that Save would
// persist.
func (c *Container) Changed() bool {
	return c.changed
}

// Touch marks the container as modified, so that the next Save records a
// new version even when nothing else changed.
func (c *Container) Touch() {
	if c.IsOpen() && !c.readOnly {
		c.changed = true
	}
}

// Entries returns a copy of every entry sorted by name.
func (c *Container) Entries() []Entry {
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Entry returns the entry stored under name.
func (c *Container) Entry(name string) (Entry, bool) {
	e, ok := c.entries[vfs.FixSlashes(name)]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (c *Container) appendBytes(p []byte) (int, error) {
	if c.end+int64(len(p)) > maxOffset {
		return 0, fmt.Errorf("container exceeds %d bytes: %w", int64(maxOffset), vfs.ErrUnsupported)
	}
	n, err := c.file.WriteAt(p, c.end)
	c.end += int64(n)
	return n, err
}

// Save persists the current state as a new version. It is a no-op when
// nothing changed and fails with vfs.ErrBusy while a stream is open.
func (c *Container) Save() error {
	if !c.IsOpen() {
		return vfs.ErrClosed
	}
	if c.stream != nil {
		return fmt.Errorf("save %s: %w", c.path, vfs.ErrBusy)
	}
	if !c.changed {
		return nil
	}
	if c.readOnly {
		return fmt.Errorf("save %s: %w", c.path, vfs.ErrReadOnly)
	}
	if len(c.entries) > maxRecords {
		return fmt.Errorf("save %s: %d entries: %w", c.path, len(c.entries), vfs.ErrUnsupported)
	}

	entries := c.Entries()

	// local headers of directories created since the last save
	for _, e := range entries {
		if !e.IsDirectory || e.DirectorySaved {
			continue
		}
		modTime, modDate := dosTimestamp(e.Modified)
		h := localHeader{
			version: zipVersion,
			modTime: modTime,
			modDate: modDate,
			nameLen: uint16(len(e.Name) + 1),
		}
		offset := c.end
		if _, err := c.appendBytes(h.marshal()); err != nil {
			return fmt.Errorf("save %s: %w", c.path, err)
		}
		if _, err := c.appendBytes([]byte(e.Name + "/")); err != nil {
			return fmt.Errorf("save %s: %w", c.path, err)
		}
		stored := c.entries[e.Name]
		stored.HeaderOffset = offset
		stored.DirectorySaved = true
	}

	centralOffset := c.end
	for _, name := range sortedNames(c.entries) {
		e := c.entries[name]
		storedName := e.Name
		if e.IsDirectory {
			storedName += "/"
		}
		modTime, modDate := dosTimestamp(e.Modified)
		h := centralHeader{
			version:          zipVersion,
			minVersion:       zipVersion,
			method:           e.Compression,
			modTime:          modTime,
			modDate:          modDate,
			crc32:            e.CRC32,
			compressedSize:   uint32(e.Size),
			uncompressedSize: uint32(e.UncompressedSize),
			nameLen:          uint16(len(storedName)),
			offset:           uint32(e.HeaderOffset),
		}
		if _, err := c.appendBytes(h.marshal()); err != nil {
			return fmt.Errorf("save %s: %w", c.path, err)
		}
		if _, err := c.appendBytes([]byte(storedName)); err != nil {
			return fmt.Errorf("save %s: %w", c.path, err)
		}
	}

	comment, err := encodeHistory(c.prevStorageSize)
	if err != nil {
		return err
	}
	trailer := endOfCentral{
		currentRecords: uint16(len(c.entries)),
		totalRecords:   uint16(len(c.entries)),
		size:           uint32(c.end - centralOffset),
		offset:         uint32(centralOffset),
		commentLen:     uint16(len(comment)),
	}
	if _, err := c.appendBytes(trailer.marshal()); err != nil {
		return fmt.Errorf("save %s: %w", c.path, err)
	}
	if _, err := c.appendBytes([]byte(comment)); err != nil {
		return fmt.Errorf("save %s: %w", c.path, err)
	}

	c.prevStorageSize = c.end
	c.changed = false
	c.logger.Debug("container saved", "path", c.path, "storage_size", c.end, "entries", len(c.entries))
	return nil
}

// Close closes any open stream and detaches the storage. Unsaved changes
// are dropped; call Save first to keep them.
func (c *Container) Close() error {
	if !c.IsOpen() {
		return nil
	}
	var streamErr error
	if c.stream != nil {
		streamErr = c.stream.Close()
	}
	err := c.file.Close()
	c.file = nil
	c.path = ""
	c.entries = nil
	c.end = 0
	c.prevStorageSize = 0
	c.changed = false
	c.stream = nil
	c.streamName = ""
	if streamErr != nil {
		return streamErr
	}
	return err
}

func sortedNames(entries map[string]*Entry) []string {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
