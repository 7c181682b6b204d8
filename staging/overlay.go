package staging

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/synfig/synfig-vfs/vfs"
)

const (
	namePrefix    = "synfig_"
	tempFileInfix = ".file_"

	// DefaultTag names sessions created without WithTag.
	DefaultTag = "filesystem"
)

// Entry is one pending change: a file backed by a temporary file, a
// directory, or a tombstone hiding whatever the target holds at Name.
type Entry struct {
	Name        string
	TmpPath     string // base name of the backing file inside the temp directory
	IsDirectory bool
	IsRemoved   bool
}

// Overlay buffers changes to a target FileSystem in temporary files until
// SaveChanges applies them.
//
// Every mutation rewrites a manifest next to the temporary files, so a
// session interrupted by a crash can be picked up again with Open. An
// Overlay is not safe for concurrent use.
type Overlay struct {
	target vfs.FileSystem

	fs      afero.Fs
	tempDir string
	temp    *vfs.Native
	tag     string
	id      string

	entries   map[string]*Entry
	meta      map[string]string
	keepFiles bool
	logger    *slog.Logger
}

var _ vfs.FileSystem = (*Overlay)(nil)

// Option configures an Overlay.
type Option func(*Overlay)

// WithTempFs keeps the temporary files and the manifest on fsys.
func WithTempFs(fsys afero.Fs) Option {
	return func(o *Overlay) {
		o.fs = fsys
	}
}

// WithTempDir sets the directory for temporary files. It defaults to
// SystemTempDir.
func WithTempDir(dir string) Option {
	return func(o *Overlay) {
		o.tempDir = dir
	}
}

// WithTag sets the tag embedded in every file name of the session.
func WithTag(tag string) Option {
	return func(o *Overlay) {
		o.tag = tag
	}
}

// WithKeepFiles makes Close leave the session on disk instead of
// discarding it.
func WithKeepFiles(keep bool) Option {
	return func(o *Overlay) {
		o.keepFiles = keep
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Overlay) {
		o.logger = logger
	}
}

func newOverlay(target vfs.FileSystem, opts []Option) (*Overlay, error) {
	o := &Overlay{
		target:  target,
		fs:      afero.NewOsFs(),
		tag:     DefaultTag,
		id:      uuid.NewString(),
		entries: make(map[string]*Entry),
		meta:    make(map[string]string),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tempDir == "" {
		o.tempDir = SystemTempDir()
	}
	if strings.ContainsAny(o.tag, "/\\") {
		return nil, fmt.Errorf("tag %q contains a separator: %w", o.tag, vfs.ErrUnsupported)
	}
	if err := o.fs.MkdirAll(o.tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}
	o.temp = vfs.NewNative(afero.NewBasePathFs(o.fs, o.tempDir))
	return o, nil
}

// New starts an empty session over target.
func New(target vfs.FileSystem, opts ...Option) (*Overlay, error) {
	return newOverlay(target, opts)
}

// Open resumes the session whose manifest is at manifestPath. The pending
// changes and the metadata are restored as they were last saved; target may
// be nil and set later with SetTarget, for instance from the metadata.
func Open(target vfs.FileSystem, manifestPath string, opts ...Option) (*Overlay, error) {
	base := filepath.Base(manifestPath)
	first := strings.IndexByte(base, '_')
	last := strings.LastIndexByte(base, '_')
	if !strings.HasPrefix(base, namePrefix) || first == last {
		return nil, fmt.Errorf("%s is not a session manifest: %w", base, vfs.ErrCorrupt)
	}

	opts = append(opts, WithTempDir(filepath.Dir(manifestPath)), WithTag(base[first+1:last]))
	o, err := newOverlay(target, opts)
	if err != nil {
		return nil, err
	}
	o.id = base[last+1:]

	doc, err := readManifest(o.fs, manifestPath)
	if err != nil {
		return nil, err
	}
	for _, m := range doc.Meta {
		o.meta[m.Key] = m.Value
	}
	for _, f := range doc.Files {
		name := vfs.CanonicalName(f.Name)
		o.entries[name] = &Entry{
			Name:        name,
			TmpPath:     f.TmpBasename,
			IsDirectory: f.IsDirectory,
			IsRemoved:   f.IsRemoved,
		}
	}
	return o, nil
}

// Target returns the store changes are committed to.
func (o *Overlay) Target() vfs.FileSystem {
	return o.target
}

// SetTarget changes the store changes are committed to.
func (o *Overlay) SetTarget(target vfs.FileSystem) {
	o.target = target
}

func (o *Overlay) Tag() string {
	return o.tag
}

func (o *Overlay) TempDir() string {
	return o.tempDir
}

// ManifestPath returns where the session manifest is written.
func (o *Overlay) ManifestPath() string {
	return filepath.Join(o.tempDir, namePrefix+o.tag+"_"+o.id)
}

// Entries returns the pending changes sorted by name.
func (o *Overlay) Entries() []Entry {
	out := make([]Entry, 0, len(o.entries))
	for _, e := range o.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Pending reports whether any change waits to be committed.
func (o *Overlay) Pending() bool {
	return len(o.entries) > 0
}

func (o *Overlay) newTempName() string {
	return namePrefix + o.tag + tempFileInfix + uuid.NewString()
}

func (o *Overlay) targetIsFile(name string) bool {
	return o.target != nil && o.target.IsFile(name)
}

func (o *Overlay) targetIsDirectory(name string) bool {
	if name == "" {
		return true
	}
	return o.target != nil && o.target.IsDirectory(name)
}

func (o *Overlay) IsFile(name string) bool {
	name = vfs.CanonicalName(name)
	if e, ok := o.entries[name]; ok {
		return !e.IsRemoved && !e.IsDirectory
	}
	return o.targetIsFile(name)
}

// IsDirectory also reports true for a name that only exists as the parent
// of a pending change. SaveChanges creates such directories.
func (o *Overlay) IsDirectory(name string) bool {
	name = vfs.CanonicalName(name)
	e, ok := o.entries[name]
	if ok && !e.IsRemoved {
		return e.IsDirectory
	}
	if o.hasPendingChild(name) {
		return true
	}
	return !ok && o.targetIsDirectory(name)
}

func (o *Overlay) hasPendingChild(name string) bool {
	prefix := childPrefix(name)
	for entryName, e := range o.entries {
		if !e.IsRemoved && entryName != name && strings.HasPrefix(entryName, prefix) {
			return true
		}
	}
	return false
}

func childPrefix(name string) string {
	if name == "" {
		return ""
	}
	return name + "/"
}

func (o *Overlay) DirectoryCreate(name string) error {
	name = vfs.CanonicalName(name)
	if o.IsDirectory(name) {
		return nil
	}
	if o.IsFile(name) {
		return fmt.Errorf("create directory %q: %w", name, vfs.ErrExpectedDirectory)
	}
	if !o.IsDirectory(vfs.Dir(name)) {
		return fmt.Errorf("create directory %q: parent: %w", name, vfs.ErrNotFound)
	}
	o.entries[name] = &Entry{Name: name, IsDirectory: true}
	o.autosave()
	return nil
}

// DirectoryScan merges the target listing with the pending changes below
// name. Tombstones hide target entries.
func (o *Overlay) DirectoryScan(name string) ([]string, error) {
	name = vfs.CanonicalName(name)
	if !o.IsDirectory(name) {
		return nil, fmt.Errorf("scan %q: %w", name, vfs.ErrExpectedDirectory)
	}

	set := make(map[string]struct{})
	if o.targetIsDirectory(name) && o.target != nil {
		names, err := o.target.DirectoryScan(name)
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			set[n] = struct{}{}
		}
	}
	for entryName, e := range o.entries {
		if e.IsRemoved && entryName != "" && vfs.Dir(entryName) == name {
			delete(set, vfs.Base(entryName))
		}
	}
	prefix := childPrefix(name)
	for entryName, e := range o.entries {
		if e.IsRemoved || entryName == name || !strings.HasPrefix(entryName, prefix) {
			continue
		}
		child, _, _ := strings.Cut(entryName[len(prefix):], "/")
		set[child] = struct{}{}
	}

	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// FileRemove records a tombstone for name. A directory must look empty
// through the overlay. Removing a missing name is not an error.
func (o *Overlay) FileRemove(name string) error {
	name = vfs.CanonicalName(name)
	if name == "" {
		return fmt.Errorf("remove root: %w", vfs.ErrUnsupported)
	}

	switch {
	case o.IsDirectory(name):
		names, err := o.DirectoryScan(name)
		if err != nil {
			return err
		}
		if len(names) > 0 {
			return fmt.Errorf("remove %q: %w", name, vfs.ErrNotEmpty)
		}
	case o.IsFile(name):
		if e, ok := o.entries[name]; ok && e.TmpPath != "" {
			if err := o.temp.FileRemove(e.TmpPath); err != nil {
				o.logger.Debug("failed to remove temporary file", "path", e.TmpPath, "error", err)
			}
		}
	default:
		return nil
	}

	o.entries[name] = &Entry{Name: name, IsRemoved: true}
	o.autosave()
	return nil
}

// FileRename copies name to its new place and removes the original, both
// as pending changes.
func (o *Overlay) FileRename(from, to string) error {
	from, to = vfs.CanonicalName(from), vfs.CanonicalName(to)
	if !vfs.Exists(o, from) {
		return fmt.Errorf("rename %q: %w", from, vfs.ErrNotFound)
	}
	if from == to {
		return nil
	}
	if from == "" || strings.HasPrefix(to, from+"/") {
		return fmt.Errorf("rename %q into itself: %w", from, vfs.ErrUnsupported)
	}
	if vfs.Exists(o, to) {
		return fmt.Errorf("rename %q to %q: %w", from, to, vfs.ErrExists)
	}
	if err := vfs.CopyRecursive(o, from, o, to); err != nil {
		return err
	}
	return vfs.RemoveRecursive(o, from)
}

func (o *Overlay) GetReadStream(name string) (vfs.ReadStream, error) {
	name = vfs.CanonicalName(name)
	e, ok := o.entries[name]
	if !ok {
		if o.target == nil {
			return nil, fmt.Errorf("open %q: %w", name, vfs.ErrNotFound)
		}
		return o.target.GetReadStream(name)
	}
	switch {
	case e.IsRemoved:
		return nil, fmt.Errorf("open %q: %w", name, vfs.ErrNotFound)
	case e.IsDirectory:
		return nil, fmt.Errorf("open %q: %w", name, vfs.ErrExpectedFile)
	case e.TmpPath == "":
		return nil, fmt.Errorf("open %q: no backing file: %w", name, vfs.ErrNotFound)
	}
	return o.temp.GetReadStream(e.TmpPath)
}

// GetWriteStream writes name into its temporary backing file, allocating
// one on the first write. Parents are not checked; SaveChanges creates the
// missing ones.
func (o *Overlay) GetWriteStream(name string) (vfs.WriteStream, error) {
	name = vfs.CanonicalName(name)
	if name == "" || o.IsDirectory(name) {
		return nil, fmt.Errorf("write %q: %w", name, vfs.ErrExpectedFile)
	}

	tmp := ""
	if e, ok := o.entries[name]; ok && !e.IsDirectory && !e.IsRemoved {
		tmp = e.TmpPath
	}
	if tmp == "" {
		tmp = o.newTempName()
	}

	ws, err := o.temp.GetWriteStream(tmp)
	if err != nil {
		return nil, fmt.Errorf("write %q: %w", name, err)
	}
	o.entries[name] = &Entry{Name: name, TmpPath: tmp}
	o.autosave()
	return ws, nil
}

// Meta returns a metadata value of the session.
func (o *Overlay) Meta(key string) string {
	return o.meta[key]
}

// SetMeta stores a metadata value. An empty value deletes the key.
func (o *Overlay) SetMeta(key, value string) {
	if value == "" {
		delete(o.meta, key)
	} else {
		o.meta[key] = value
	}
	o.autosave()
}

// ClearMeta deletes every metadata value.
func (o *Overlay) ClearMeta() {
	o.meta = make(map[string]string)
	o.autosave()
}

// Metadata returns a copy of the session metadata.
func (o *Overlay) Metadata() map[string]string {
	out := make(map[string]string, len(o.meta))
	for k, v := range o.meta {
		out[k] = v
	}
	return out
}

// SetMetadata replaces the session metadata.
func (o *Overlay) SetMetadata(meta map[string]string) {
	o.meta = make(map[string]string, len(meta))
	for k, v := range meta {
		if v != "" {
			o.meta[k] = v
		}
	}
	o.autosave()
}

// Close discards the session unless it was created WithKeepFiles.
func (o *Overlay) Close() error {
	if o.keepFiles {
		return nil
	}
	return o.DiscardChanges()
}
