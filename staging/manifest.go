package staging

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"
	"github.com/synfig/synfig-vfs/vfs"
)

type manifestDoc struct {
	XMLName xml.Name       `xml:"temporary-file-system"`
	Meta    []manifestMeta `xml:"meta>entry"`
	Files   []manifestFile `xml:"files>entry"`
}

type manifestMeta struct {
	Key   string `xml:"key"`
	Value string `xml:"value"`
}

type manifestFile struct {
	Name        string `xml:"name"`
	TmpBasename string `xml:"tmp-basename"`
	IsDirectory bool   `xml:"is-directory"`
	IsRemoved   bool   `xml:"is-removed"`
}

func (o *Overlay) manifest() manifestDoc {
	var doc manifestDoc
	keys := make([]string, 0, len(o.meta))
	for k := range o.meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		doc.Meta = append(doc.Meta, manifestMeta{Key: k, Value: o.meta[k]})
	}
	for _, e := range o.Entries() {
		doc.Files = append(doc.Files, manifestFile{
			Name:        e.Name,
			TmpBasename: e.TmpPath,
			IsDirectory: e.IsDirectory,
			IsRemoved:   e.IsRemoved,
		})
	}
	return doc
}

// Save writes the manifest now. An empty session has no manifest.
func (o *Overlay) Save() error {
	if len(o.entries) == 0 && len(o.meta) == 0 {
		return o.removeManifest()
	}
	return writeManifest(o.fs, o.ManifestPath(), o.manifest())
}

// autosave keeps the manifest in step with the pending map. A failure only
// weakens crash recovery, so it is logged and otherwise ignored.
func (o *Overlay) autosave() {
	if err := o.Save(); err != nil {
		o.logger.Debug("failed to save session manifest", "path", o.ManifestPath(), "error", err)
	}
}

func (o *Overlay) removeManifest() error {
	err := o.fs.Remove(o.ManifestPath())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// writeManifest replaces path through a hidden sibling and a rename so that
// readers never see a half written manifest.
func writeManifest(fsys afero.Fs, path string, doc manifestDoc) error {
	part := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".part")
	f, err := fsys.OpenFile(part, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}

	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(xml.Header))
	if err == nil {
		enc := xml.NewEncoder(zw)
		enc.Indent("", "  ")
		err = enc.Encode(doc)
	}
	if cerr := zw.Close(); err == nil {
		err = cerr
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fsys.Remove(part)
		return fmt.Errorf("write manifest %s: %w", path, err)
	}
	return fsys.Rename(part, path)
}

func readManifest(fsys afero.Fs, path string) (manifestDoc, error) {
	var doc manifestDoc
	f, err := fsys.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return doc, fmt.Errorf("open manifest %s: %w", path, vfs.ErrNotFound)
		}
		return doc, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return doc, fmt.Errorf("read manifest %s: %w: %w", path, vfs.ErrCorrupt, err)
	}
	defer zr.Close()

	if err := xml.NewDecoder(zr).Decode(&doc); err != nil {
		return doc, fmt.Errorf("read manifest %s: %w: %w", path, vfs.ErrCorrupt, err)
	}
	return doc, nil
}
