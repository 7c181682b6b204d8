package container

import (
	"fmt"
	"hash/crc32"
	"io"
	"time"

	"github.com/synfig/synfig-vfs/vfs"
)

// appender writes raw bytes at the end of the container storage.
type appender struct {
	c *Container
}

func (a appender) Write(p []byte) (int, error) {
	return a.c.appendBytes(p)
}

type entryWriter struct {
	c          *Container
	entry      *Entry
	dataOffset int64
	crc        uint32
	size       int64
	compressor io.WriteCloser
}

func (w *entryWriter) write(p []byte) (int, error) {
	w.crc = crc32.Update(w.crc, crc32.IEEETable, p)
	w.size += int64(len(p))
	if w.compressor != nil {
		return w.compressor.Write(p)
	}
	return w.c.appendBytes(p)
}

// close finishes the compressed stream and patches the sizes and checksum
// into the local header written by OpenWriteCompressed.
func (w *entryWriter) close() error {
	defer w.c.releaseStream()

	if w.compressor != nil {
		if err := w.compressor.Close(); err != nil {
			return fmt.Errorf("finish %q: %w", w.entry.Name, err)
		}
	}

	w.entry.CRC32 = w.crc
	w.entry.Size = w.c.end - w.dataOffset
	w.entry.UncompressedSize = w.size
	if w.entry.Size > maxOffset || w.size > maxOffset {
		return fmt.Errorf("entry %q exceeds %d bytes: %w", w.entry.Name, int64(maxOffset), vfs.ErrUnsupported)
	}

	patch := make([]byte, localHeaderPatchLen)
	b := writeBuf(patch)
	b.uint32(w.entry.CRC32)
	b.uint32(uint32(w.entry.Size))
	b.uint32(uint32(w.entry.UncompressedSize))
	if _, err := w.c.file.WriteAt(patch, w.entry.HeaderOffset+localHeaderPatchOffset); err != nil {
		return fmt.Errorf("patch header of %q: %w", w.entry.Name, err)
	}
	return nil
}

// OpenWriteCompressed starts a new version of the file name, stored with the
// given compression method. The previous content of name, if any, stays in
// the storage but is no longer referenced once the container is saved.
func (c *Container) OpenWriteCompressed(name string, method uint16) (vfs.WriteStream, error) {
	name = vfs.FixSlashes(name)
	if err := c.checkMutable("write", name); err != nil {
		return nil, err
	}
	if err := checkStoredName("write", name); err != nil {
		return nil, err
	}
	if c.stream != nil {
		return nil, fmt.Errorf("write %q: %w", name, vfs.ErrBusy)
	}
	if name == "" || c.IsDirectory(name) {
		return nil, fmt.Errorf("write %q: %w", name, vfs.ErrExpectedFile)
	}
	if len(name) > maxFileName {
		return nil, fmt.Errorf("write %q: %w", name, vfs.ErrNameTooLong)
	}
	if !c.IsDirectory(vfs.Dir(name)) {
		return nil, fmt.Errorf("write %q: parent: %w", name, vfs.ErrNotFound)
	}

	now := time.Now()
	modTime, modDate := dosTimestamp(now)
	h := localHeader{
		version: zipVersion,
		method:  method,
		modTime: modTime,
		modDate: modDate,
		nameLen: uint16(len(name)),
	}

	if err := checkMethod(method); err != nil {
		return nil, fmt.Errorf("write %q: %w", name, err)
	}

	offset := c.end
	if _, err := c.appendBytes(h.marshal()); err != nil {
		return nil, fmt.Errorf("write %q: %w", name, err)
	}
	if _, err := c.appendBytes([]byte(name)); err != nil {
		return nil, fmt.Errorf("write %q: %w", name, err)
	}

	e := &Entry{
		Name:         name,
		HeaderOffset: offset,
		Compression:  method,
		Modified:     now,
	}
	c.entries[name] = e
	c.changed = true

	w := &entryWriter{
		c:          c,
		entry:      e,
		dataOffset: c.end,
	}
	if method != Store {
		compressor, err := newCompressor(method, appender{c})
		if err != nil {
			return nil, fmt.Errorf("write %q: %w", name, err)
		}
		w.compressor = compressor
	}
	ws := vfs.NewWriteStream(w.write, w.close)
	c.holdStream(ws, name)
	return ws, nil
}

type entryReader struct {
	c     *Container
	name  string
	want  uint32
	crc   uint32
	r     io.Reader
	inner io.ReadCloser
}

func (r *entryReader) read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.crc = crc32.Update(r.crc, crc32.IEEETable, p[:n])
	if err == io.EOF && r.crc != r.want {
		return n, fmt.Errorf("read %q: checksum %#08x, want %#08x: %w", r.name, r.crc, r.want, vfs.ErrCorrupt)
	}
	return n, err
}

func (r *entryReader) close() error {
	defer r.c.releaseStream()
	if r.inner != nil {
		return r.inner.Close()
	}
	return nil
}

func (c *Container) openEntry(e *Entry) (vfs.ReadStream, error) {
	raw := make([]byte, localHeaderLen)
	if _, err := c.file.ReadAt(raw, e.HeaderOffset); err != nil {
		return nil, fmt.Errorf("read header of %q: %w", e.Name, err)
	}
	var h localHeader
	if err := h.unmarshal(raw); err != nil {
		return nil, fmt.Errorf("read header of %q: %w", e.Name, err)
	}
	dataOffset := e.HeaderOffset + localHeaderLen + int64(h.nameLen) + int64(h.extraLen)

	r := &entryReader{c: c, name: e.Name, want: e.CRC32}
	section := io.NewSectionReader(c.file, dataOffset, e.Size)
	if e.Compression == Store {
		r.r = section
	} else {
		inner, err := newDecompressor(e.Compression, section)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", e.Name, err)
		}
		r.r = inner
		r.inner = inner
	}
	return vfs.NewReadStream(r.read, r.close), nil
}

// OpenReadWhole returns a stream over the last confirmed version of the
// whole storage, trailer included.
func (c *Container) OpenReadWhole() (vfs.ReadStream, error) {
	if !c.IsOpen() {
		return nil, vfs.ErrClosed
	}
	if c.stream != nil {
		return nil, fmt.Errorf("read %s: %w", c.path, vfs.ErrBusy)
	}
	section := io.NewSectionReader(c.file, 0, c.prevStorageSize)
	rs := vfs.NewReadStream(section.Read, func() error {
		c.releaseStream()
		return nil
	})
	c.holdStream(rs, "")
	return rs, nil
}
