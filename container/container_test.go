package container

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"github.com/synfig/synfig-vfs/vfs"
)

func newMemContainer(t *testing.T, path string) (*Container, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	c := New(WithFs(fsys))
	require.NoError(t, c.Create(path))
	return c, fsys
}

func reopen(t *testing.T, fsys afero.Fs, path string, opts ...Option) *Container {
	t.Helper()
	c := New(append([]Option{WithFs(fsys)}, opts...)...)
	require.NoError(t, c.Open(path))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestContainerRoundTrip(t *testing.T) {
	c, fsys := newMemContainer(t, "scene.sfg")

	require.NoError(t, c.DirectoryCreate("img"))
	require.NoError(t, vfs.WriteFile(c, "doc.sif", []byte("<canvas/>")))
	require.NoError(t, vfs.WriteFile(c, "img/a.png", bytes.Repeat([]byte{0x89}, 100)))
	require.NoError(t, vfs.WriteFile(c, "empty", nil))
	require.NoError(t, c.Save())
	want := c.Entries()
	require.NoError(t, c.Close())

	got := reopen(t, fsys, "scene.sfg")
	gotEntries := got.Entries()
	require.Len(t, gotEntries, len(want))
	for i := range want {
		require.Equal(t, want[i].Name, gotEntries[i].Name)
		require.Equal(t, want[i].IsDirectory, gotEntries[i].IsDirectory)
		require.Equal(t, want[i].Size, gotEntries[i].Size)
		require.Equal(t, want[i].UncompressedSize, gotEntries[i].UncompressedSize)
		require.Equal(t, want[i].CRC32, gotEntries[i].CRC32)
		require.Equal(t, want[i].Compression, gotEntries[i].Compression)
	}

	require.True(t, got.IsDirectory("img"))
	require.True(t, got.IsFile("img/a.png"))
	require.False(t, got.IsFile("img"))

	data, err := vfs.ReadFile(got, "img/a.png")
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{0x89}, 100), data)

	data, err = vfs.ReadFile(got, "empty")
	require.NoError(t, err)
	require.Empty(t, data)

	names, err := got.DirectoryScan("")
	require.NoError(t, err)
	require.Equal(t, []string{"doc.sif", "empty", "img"}, names)
}

func TestContainerReadableAsZip(t *testing.T) {
	c, fsys := newMemContainer(t, "scene.sfg")
	require.NoError(t, c.DirectoryCreate("img"))
	require.NoError(t, vfs.WriteFile(c, "img/a.png", []byte("stored")))

	ws, err := c.OpenWriteCompressed("doc.sif", Deflate)
	require.NoError(t, err)
	_, err = ws.Write([]byte(strings.Repeat("<layer/>", 200)))
	require.NoError(t, err)
	require.NoError(t, ws.Close())
	require.NoError(t, c.Save())
	require.NoError(t, c.Close())

	raw, err := afero.ReadFile(fsys, "scene.sfg")
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)

	contents := make(map[string]string)
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			contents[f.Name] = ""
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		contents[f.Name] = string(data)
	}
	require.Equal(t, map[string]string{
		"doc.sif":   strings.Repeat("<layer/>", 200),
		"img/":      "",
		"img/a.png": "stored",
	}, contents)
	require.Contains(t, zr.Comment, "<prev_storage_size>0</prev_storage_size>")
}

func TestContainerCompressedEntries(t *testing.T) {
	payload := []byte(strings.Repeat("synfig ", 1000))

	for _, method := range []uint16{Store, Deflate, Zstd} {
		t.Run(MethodName(method), func(t *testing.T) {
			c, fsys := newMemContainer(t, "c.sfg")
			ws, err := c.OpenWriteCompressed("data.txt", method)
			require.NoError(t, err)
			_, err = ws.Write(payload)
			require.NoError(t, err)
			require.NoError(t, ws.Close())
			require.NoError(t, c.Save())
			require.NoError(t, c.Close())

			got := reopen(t, fsys, "c.sfg")
			e, ok := got.Entry("data.txt")
			require.True(t, ok)
			require.Equal(t, method, e.Compression)
			require.Equal(t, int64(len(payload)), e.UncompressedSize)
			if method != Store {
				require.Less(t, e.Size, e.UncompressedSize)
			}

			data, err := vfs.ReadFile(got, "data.txt")
			require.NoError(t, err)
			require.Equal(t, payload, data)
			require.NoError(t, got.Verify())
		})
	}
}

func TestContainerWithCompressionOption(t *testing.T) {
	fsys := afero.NewMemMapFs()
	c := New(WithFs(fsys), WithCompression(Zstd))
	require.NoError(t, c.Create("c.sfg"))
	require.NoError(t, vfs.WriteFile(c, "a.txt", []byte(strings.Repeat("a", 4096))))

	e, ok := c.Entry("a.txt")
	require.True(t, ok)
	require.Equal(t, Zstd, e.Compression)

	_, err := c.OpenWriteCompressed("b.txt", 12)
	require.ErrorIs(t, err, vfs.ErrUnsupported)
	require.False(t, c.IsFile("b.txt"))
}

func TestContainerHistoryChaining(t *testing.T) {
	c, fsys := newMemContainer(t, "h.sfg")

	const saves = 4
	for i := 0; i < saves; i++ {
		require.NoError(t, vfs.WriteFile(c, "frame.txt", []byte(strings.Repeat("x", i+1))))
		require.NoError(t, c.Save())
	}
	require.NoError(t, c.Close())

	records, err := ReadHistory(fsys, "h.sfg")
	require.NoError(t, err)
	require.Len(t, records, saves)
	require.Equal(t, int64(0), records[0].PrevStorageSize)
	for i := 1; i < len(records); i++ {
		require.Equal(t, records[i-1].StorageSize, records[i].PrevStorageSize)
		require.Greater(t, records[i].StorageSize, records[i].PrevStorageSize)
	}

	fi, err := fsys.Stat("h.sfg")
	require.NoError(t, err)
	require.Equal(t, fi.Size(), records[len(records)-1].StorageSize)

	// reopening continues the chain
	c = New(WithFs(fsys))
	require.NoError(t, c.Open("h.sfg"))
	require.NoError(t, vfs.WriteFile(c, "more.txt", []byte("more")))
	require.NoError(t, c.Save())
	require.NoError(t, c.Close())

	records, err = ReadHistory(fsys, "h.sfg")
	require.NoError(t, err)
	require.Len(t, records, saves+1)
	require.Equal(t, fi.Size(), records[saves].PrevStorageSize)
}

func TestContainerSaveWithoutChangesIsNoop(t *testing.T) {
	c, fsys := newMemContainer(t, "n.sfg")
	require.NoError(t, vfs.WriteFile(c, "a.txt", []byte("a")))
	require.NoError(t, c.Save())
	size := c.StorageSize()
	require.NoError(t, c.Save())
	require.Equal(t, size, c.StorageSize())
	require.NoError(t, c.Close())

	records, err := ReadHistory(fsys, "n.sfg")
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestContainerRollback(t *testing.T) {
	c, fsys := newMemContainer(t, "r.sfg")
	require.NoError(t, vfs.WriteFile(c, "a.txt", []byte("one")))
	require.NoError(t, c.Save())
	v1 := c.StorageSize()

	require.NoError(t, vfs.WriteFile(c, "a.txt", []byte("two")))
	require.NoError(t, vfs.WriteFile(c, "b.txt", []byte("new")))
	require.NoError(t, c.Save())
	require.NoError(t, c.FileRemove("b.txt"))
	require.NoError(t, c.Save())
	require.NoError(t, c.Close())

	t.Run("open old version", func(t *testing.T) {
		old := New(WithFs(fsys))
		require.NoError(t, old.OpenFromHistory("r.sfg", v1))
		defer old.Close()

		require.False(t, old.IsFile("b.txt"))
		data, err := vfs.ReadFile(old, "a.txt")
		require.NoError(t, err)
		require.Equal(t, "one", string(data))
	})

	t.Run("rollback appends a version", func(t *testing.T) {
		require.NoError(t, Rollback(fsys, "r.sfg", v1, false))
		records, err := ReadHistory(fsys, "r.sfg")
		require.NoError(t, err)
		require.Len(t, records, 4)

		got := reopen(t, fsys, "r.sfg")
		data, err := vfs.ReadFile(got, "a.txt")
		require.NoError(t, err)
		require.Equal(t, "one", string(data))
	})

	t.Run("rollback in place", func(t *testing.T) {
		require.NoError(t, Rollback(fsys, "r.sfg", v1, true))
		records, err := ReadHistory(fsys, "r.sfg")
		require.NoError(t, err)
		require.Equal(t, []HistoryRecord{{PrevStorageSize: 0, StorageSize: v1}}, records)
	})

	t.Run("unknown version", func(t *testing.T) {
		err := Rollback(fsys, "r.sfg", v1-1, true)
		require.ErrorIs(t, err, vfs.ErrNotFound)
	})
}

func TestExportVersion(t *testing.T) {
	c, fsys := newMemContainer(t, "e.sfg")
	require.NoError(t, vfs.WriteFile(c, "a.txt", []byte("one")))
	require.NoError(t, c.Save())
	v1 := c.StorageSize()
	require.NoError(t, vfs.WriteFile(c, "b.txt", []byte("two")))
	require.NoError(t, c.Save())
	require.NoError(t, c.Close())

	require.NoError(t, ExportVersion(fsys, "e.sfg", v1, "v1.sfg"))
	got := reopen(t, fsys, "v1.sfg")
	require.True(t, got.IsFile("a.txt"))
	require.False(t, got.IsFile("b.txt"))
	require.Equal(t, v1, got.StorageSize())
}

func TestContainerOneStreamAtATime(t *testing.T) {
	c, _ := newMemContainer(t, "b.sfg")
	require.NoError(t, vfs.WriteFile(c, "a.txt", []byte("a")))

	ws, err := c.GetWriteStream("b.txt")
	require.NoError(t, err)

	_, err = c.GetReadStream("a.txt")
	require.ErrorIs(t, err, vfs.ErrBusy)
	_, err = c.GetWriteStream("c.txt")
	require.ErrorIs(t, err, vfs.ErrBusy)
	require.ErrorIs(t, c.Save(), vfs.ErrBusy)
	require.ErrorIs(t, c.FileRemove("b.txt"), vfs.ErrBusy)

	require.NoError(t, ws.Close())
	require.NoError(t, c.Save())

	rs, err := c.GetReadStream("a.txt")
	require.NoError(t, err)
	_, err = c.OpenReadWhole()
	require.ErrorIs(t, err, vfs.ErrBusy)
	require.NoError(t, rs.Close())
}

func TestContainerDirectories(t *testing.T) {
	c, fsys := newMemContainer(t, "d.sfg")

	require.ErrorIs(t, c.DirectoryCreate("img/icons"), vfs.ErrNotFound)
	require.NoError(t, c.DirectoryCreate("img"))
	require.NoError(t, c.DirectoryCreate("img"))
	require.NoError(t, c.DirectoryCreate("img/icons"))
	require.NoError(t, vfs.WriteFile(c, "img/icons/x.png", []byte("x")))
	require.ErrorIs(t, c.DirectoryCreate("img/icons/x.png"), vfs.ErrExpectedDirectory)

	_, err := c.GetWriteStream("missing/y.png")
	require.ErrorIs(t, err, vfs.ErrNotFound)
	_, err = c.GetWriteStream("img")
	require.ErrorIs(t, err, vfs.ErrExpectedFile)
	_, err = c.DirectoryScan("img/icons/x.png")
	require.ErrorIs(t, err, vfs.ErrExpectedDirectory)

	require.ErrorIs(t, c.FileRemove("img"), vfs.ErrNotEmpty)
	require.NoError(t, c.FileRemove("nothing-here"))

	require.NoError(t, c.Save())
	require.NoError(t, c.Close())

	got := reopen(t, fsys, "d.sfg")
	e, ok := got.Entry("img/icons")
	require.True(t, ok)
	require.True(t, e.IsDirectory)
	require.True(t, e.DirectorySaved)

	names, err := got.DirectoryScan("img")
	require.NoError(t, err)
	require.Equal(t, []string{"icons"}, names)
}

func TestContainerRename(t *testing.T) {
	c, fsys := newMemContainer(t, "m.sfg")
	require.NoError(t, c.DirectoryCreate("img"))
	require.NoError(t, vfs.WriteFile(c, "img/a.png", []byte("a")))
	require.NoError(t, vfs.WriteFile(c, "b.txt", []byte("b")))
	require.NoError(t, c.Save())

	require.ErrorIs(t, c.FileRename("missing", "x"), vfs.ErrNotFound)
	require.ErrorIs(t, c.FileRename("b.txt", "img"), vfs.ErrExists)
	require.ErrorIs(t, c.FileRename("img", "img/inner"), vfs.ErrUnsupported)

	require.NoError(t, c.FileRename("img", "pics"))
	require.NoError(t, c.FileRename("b.txt", "pics/b.txt"))
	require.NoError(t, c.Save())
	require.NoError(t, c.Close())

	got := reopen(t, fsys, "m.sfg")
	require.False(t, got.IsDirectory("img"))
	names, err := got.DirectoryScan("pics")
	require.NoError(t, err)
	require.Equal(t, []string{"a.png", "b.txt"}, names)

	data, err := vfs.ReadFile(got, "pics/a.png")
	require.NoError(t, err)
	require.Equal(t, "a", string(data))
}

func TestContainerNameTooLong(t *testing.T) {
	c, _ := newMemContainer(t, "l.sfg")

	_, err := c.GetWriteStream(strings.Repeat("a", maxFileName+1))
	require.ErrorIs(t, err, vfs.ErrNameTooLong)
	require.ErrorIs(t, c.DirectoryCreate(strings.Repeat("d", maxDirName+1)), vfs.ErrNameTooLong)
	require.NoError(t, c.DirectoryCreate(strings.Repeat("d", maxDirName)))
}

func TestContainerOpenCorrupt(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "shorter than a trailer", data: []byte("PK")},
		{name: "no trailer", data: bytes.Repeat([]byte("garbage "), 40)},
		{name: "comment length mismatch", data: append((&endOfCentral{commentLen: 9}).marshal(), "short"...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fsys, "bad.sfg", tt.data, 0o644))

			c := New(WithFs(fsys))
			err := c.Open("bad.sfg")
			require.ErrorIs(t, err, vfs.ErrCorrupt)
			require.False(t, c.IsOpen())
		})
	}
}

func TestContainerDetectsChecksumMismatch(t *testing.T) {
	c, fsys := newMemContainer(t, "x.sfg")
	require.NoError(t, vfs.WriteFile(c, "a.txt", []byte("hello")))
	require.NoError(t, c.Save())
	e, _ := c.Entry("a.txt")
	require.NoError(t, c.Close())

	raw, err := afero.ReadFile(fsys, "x.sfg")
	require.NoError(t, err)
	dataOffset := e.HeaderOffset + localHeaderLen + int64(len("a.txt"))
	raw[dataOffset] ^= 0xff
	require.NoError(t, afero.WriteFile(fsys, "x.sfg", raw, 0o644))

	got := reopen(t, fsys, "x.sfg")
	_, err = vfs.ReadFile(got, "a.txt")
	require.ErrorIs(t, err, vfs.ErrCorrupt)
	require.ErrorIs(t, got.Verify(), vfs.ErrCorrupt)
}

func TestContainerReadOnly(t *testing.T) {
	c, fsys := newMemContainer(t, "ro.sfg")
	require.NoError(t, vfs.WriteFile(c, "a.txt", []byte("a")))
	require.NoError(t, c.Save())
	require.NoError(t, c.Close())

	ro := reopen(t, fsys, "ro.sfg", ReadOnly())
	require.ErrorIs(t, ro.DirectoryCreate("img"), vfs.ErrReadOnly)
	require.ErrorIs(t, ro.FileRemove("a.txt"), vfs.ErrReadOnly)
	_, err := ro.GetWriteStream("b.txt")
	require.ErrorIs(t, err, vfs.ErrReadOnly)

	data, err := vfs.ReadFile(ro, "a.txt")
	require.NoError(t, err)
	require.Equal(t, "a", string(data))
}

func TestOpenReadWhole(t *testing.T) {
	c, fsys := newMemContainer(t, "w.sfg")
	require.NoError(t, vfs.WriteFile(c, "a.txt", []byte("a")))
	require.NoError(t, c.Save())

	// unsaved data past the last trailer is not part of the copy
	require.NoError(t, vfs.WriteFile(c, "b.txt", []byte("b")))

	rs, err := c.OpenReadWhole()
	require.NoError(t, err)
	data, err := io.ReadAll(rs)
	require.NoError(t, err)
	require.NoError(t, rs.Close())
	require.Equal(t, c.StorageSize(), int64(len(data)))

	raw, err := afero.ReadFile(fsys, "w.sfg")
	require.NoError(t, err)
	require.Equal(t, raw[:len(data)], data)
}

func TestClosedContainer(t *testing.T) {
	c := New(WithFs(afero.NewMemMapFs()))
	require.False(t, c.IsFile("a"))
	require.False(t, c.IsDirectory(""))
	require.ErrorIs(t, c.Save(), vfs.ErrClosed)
	require.ErrorIs(t, c.DirectoryCreate("a"), vfs.ErrClosed)
	_, err := c.GetReadStream("a")
	require.True(t, errors.Is(err, vfs.ErrClosed))
	require.NoError(t, c.Close())
}

func TestContainerRejectsEscapingNames(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{name: "parent", path: ".."},
		{name: "parent prefix", path: "../evil.sif"},
		{name: "nested parent", path: "../../evil.sif"},
		{name: "absolute", path: "/etc/evil.sif"},
		{name: "network share", path: `\\server\share\evil.sif`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newMemContainer(t, "z.sfg")
			defer c.Close()
			require.NoError(t, vfs.WriteFile(c, "a.txt", []byte("a")))

			_, err := c.GetWriteStream(tt.path)
			require.ErrorIs(t, err, vfs.ErrUnsupported)
			require.ErrorIs(t, c.DirectoryCreate(tt.path), vfs.ErrUnsupported)
			require.ErrorIs(t, c.FileRename("a.txt", tt.path), vfs.ErrUnsupported)
			require.Equal(t, []string{"a.txt"}, entryNames(c.Entries()))
		})
	}

	// a name that only passes through a parent segment is cleaned first
	c, _ := newMemContainer(t, "ok.sfg")
	defer c.Close()
	require.NoError(t, c.DirectoryCreate("img"))
	require.NoError(t, vfs.WriteFile(c, "img/../a.txt", []byte("a")))
	require.True(t, c.IsFile("a.txt"))
}

func entryNames(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}

var errDiskFull = errors.New("disk full")

// shortWriteFs hands out files whose WriteAt fails once budget bytes have
// been written. A negative budget never fails.
type shortWriteFs struct {
	afero.Fs
	budget *int64
}

func (s shortWriteFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	f, err := s.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &shortWriteFile{File: f, budget: s.budget}, nil
}

type shortWriteFile struct {
	afero.File
	budget *int64
}

func (f *shortWriteFile) WriteAt(p []byte, off int64) (int, error) {
	if *f.budget < 0 || int64(len(p)) <= *f.budget {
		if *f.budget >= 0 {
			*f.budget -= int64(len(p))
		}
		return f.File.WriteAt(p, off)
	}
	n, _ := f.File.WriteAt(p[:*f.budget], off)
	*f.budget = 0
	return n, errDiskFull
}

func TestContainerInterruptedSave(t *testing.T) {
	mem := afero.NewMemMapFs()
	budget := int64(-1)
	c := New(WithFs(shortWriteFs{Fs: mem, budget: &budget}))
	require.NoError(t, c.Create("s.sfg"))
	require.NoError(t, vfs.WriteFile(c, "a.txt", []byte("first")))
	require.NoError(t, c.Save())
	good := c.StorageSize()

	require.NoError(t, vfs.WriteFile(c, "b.txt", []byte("second")))
	require.NoError(t, c.DirectoryCreate("dir"))

	// the directory header fits, the central directory is cut short
	budget = localHeaderLen + int64(len("dir/")) + 10
	err := c.Save()
	require.ErrorIs(t, err, errDiskFull)
	require.Equal(t, good, c.StorageSize())
	require.True(t, c.Changed())

	broken := New(WithFs(mem))
	require.ErrorIs(t, broken.Open("s.sfg"), vfs.ErrCorrupt)

	old := New(WithFs(mem), ReadOnly())
	require.NoError(t, old.OpenFromHistory("s.sfg", good))
	data, err := vfs.ReadFile(old, "a.txt")
	require.NoError(t, err)
	require.Equal(t, "first", string(data))
	require.False(t, old.IsFile("b.txt"))
	require.False(t, old.IsDirectory("dir"))
	require.NoError(t, old.Close())

	// retrying once the disk has room again links the new version to the
	// last good one
	budget = -1
	require.NoError(t, c.Save())
	require.NoError(t, c.Close())

	records, err := ReadHistory(mem, "s.sfg")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, good, records[0].StorageSize)
	require.Equal(t, good, records[1].PrevStorageSize)

	latest := reopen(t, mem, "s.sfg")
	data, err = vfs.ReadFile(latest, "b.txt")
	require.NoError(t, err)
	require.Equal(t, "second", string(data))
	require.True(t, latest.IsDirectory("dir"))
	require.NoError(t, latest.Verify())
}
