package container

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/synfig/synfig-vfs/vfs"
)

// Compression methods understood by the container.
const (
	Store   uint16 = 0
	Deflate uint16 = 8
	Zstd    uint16 = 93
)

// ParseMethod maps a method name to its numeric identifier.
func ParseMethod(name string) (uint16, error) {
	switch name {
	case "", "store":
		return Store, nil
	case "deflate":
		return Deflate, nil
	case "zstd":
		return Zstd, nil
	}
	return 0, fmt.Errorf("unknown compression method %q: %w", name, vfs.ErrUnsupported)
}

// MethodName returns a printable name for a compression method.
func MethodName(method uint16) string {
	switch method {
	case Store:
		return "store"
	case Deflate:
		return "deflate"
	case Zstd:
		return "zstd"
	}
	return fmt.Sprintf("method-%d", method)
}

func checkMethod(method uint16) error {
	switch method {
	case Store, Deflate, Zstd:
		return nil
	}
	return fmt.Errorf("compression %s: %w", MethodName(method), vfs.ErrUnsupported)
}

func newCompressor(method uint16, w io.Writer) (io.WriteCloser, error) {
	switch method {
	case Deflate:
		return flate.NewWriter(w, flate.DefaultCompression)
	case Zstd:
		return zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
	}
	return nil, fmt.Errorf("compress with %s: %w", MethodName(method), vfs.ErrUnsupported)
}

type zstdReadCloser struct {
	*zstd.Decoder
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

func newDecompressor(method uint16, r io.Reader) (io.ReadCloser, error) {
	switch method {
	case Deflate:
		return flate.NewReader(r), nil
	case Zstd:
		d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{d}, nil
	}
	return nil, fmt.Errorf("decompress %s: %w", MethodName(method), vfs.ErrUnsupported)
}
