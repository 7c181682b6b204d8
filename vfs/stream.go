package vfs

import (
	"bufio"
	"io"
)

const streamBufferSize = 32 * 1024

// ReadFunc and WriteFunc are the primitive operations a store hands to
// NewReadStream and NewWriteStream.
type (
	ReadFunc  func(p []byte) (int, error)
	WriteFunc func(p []byte) (int, error)
)

type readStream struct {
	r      *bufio.Reader
	close  func() error
	closed bool
}

// NewReadStream buffers a primitive read function. close is called exactly
// once, by the first Close.
func NewReadStream(read ReadFunc, close func() error) ReadStream {
	return &readStream{
		r:     bufio.NewReaderSize(readerFunc(read), streamBufferSize),
		close: close,
	}
}

func (s *readStream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	return s.r.Read(p)
}

func (s *readStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.close == nil {
		return nil
	}
	return s.close()
}

type writeStream struct {
	w      *bufio.Writer
	close  func() error
	closed bool
}

// NewWriteStream buffers a primitive write function. Close flushes the buffer
// before calling close; a flush error is returned in preference to the close
// error.
func NewWriteStream(write WriteFunc, close func() error) WriteStream {
	return &writeStream{
		w:     bufio.NewWriterSize(writerFunc(write), streamBufferSize),
		close: close,
	}
}

func (s *writeStream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	return s.w.Write(p)
}

func (s *writeStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	flushErr := s.w.Flush()
	var closeErr error
	if s.close != nil {
		closeErr = s.close()
	}
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

type readerFunc ReadFunc

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }

type writerFunc WriteFunc

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// ReadFile reads the whole content of name.
func ReadFile(fsys FileSystem, name string) ([]byte, error) {
	rs, err := fsys.GetReadStream(name)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(rs)
	if cerr := rs.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return data, err
}

// WriteFile replaces the content of name with data.
func WriteFile(fsys FileSystem, name string, data []byte) error {
	ws, err := fsys.GetWriteStream(name)
	if err != nil {
		return err
	}
	if _, err := ws.Write(data); err != nil {
		ws.Close()
		return err
	}
	return ws.Close()
}
