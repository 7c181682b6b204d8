package container

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// HistoryRecord is one version boundary of an append-only container: the
// bytes in [0, StorageSize) form the version, and PrevStorageSize is where
// the version before it ended.
type HistoryRecord struct {
	PrevStorageSize int64 `json:"prev_storage_size"`
	StorageSize     int64 `json:"storage_size"`
}

type historyComment struct {
	XMLName         xml.Name `xml:"history"`
	PrevStorageSize string   `xml:"prev_storage_size"`
}

func encodeHistory(prevStorageSize int64) (string, error) {
	doc := historyComment{PrevStorageSize: strconv.FormatInt(prevStorageSize, 10)}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return xml.Header + string(out) + "\n", nil
}

// decodeHistory parses a trailer comment. Anything unreadable decodes as a
// record with no previous version.
func decodeHistory(comment []byte) HistoryRecord {
	var doc historyComment
	if err := xml.Unmarshal(comment, &doc); err != nil {
		return HistoryRecord{}
	}
	prev, err := strconv.ParseInt(strings.TrimSpace(doc.PrevStorageSize), 10, 64)
	if err != nil || prev < 0 {
		prev = 0
	}
	return HistoryRecord{PrevStorageSize: prev}
}

// readWindow returns the tail of the first size bytes of r that can hold a
// trailer record.
func readWindow(r io.ReaderAt, size int64) ([]byte, error) {
	n := int64(trailerWindow)
	if size < n {
		n = size
	}
	window := make([]byte, n)
	read, err := r.ReadAt(window, size-n)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return window[:read], nil
}

// ReadHistory lists every version stored in the container at path, oldest
// first. The newest record always ends at the current file size. A file
// without any history trailer yields a single record spanning the file, and
// a file shorter than a trailer record yields none.
func ReadHistory(fsys afero.Fs, path string) ([]HistoryRecord, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if size < endOfCentralLen {
		return nil, nil
	}

	records := []HistoryRecord{{StorageSize: size}}
	for {
		window, err := readWindow(f, size)
		if err != nil {
			return nil, fmt.Errorf("read history at %d: %w", size, err)
		}
		trailer, comment, ok := findTrailer(window)
		if !ok || trailer.commentLen == 0 {
			break
		}
		record := decodeHistory(comment)
		record.StorageSize = size
		records[0] = record

		if record.PrevStorageSize <= 0 || record.PrevStorageSize >= size {
			break
		}
		size = record.PrevStorageSize
		records = append([]HistoryRecord{{StorageSize: size}}, records...)
	}
	return records, nil
}
