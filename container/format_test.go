package container

import (
	"bytes"
	"testing"
	"time"
)

func TestDOSTimestamp(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "even seconds survive",
			in:   time.Date(2024, time.March, 9, 17, 45, 30, 0, time.Local),
			want: time.Date(2024, time.March, 9, 17, 45, 30, 0, time.Local),
		},
		{
			name: "odd seconds round down",
			in:   time.Date(2001, time.December, 31, 23, 59, 59, 0, time.Local),
			want: time.Date(2001, time.December, 31, 23, 59, 58, 0, time.Local),
		},
		{
			name: "before 1980 clamps",
			in:   time.Date(1970, time.January, 1, 0, 0, 0, 0, time.Local),
			want: time.Date(1980, time.January, 1, 0, 0, 0, 0, time.Local),
		},
		{
			name: "after 2107 clamps",
			in:   time.Date(2200, time.June, 1, 0, 0, 0, 0, time.Local),
			want: time.Date(2107, time.December, 31, 23, 59, 58, 0, time.Local),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := timeFromDOS(dosTimestamp(tt.in))
			if !got.Equal(tt.want) {
				t.Errorf("timeFromDOS(dosTimestamp(%v)) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFindTrailer(t *testing.T) {
	comment := []byte("<history/>")
	trailer := (&endOfCentral{currentRecords: 3, totalRecords: 3, offset: 40, commentLen: uint16(len(comment))}).marshal()

	tests := []struct {
		name        string
		window      []byte
		wantOK      bool
		wantComment string
	}{
		{
			name:        "trailer at the end",
			window:      append(bytes.Repeat([]byte{0}, 64), append(trailer, comment...)...),
			wantOK:      true,
			wantComment: "<history/>",
		},
		{
			name:   "trailer followed by extra bytes",
			window: append(append(trailer, comment...), "junk"...),
			wantOK: false,
		},
		{
			name:   "no signature",
			window: bytes.Repeat([]byte("PK"), 40),
			wantOK: false,
		},
		{
			name:   "window shorter than a trailer",
			window: trailer[:endOfCentralLen-1],
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, got, ok := findTrailer(tt.window)
			if ok != tt.wantOK {
				t.Fatalf("findTrailer() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if string(got) != tt.wantComment {
				t.Errorf("findTrailer() comment = %q, want %q", got, tt.wantComment)
			}
			if e.currentRecords != 3 || e.offset != 40 {
				t.Errorf("findTrailer() = %+v, want 3 records at offset 40", e)
			}
		})
	}
}

func TestHistoryComment(t *testing.T) {
	comment, err := encodeHistory(1234)
	if err != nil {
		t.Fatalf("encodeHistory() error = %v", err)
	}
	want := "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<history>\n  <prev_storage_size>1234</prev_storage_size>\n</history>\n"
	if comment != want {
		t.Errorf("encodeHistory(1234) = %q, want %q", comment, want)
	}

	tests := []struct {
		comment string
		want    int64
	}{
		{comment: comment, want: 1234},
		{comment: "<history><prev_storage_size> 77 </prev_storage_size></history>", want: 77},
		{comment: "<history><prev_storage_size>-5</prev_storage_size></history>", want: 0},
		{comment: "not xml", want: 0},
		{comment: "", want: 0},
	}
	for _, tt := range tests {
		if got := decodeHistory([]byte(tt.comment)).PrevStorageSize; got != tt.want {
			t.Errorf("decodeHistory(%q) = %d, want %d", tt.comment, got, tt.want)
		}
	}
}
