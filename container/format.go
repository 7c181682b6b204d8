package container

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/synfig/synfig-vfs/vfs"
)

const (
	localHeaderSignature   = 0x04034b50
	centralHeaderSignature = 0x02014b50
	endOfCentralSignature  = 0x06054b50

	localHeaderLen   = 30
	centralHeaderLen = 46
	endOfCentralLen  = 22

	// offset of the crc32, compressed size and uncompressed size fields
	// inside a local header
	localHeaderPatchOffset = 14
	localHeaderPatchLen    = 12

	zipVersion = 20

	// central directory entries carrying any of these flags (encryption,
	// strong encryption, reserved) are not readable here
	unsupportedFlags = 0x0071

	maxCommentLen = 1<<16 - 1
	maxFileName   = 1<<16 - 1 - centralHeaderLen
	maxDirName    = 1<<16 - 2 - centralHeaderLen
	maxRecords    = 1<<16 - 1
	maxOffset     = 1<<32 - 1

	// the trailer search window: the largest possible comment plus the
	// trailer record itself
	trailerWindow = 1<<16 + endOfCentralLen
)

type writeBuf []byte

func (b *writeBuf) uint16(v uint16) {
	binary.LittleEndian.PutUint16(*b, v)
	*b = (*b)[2:]
}

func (b *writeBuf) uint32(v uint32) {
	binary.LittleEndian.PutUint32(*b, v)
	*b = (*b)[4:]
}

type readBuf []byte

func (b *readBuf) uint16() uint16 {
	v := binary.LittleEndian.Uint16(*b)
	*b = (*b)[2:]
	return v
}

func (b *readBuf) uint32() uint32 {
	v := binary.LittleEndian.Uint32(*b)
	*b = (*b)[4:]
	return v
}

type localHeader struct {
	version          uint16
	flags            uint16
	method           uint16
	modTime          uint16
	modDate          uint16
	crc32            uint32
	compressedSize   uint32
	uncompressedSize uint32
	nameLen          uint16
	extraLen         uint16
}

func (h *localHeader) marshal() []byte {
	out := make([]byte, localHeaderLen)
	b := writeBuf(out)
	b.uint32(localHeaderSignature)
	b.uint16(h.version)
	b.uint16(h.flags)
	b.uint16(h.method)
	b.uint16(h.modTime)
	b.uint16(h.modDate)
	b.uint32(h.crc32)
	b.uint32(h.compressedSize)
	b.uint32(h.uncompressedSize)
	b.uint16(h.nameLen)
	b.uint16(h.extraLen)
	return out
}

func (h *localHeader) unmarshal(raw []byte) error {
	if len(raw) < localHeaderLen {
		return fmt.Errorf("short local header: %w", vfs.ErrCorrupt)
	}
	b := readBuf(raw)
	if sig := b.uint32(); sig != localHeaderSignature {
		return fmt.Errorf("local header signature %#08x: %w", sig, vfs.ErrCorrupt)
	}
	h.version = b.uint16()
	h.flags = b.uint16()
	h.method = b.uint16()
	h.modTime = b.uint16()
	h.modDate = b.uint16()
	h.crc32 = b.uint32()
	h.compressedSize = b.uint32()
	h.uncompressedSize = b.uint32()
	h.nameLen = b.uint16()
	h.extraLen = b.uint16()
	return nil
}

type centralHeader struct {
	version          uint16
	minVersion       uint16
	flags            uint16
	method           uint16
	modTime          uint16
	modDate          uint16
	crc32            uint32
	compressedSize   uint32
	uncompressedSize uint32
	nameLen          uint16
	extraLen         uint16
	commentLen       uint16
	diskNumber       uint16
	internalAttrs    uint16
	externalAttrs    uint32
	offset           uint32
}

func (h *centralHeader) marshal() []byte {
	out := make([]byte, centralHeaderLen)
	b := writeBuf(out)
	b.uint32(centralHeaderSignature)
	b.uint16(h.version)
	b.uint16(h.minVersion)
	b.uint16(h.flags)
	b.uint16(h.method)
	b.uint16(h.modTime)
	b.uint16(h.modDate)
	b.uint32(h.crc32)
	b.uint32(h.compressedSize)
	b.uint32(h.uncompressedSize)
	b.uint16(h.nameLen)
	b.uint16(h.extraLen)
	b.uint16(h.commentLen)
	b.uint16(h.diskNumber)
	b.uint16(h.internalAttrs)
	b.uint32(h.externalAttrs)
	b.uint32(h.offset)
	return out
}

func (h *centralHeader) unmarshal(raw []byte) error {
	if len(raw) < centralHeaderLen {
		return fmt.Errorf("short central directory record: %w", vfs.ErrCorrupt)
	}
	b := readBuf(raw)
	if sig := b.uint32(); sig != centralHeaderSignature {
		return fmt.Errorf("central directory signature %#08x: %w", sig, vfs.ErrCorrupt)
	}
	h.version = b.uint16()
	h.minVersion = b.uint16()
	h.flags = b.uint16()
	h.method = b.uint16()
	h.modTime = b.uint16()
	h.modDate = b.uint16()
	h.crc32 = b.uint32()
	h.compressedSize = b.uint32()
	h.uncompressedSize = b.uint32()
	h.nameLen = b.uint16()
	h.extraLen = b.uint16()
	h.commentLen = b.uint16()
	h.diskNumber = b.uint16()
	h.internalAttrs = b.uint16()
	h.externalAttrs = b.uint32()
	h.offset = b.uint32()
	return nil
}

type endOfCentral struct {
	currentDisk    uint16
	firstDisk      uint16
	currentRecords uint16
	totalRecords   uint16
	size           uint32
	offset         uint32
	commentLen     uint16
}

func (e *endOfCentral) marshal() []byte {
	out := make([]byte, endOfCentralLen)
	b := writeBuf(out)
	b.uint32(endOfCentralSignature)
	b.uint16(e.currentDisk)
	b.uint16(e.firstDisk)
	b.uint16(e.currentRecords)
	b.uint16(e.totalRecords)
	b.uint32(e.size)
	b.uint32(e.offset)
	b.uint16(e.commentLen)
	return out
}

// unmarshal decodes a trailer record. It reports false when raw does not
// start with the trailer signature.
func (e *endOfCentral) unmarshal(raw []byte) bool {
	if len(raw) < endOfCentralLen {
		return false
	}
	b := readBuf(raw)
	if b.uint32() != endOfCentralSignature {
		return false
	}
	e.currentDisk = b.uint16()
	e.firstDisk = b.uint16()
	e.currentRecords = b.uint16()
	e.totalRecords = b.uint16()
	e.size = b.uint32()
	e.offset = b.uint32()
	e.commentLen = b.uint16()
	return true
}

// findTrailer scans window backward for a trailer record whose comment runs
// exactly to the end of the window.
func findTrailer(window []byte) (endOfCentral, []byte, bool) {
	var e endOfCentral
	for i := len(window) - endOfCentralLen; i >= 0; i-- {
		if !e.unmarshal(window[i:]) {
			continue
		}
		if int(e.commentLen) == len(window)-endOfCentralLen-i {
			return e, window[i+endOfCentralLen:], true
		}
	}
	return endOfCentral{}, nil, false
}

// dosTimestamp encodes t in local time with two second precision. Times
// outside 1980..2107 clamp to the representable range.
func dosTimestamp(t time.Time) (dosTime, dosDate uint16) {
	t = t.In(time.Local)
	switch {
	case t.Year() < 1980:
		t = time.Date(1980, 1, 1, 0, 0, 0, 0, time.Local)
	case t.Year() > 2107:
		t = time.Date(2107, 12, 31, 23, 59, 58, 0, time.Local)
	}
	dosTime = uint16(t.Second()/2) | uint16(t.Minute())<<5 | uint16(t.Hour())<<11
	dosDate = uint16(t.Day()) | uint16(t.Month())<<5 | uint16(t.Year()-1980)<<9
	return dosTime, dosDate
}

func timeFromDOS(dosTime, dosDate uint16) time.Time {
	return time.Date(
		int(dosDate>>9)+1980,
		time.Month(dosDate>>5&0x0f),
		int(dosDate&0x1f),
		int(dosTime>>11),
		int(dosTime>>5&0x3f),
		int(dosTime&0x1f)*2,
		0,
		time.Local,
	)
}
