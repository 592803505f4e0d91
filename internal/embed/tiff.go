package embed

import (
	"encoding/binary"
	"fmt"
	"sort"
	"unicode/utf16"
)

// TIFF field types used by the rewriter.
const (
	typeByte      uint16 = 1
	typeASCII     uint16 = 2
	typeShort     uint16 = 3
	typeLong      uint16 = 4
	typeUndefined uint16 = 7
)

// Tag identifiers written by the embedder.
const (
	tagImageDescription uint16 = 0x010E
	tagDateTime         uint16 = 0x0132
	tagArtist           uint16 = 0x013B
	tagXMLPacket        uint16 = 0x02BC
	tagRating           uint16 = 0x4746
	tagCopyright        uint16 = 0x8298
	tagExifIFD          uint16 = 0x8769
	tagUserComment      uint16 = 0x9286
	tagXPTitle          uint16 = 0x9C9B
	tagXPComment        uint16 = 0x9C9C
	tagXPKeywords       uint16 = 0x9C9E
)

var errMalformedTIFF = fmt.Errorf("%w: tiff structure", ErrMalformedMetadata)

var typeSizes = map[uint16]uint32{
	1: 1, 2: 1, 3: 2, 4: 4, 5: 8, 6: 1, 7: 1, 8: 2, 9: 4, 10: 8, 11: 4, 12: 8, 13: 4,
}

// ifdEntry is one 12-byte directory entry. raw holds the original value field
// for entries copied from the source; data holds the encoded value for new ones.
type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	raw   [4]byte
	data  []byte
}

// tagBlock is a parsed TIFF structure. Edits append new directories; only the
// directories and values appended by an earlier edit are ever dropped.
type tagBlock struct {
	buf        []byte
	order      binary.ByteOrder
	ifd0Offset uint32
	ifd0       []ifdEntry
	next       uint32
}

// emptyTagBlock returns a little-endian block with no directory yet.
func emptyTagBlock() *tagBlock {
	return &tagBlock{
		buf:   []byte{'I', 'I', 0x2A, 0x00, 0x08, 0x00, 0x00, 0x00},
		order: binary.LittleEndian,
	}
}

func parseTagBlock(data []byte) (*tagBlock, error) {
	if len(data) < 8 {
		return nil, errMalformedTIFF
	}
	var order binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, errMalformedTIFF
	}
	if order.Uint16(data[2:4]) != 42 {
		return nil, fmt.Errorf("%w: unsupported tiff variant", errMalformedTIFF)
	}
	block := &tagBlock{buf: data, order: order}
	offset := order.Uint32(data[4:8])
	if offset == 0 {
		return block, nil
	}
	entries, next, err := readIFD(data, order, offset)
	if err != nil {
		return nil, err
	}
	block.ifd0Offset = offset
	block.ifd0 = entries
	block.next = next
	return block, nil
}

func readIFD(data []byte, order binary.ByteOrder, offset uint32) ([]ifdEntry, uint32, error) {
	if uint64(offset)+2 > uint64(len(data)) {
		return nil, 0, fmt.Errorf("%w: ifd offset %d out of range", errMalformedTIFF, offset)
	}
	count := uint32(order.Uint16(data[offset:]))
	end := uint64(offset) + 2 + uint64(count)*12 + 4
	if end > uint64(len(data)) {
		return nil, 0, fmt.Errorf("%w: ifd at %d truncated", errMalformedTIFF, offset)
	}
	entries := make([]ifdEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		pos := offset + 2 + i*12
		e := ifdEntry{
			tag:   order.Uint16(data[pos:]),
			typ:   order.Uint16(data[pos+2:]),
			count: order.Uint32(data[pos+4:]),
		}
		copy(e.raw[:], data[pos+8:pos+12])
		entries = append(entries, e)
	}
	next := order.Uint32(data[offset+2+count*12:])
	return entries, next, nil
}

// value returns the bytes of an entry's value.
func (b *tagBlock) value(e ifdEntry) ([]byte, error) {
	if e.data != nil {
		return e.data, nil
	}
	size, ok := typeSizes[e.typ]
	if !ok {
		return nil, fmt.Errorf("%w: unknown field type %d", errMalformedTIFF, e.typ)
	}
	total := uint64(size) * uint64(e.count)
	if total <= 4 {
		return e.raw[:total], nil
	}
	offset := uint64(b.order.Uint32(e.raw[:]))
	if offset+total > uint64(len(b.buf)) {
		return nil, fmt.Errorf("%w: value for tag 0x%04X out of range", errMalformedTIFF, e.tag)
	}
	return b.buf[offset : offset+total], nil
}

func findEntry(entries []ifdEntry, tag uint16) (ifdEntry, bool) {
	for _, e := range entries {
		if e.tag == tag {
			return e, true
		}
	}
	return ifdEntry{}, false
}

// setEntry replaces or adds an entry.
func setEntry(entries []ifdEntry, e ifdEntry) []ifdEntry {
	for i := range entries {
		if entries[i].tag == e.tag {
			entries[i] = e
			return entries
		}
	}
	return append(entries, e)
}

func asciiEntry(tag uint16, value string) ifdEntry {
	data := append([]byte(value), 0)
	return ifdEntry{tag: tag, typ: typeASCII, count: uint32(len(data)), data: data}
}

// xpEntry encodes a Windows XP* tag: UTF-16LE with a terminating NUL, typed BYTE.
func xpEntry(tag uint16, value string) ifdEntry {
	data := encodeUTF16(value, binary.LittleEndian)
	data = append(data, 0, 0)
	return ifdEntry{tag: tag, typ: typeByte, count: uint32(len(data)), data: data}
}

func shortEntry(tag uint16, value uint16, order binary.ByteOrder) ifdEntry {
	data := make([]byte, 2)
	order.PutUint16(data, value)
	return ifdEntry{tag: tag, typ: typeShort, count: 1, data: data}
}

func longEntry(tag uint16, value uint32, order binary.ByteOrder) ifdEntry {
	data := make([]byte, 4)
	order.PutUint32(data, value)
	return ifdEntry{tag: tag, typ: typeLong, count: 1, data: data}
}

func bytesEntry(tag uint16, typ uint16, data []byte) ifdEntry {
	return ifdEntry{tag: tag, typ: typ, count: uint32(len(data)), data: append([]byte(nil), data...)}
}

var unicodePrefix = []byte("UNICODE\x00")

// userCommentEntry encodes the Exif UserComment with the UNICODE character code.
func userCommentEntry(value string, order binary.ByteOrder) ifdEntry {
	data := append(append([]byte(nil), unicodePrefix...), encodeUTF16(value, order)...)
	return ifdEntry{tag: tagUserComment, typ: typeUndefined, count: uint32(len(data)), data: data}
}

func encodeUTF16(value string, order binary.ByteOrder) []byte {
	units := utf16.Encode([]rune(value))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		order.PutUint16(out[i*2:], u)
	}
	return out
}

func decodeUTF16(data []byte, order binary.ByteOrder) string {
	units := make([]uint16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		u := order.Uint16(data[i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

func pad(buf []byte) []byte {
	if len(buf)%2 == 1 {
		buf = append(buf, 0)
	}
	return buf
}

// appendIFD writes entries (sorted by tag) at the end of buf followed by any
// out-of-line values, and returns the grown buffer and the directory offset.
func appendIFD(buf []byte, order binary.ByteOrder, entries []ifdEntry, next uint32) ([]byte, uint32, error) {
	sorted := append([]ifdEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].tag < sorted[j].tag })

	buf = pad(buf)
	offset := len(buf)
	size := 2 + 12*len(sorted) + 4
	if uint64(offset)+uint64(size) > 0xFFFFFFFF {
		return nil, 0, fmt.Errorf("%w: tag block exceeds 4GiB", errMalformedTIFF)
	}
	buf = append(buf, make([]byte, size)...)
	order.PutUint16(buf[offset:], uint16(len(sorted)))

	for i, e := range sorted {
		pos := offset + 2 + 12*i
		order.PutUint16(buf[pos:], e.tag)
		order.PutUint16(buf[pos+2:], e.typ)
		order.PutUint32(buf[pos+4:], e.count)
		switch {
		case e.data == nil:
			copy(buf[pos+8:pos+12], e.raw[:])
		case len(e.data) <= 4:
			var inline [4]byte
			copy(inline[:], e.data)
			copy(buf[pos+8:pos+12], inline[:])
		default:
			buf = pad(buf)
			valueOffset := len(buf)
			buf = append(buf, e.data...)
			order.PutUint32(buf[pos+8:], uint32(valueOffset))
		}
	}
	order.PutUint32(buf[offset+2+12*len(sorted):], next)
	return buf, uint32(offset), nil
}
