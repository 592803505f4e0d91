package embed

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"imagemeta/internal/domain"
)

// maxSegmentPayload is the largest APPn payload: 0xFFFF minus the length field.
const maxSegmentPayload = 0xFFFF - 2

var (
	exifHeader = []byte("Exif\x00\x00")
	xmpHeader  = []byte("http://ns.adobe.com/xap/1.0/\x00")
)

const (
	markerSOI  = 0xD8
	markerEOI  = 0xD9
	markerSOS  = 0xDA
	markerAPP0 = 0xE0
	markerAPP1 = 0xE1
)

type jpegSegment struct {
	marker  byte
	raw     []byte
	payload []byte
}

// splitJPEG returns the marker segments before the scan data and the remaining
// bytes (SOS onward), which are never modified.
func splitJPEG(data []byte) ([]jpegSegment, []byte, error) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != markerSOI {
		return nil, nil, fmt.Errorf("%w: missing SOI", ErrMalformedMetadata)
	}
	var segments []jpegSegment
	pos := 2
	for pos < len(data) {
		start := pos
		if data[pos] != 0xFF {
			return nil, nil, fmt.Errorf("%w: expected marker at %d", ErrMalformedMetadata, pos)
		}
		for pos < len(data) && data[pos] == 0xFF {
			pos++
		}
		if pos >= len(data) {
			break
		}
		marker := data[pos]
		pos++

		switch {
		case marker == markerEOI || marker == markerSOS:
			return segments, data[start:], nil
		case marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7):
			segments = append(segments, jpegSegment{marker: marker, raw: data[start:pos]})
			continue
		}

		if pos+2 > len(data) {
			return nil, nil, fmt.Errorf("%w: truncated segment length", ErrMalformedMetadata)
		}
		length := int(binary.BigEndian.Uint16(data[pos:]))
		if length < 2 || pos+length > len(data) {
			return nil, nil, fmt.Errorf("%w: segment 0x%02X overruns file", ErrMalformedMetadata, marker)
		}
		end := pos + length
		segments = append(segments, jpegSegment{
			marker:  marker,
			raw:     data[start:end],
			payload: data[pos+2 : end],
		})
		pos = end
	}
	return nil, nil, fmt.Errorf("%w: no image data", ErrMalformedMetadata)
}

func buildSegment(marker byte, payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	out[0] = 0xFF
	out[1] = marker
	binary.BigEndian.PutUint16(out[2:], uint16(len(payload)+2))
	copy(out[4:], payload)
	return out
}

func checkSegmentSize(kind string, payload int) error {
	if payload > maxSegmentPayload {
		return fmt.Errorf("%w: %s block is %d bytes, limit %d", ErrMetadataTooLarge, kind, payload, maxSegmentPayload)
	}
	return nil
}

// rewriteJPEG replaces (or inserts) the Exif and XMP APP1 segments. All other
// segments and the compressed scan data are copied byte for byte.
func rewriteJPEG(data []byte, f domain.Fields, modified time.Time) ([]byte, error) {
	segments, tail, err := splitJPEG(data)
	if err != nil {
		return nil, err
	}

	exifIdx, xmpIdx := -1, -1
	for i, seg := range segments {
		if seg.marker != markerAPP1 {
			continue
		}
		switch {
		case exifIdx < 0 && bytes.HasPrefix(seg.payload, exifHeader):
			exifIdx = i
		case xmpIdx < 0 && bytes.HasPrefix(seg.payload, xmpHeader):
			xmpIdx = i
		}
	}

	block := emptyTagBlock()
	if exifIdx >= 0 {
		block, err = parseTagBlock(segments[exifIdx].payload[len(exifHeader):])
		if err != nil {
			return nil, fmt.Errorf("%w: exif: %v", ErrMalformedMetadata, err)
		}
	}
	blob, err := block.merge(tagUpdate{fields: f, modified: modified})
	if err != nil {
		return nil, fmt.Errorf("%w: exif: %v", ErrMalformedMetadata, err)
	}
	exifPayload := append(append([]byte(nil), exifHeader...), blob...)
	if err := checkSegmentSize("exif", len(exifPayload)); err != nil {
		return nil, err
	}

	var existingXMP []byte
	if xmpIdx >= 0 {
		existingXMP = segments[xmpIdx].payload[len(xmpHeader):]
	}
	xmpPayload := append(append([]byte(nil), xmpHeader...), mergeXMP(existingXMP, f, modified)...)
	if err := checkSegmentSize("xmp", len(xmpPayload)); err != nil {
		return nil, err
	}

	exifSeg := buildSegment(markerAPP1, exifPayload)
	xmpSeg := buildSegment(markerAPP1, xmpPayload)

	// New Exif goes after any leading JFIF/JFXX APP0 segments.
	insertAt := 0
	for insertAt < len(segments) && segments[insertAt].marker == markerAPP0 {
		insertAt++
	}

	out := bytes.NewBuffer(make([]byte, 0, len(data)+len(exifSeg)+len(xmpSeg)))
	out.Write([]byte{0xFF, markerSOI})
	insertNew := func() {
		out.Write(exifSeg)
		if xmpIdx < 0 {
			out.Write(xmpSeg)
		}
	}
	for i, seg := range segments {
		if exifIdx < 0 && i == insertAt {
			insertNew()
		}
		switch i {
		case exifIdx:
			insertNew()
		case xmpIdx:
			out.Write(xmpSeg)
		default:
			out.Write(seg.raw)
		}
	}
	if exifIdx < 0 && insertAt == len(segments) {
		insertNew()
	}
	out.Write(tail)
	return out.Bytes(), nil
}

// jpegMetadata returns the raw tag block and XMP packet of a JPEG, if present.
func jpegMetadata(data []byte) (tiff []byte, xmp []byte, err error) {
	segments, _, err := splitJPEG(data)
	if err != nil {
		return nil, nil, err
	}
	for _, seg := range segments {
		if seg.marker != markerAPP1 {
			continue
		}
		if tiff == nil && bytes.HasPrefix(seg.payload, exifHeader) {
			tiff = seg.payload[len(exifHeader):]
		} else if xmp == nil && bytes.HasPrefix(seg.payload, xmpHeader) {
			xmp = seg.payload[len(xmpHeader):]
		}
	}
	return tiff, xmp, nil
}
