package embed

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"time"

	"imagemeta/internal/domain"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

const xmpKeyword = "XML:com.adobe.xmp"

type pngChunk struct {
	typ  string
	raw  []byte
	data []byte
}

func splitPNG(data []byte) ([]pngChunk, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, fmt.Errorf("%w: missing png signature", ErrMalformedMetadata)
	}
	var chunks []pngChunk
	pos := len(pngSignature)
	for pos < len(data) {
		if pos+8 > len(data) {
			return nil, fmt.Errorf("%w: truncated chunk header", ErrMalformedMetadata)
		}
		length := int(binary.BigEndian.Uint32(data[pos:]))
		end := pos + 12 + length
		if length < 0 || end > len(data) || end < pos {
			return nil, fmt.Errorf("%w: chunk overruns file", ErrMalformedMetadata)
		}
		chunks = append(chunks, pngChunk{
			typ:  string(data[pos+4 : pos+8]),
			raw:  data[pos:end],
			data: data[pos+8 : pos+8+length],
		})
		pos = end
		if chunks[len(chunks)-1].typ == "IEND" {
			break
		}
	}
	return chunks, nil
}

// parseITXt returns the keyword and decoded text of an iTXt chunk.
func parseITXt(data []byte) (string, []byte, error) {
	keyword, rest, ok := bytes.Cut(data, []byte{0})
	if !ok || len(rest) < 2 {
		return "", nil, fmt.Errorf("%w: bad iTXt", ErrMalformedMetadata)
	}
	compressed := rest[0] == 1
	rest = rest[2:]
	_, rest, ok = bytes.Cut(rest, []byte{0}) // language tag
	if !ok {
		return "", nil, fmt.Errorf("%w: bad iTXt", ErrMalformedMetadata)
	}
	_, text, ok := bytes.Cut(rest, []byte{0}) // translated keyword
	if !ok {
		return "", nil, fmt.Errorf("%w: bad iTXt", ErrMalformedMetadata)
	}
	if compressed {
		reader, err := zlib.NewReader(bytes.NewReader(text))
		if err != nil {
			return "", nil, fmt.Errorf("%w: iTXt: %v", ErrMalformedMetadata, err)
		}
		defer reader.Close()
		text, err = io.ReadAll(reader)
		if err != nil {
			return "", nil, fmt.Errorf("%w: iTXt: %v", ErrMalformedMetadata, err)
		}
	}
	return string(keyword), text, nil
}

func buildChunk(typ string, data []byte) []byte {
	out := make([]byte, 12+len(data))
	binary.BigEndian.PutUint32(out, uint32(len(data)))
	copy(out[4:8], typ)
	copy(out[8:], data)
	binary.BigEndian.PutUint32(out[8+len(data):], crc32.ChecksumIEEE(out[4:8+len(data)]))
	return out
}

func buildXMPChunk(packet []byte) []byte {
	var data bytes.Buffer
	data.WriteString(xmpKeyword)
	data.Write([]byte{0, 0, 0}) // separator, uncompressed, method
	data.WriteByte(0)           // empty language tag
	data.WriteByte(0)           // empty translated keyword
	data.Write(packet)
	return buildChunk("iTXt", data.Bytes())
}

// rewritePNG replaces the XMP iTXt chunk, or inserts one before the first IDAT.
// Every other chunk is copied byte for byte.
func rewritePNG(data []byte, f domain.Fields, modified time.Time) ([]byte, error) {
	chunks, err := splitPNG(data)
	if err != nil {
		return nil, err
	}

	xmpIdx := -1
	var existing []byte
	for i, chunk := range chunks {
		if chunk.typ != "iTXt" {
			continue
		}
		keyword, text, err := parseITXt(chunk.data)
		if err != nil || keyword != xmpKeyword {
			continue
		}
		xmpIdx, existing = i, text
		break
	}

	xmpChunk := buildXMPChunk(mergeXMP(existing, f, modified))

	out := bytes.NewBuffer(make([]byte, 0, len(data)+len(xmpChunk)))
	out.Write(pngSignature)
	inserted := false
	for i, chunk := range chunks {
		switch {
		case i == xmpIdx:
			out.Write(xmpChunk)
			continue
		case xmpIdx < 0 && !inserted && (chunk.typ == "IDAT" || chunk.typ == "IEND"):
			out.Write(xmpChunk)
			inserted = true
		}
		out.Write(chunk.raw)
	}
	if xmpIdx < 0 && !inserted {
		out.Write(xmpChunk)
	}
	// Bytes after IEND are preserved.
	consumed := len(pngSignature)
	for _, chunk := range chunks {
		consumed += len(chunk.raw)
	}
	out.Write(data[consumed:])
	return out.Bytes(), nil
}

// pngXMP returns the XMP packet of a PNG, if present.
func pngXMP(data []byte) ([]byte, error) {
	chunks, err := splitPNG(data)
	if err != nil {
		return nil, err
	}
	for _, chunk := range chunks {
		if chunk.typ != "iTXt" {
			continue
		}
		if keyword, text, err := parseITXt(chunk.data); err == nil && keyword == xmpKeyword {
			return text, nil
		}
	}
	return nil, nil
}
