package embed

import (
	"bytes"
	"image"

	"imagemeta/internal/imagefmt"
)

// sameImage reports whether a and b hold the same image, ignoring the
// metadata blocks Apply rewrites.
func sameImage(a, b []byte) bool {
	format := imagefmt.Sniff(a)
	if format != imagefmt.Sniff(b) {
		return false
	}
	switch format {
	case imagefmt.JPEG:
		return payloadEqual(a, b, jpegPayload)
	case imagefmt.PNG:
		return payloadEqual(a, b, pngPayload)
	case imagefmt.TIFF:
		return pixelsEqual(a, b)
	default:
		return false
	}
}

func payloadEqual(a, b []byte, payload func([]byte) ([]byte, bool)) bool {
	pa, ok := payload(a)
	if !ok {
		return false
	}
	pb, ok := payload(b)
	return ok && bytes.Equal(pa, pb)
}

// jpegPayload returns every segment except the Exif and XMP APP1 blocks, plus the scan data.
func jpegPayload(data []byte) ([]byte, bool) {
	segments, tail, err := splitJPEG(data)
	if err != nil {
		return nil, false
	}
	var out bytes.Buffer
	for _, seg := range segments {
		if seg.marker == markerAPP1 && (bytes.HasPrefix(seg.payload, exifHeader) || bytes.HasPrefix(seg.payload, xmpHeader)) {
			continue
		}
		out.Write(seg.raw)
	}
	out.Write(tail)
	return out.Bytes(), true
}

// pngPayload returns every chunk except the XMP iTXt chunk, plus any bytes after IEND.
func pngPayload(data []byte) ([]byte, bool) {
	chunks, err := splitPNG(data)
	if err != nil {
		return nil, false
	}
	var out bytes.Buffer
	consumed := len(pngSignature)
	for _, chunk := range chunks {
		consumed += len(chunk.raw)
		if chunk.typ == "iTXt" {
			if keyword, _, err := parseITXt(chunk.data); err == nil && keyword == xmpKeyword {
				continue
			}
		}
		out.Write(chunk.raw)
	}
	out.Write(data[consumed:])
	return out.Bytes(), true
}

// pixelsEqual decodes both images and compares them pixel by pixel.
func pixelsEqual(a, b []byte) bool {
	ia, _, err := image.Decode(bytes.NewReader(a))
	if err != nil {
		return false
	}
	ib, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return false
	}
	bounds := ia.Bounds()
	if bounds != ib.Bounds() {
		return false
	}
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r1, g1, b1, a1 := ia.At(x, y).RGBA()
			r2, g2, b2, a2 := ib.At(x, y).RGBA()
			if r1 != r2 || g1 != g2 || b1 != b2 || a1 != a2 {
				return false
			}
		}
	}
	return true
}
