// Package imagefmt identifies image containers and verifies they decode.
package imagefmt

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Format names a recognised image container.
type Format string

const (
	JPEG    Format = "jpeg"
	PNG     Format = "png"
	TIFF    Format = "tiff"
	GIF     Format = "gif"
	BMP     Format = "bmp"
	WEBP    Format = "webp"
	Unknown Format = ""
)

// ErrUndecodable is returned when bytes are not a decodable image.
var ErrUndecodable = errors.New("image is not decodable")

var extensions = map[string]Format{
	".jpg":  JPEG,
	".jpeg": JPEG,
	".png":  PNG,
	".tif":  TIFF,
	".tiff": TIFF,
	".gif":  GIF,
	".bmp":  BMP,
	".webp": WEBP,
}

// FromExtension maps a file name to a format by extension.
func FromExtension(name string) Format {
	return extensions[strings.ToLower(filepath.Ext(name))]
}

// IsImageName reports whether name carries a known image extension.
func IsImageName(name string) bool {
	return FromExtension(name) != Unknown
}

// Sniff identifies a container from its leading bytes.
func Sniff(data []byte) Format {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return JPEG
	case len(data) >= 8 && bytes.Equal(data[:8], []byte("\x89PNG\r\n\x1a\n")):
		return PNG
	case len(data) >= 4 && (bytes.Equal(data[:4], []byte("II*\x00")) || bytes.Equal(data[:4], []byte("MM\x00*"))):
		return TIFF
	case len(data) >= 6 && (bytes.Equal(data[:6], []byte("GIF87a")) || bytes.Equal(data[:6], []byte("GIF89a"))):
		return GIF
	case len(data) >= 2 && data[0] == 'B' && data[1] == 'M':
		return BMP
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return WEBP
	default:
		return Unknown
	}
}

// MIMEType returns the media type sent to vision models.
func (f Format) MIMEType() string {
	switch f {
	case JPEG:
		return "image/jpeg"
	case PNG:
		return "image/png"
	case TIFF:
		return "image/tiff"
	case GIF:
		return "image/gif"
	case BMP:
		return "image/bmp"
	case WEBP:
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// Probe checks that data decodes as an image and returns its container format.
func Probe(data []byte) (Format, error) {
	format := Sniff(data)
	if format == Unknown {
		return Unknown, ErrUndecodable
	}
	if err := decodeConfig(format, bytes.NewReader(data)); err != nil {
		return Unknown, err
	}
	return format, nil
}

// ProbeFile opens path and checks that it decodes as an image.
func ProbeFile(path string) (Format, error) {
	file, err := os.Open(path)
	if err != nil {
		return Unknown, err
	}
	defer file.Close()

	head := make([]byte, 16)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return Unknown, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	format := Sniff(head[:n])
	if format == Unknown {
		return Unknown, ErrUndecodable
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return Unknown, err
	}
	if err := decodeConfig(format, file); err != nil {
		return Unknown, err
	}
	return format, nil
}

func decodeConfig(format Format, r io.Reader) error {
	var err error
	if format == WEBP {
		_, err = webp.DecodeConfig(r)
	} else {
		_, _, err = image.DecodeConfig(r)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return nil
}
