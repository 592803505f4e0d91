package embed

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/rwcarlsen/goexif/exif"

	"imagemeta/internal/domain"
	"imagemeta/internal/imagefmt"
)

// Read returns the descriptive metadata currently stored in path. Tag values
// win over XMP when both are present.
func (e *Embedder) Read(path string) (domain.Fields, error) {
	data, err := e.readFile(path)
	if err != nil {
		return domain.Fields{}, fmt.Errorf("read image: %w", err)
	}

	var tiffData, packet []byte
	switch format := imagefmt.Sniff(data); format {
	case imagefmt.JPEG:
		tiffData, packet, err = jpegMetadata(data)
	case imagefmt.PNG:
		packet, err = pngXMP(data)
	case imagefmt.TIFF:
		tiffData = data
		if block, perr := parseTagBlock(data); perr == nil {
			if entry, ok := findEntry(block.ifd0, tagXMLPacket); ok {
				packet, _ = block.value(entry)
			}
		}
	default:
		return domain.Fields{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return domain.Fields{}, err
	}

	var fields domain.Fields
	if tiffData != nil {
		fields = readTags(tiffData)
	}

	xmp := readXMP(packet)
	fields.Title = firstNonEmpty(fields.Title, xmp.Title)
	fields.Description = firstNonEmpty(fields.Description, xmp.Description)
	fields.Artist = firstNonEmpty(fields.Artist, xmp.Creator)
	fields.Copyright = firstNonEmpty(fields.Copyright, xmp.Rights)
	if len(fields.Keywords) == 0 {
		fields.Keywords = domain.SplitKeywords(xmp.Keywords)
	}
	if fields.Rating == nil {
		fields.Rating = xmp.Rating
	}
	return fields, nil
}

// readTags decodes the standard tags with goexif and the Windows XP and rating
// tags with the local parser.
func readTags(tiffData []byte) domain.Fields {
	var fields domain.Fields
	if x, err := exif.Decode(bytes.NewReader(tiffData)); err == nil {
		fields.Title = stringTag(x, exif.ImageDescription)
		fields.Artist = stringTag(x, exif.Artist)
		fields.Copyright = stringTag(x, exif.Copyright)
		if tag, err := x.Get(exif.UserComment); err == nil {
			fields.Description = strings.TrimSpace(decodeUserComment(tag.Val, x.Tiff.Order))
		}
	}

	block, err := parseTagBlock(tiffData)
	if err != nil {
		return fields
	}
	keywords, rating := block.readTagFields()
	fields.Keywords = domain.SplitKeywords(strings.ReplaceAll(keywords, ";", ","))
	fields.Rating = rating
	if fields.Description == "" {
		if entry, ok := findEntry(block.ifd0, tagXPComment); ok {
			if raw, err := block.value(entry); err == nil {
				fields.Description = strings.TrimSpace(decodeUTF16(raw, binary.LittleEndian))
			}
		}
	}
	return fields
}

func stringTag(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	value, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(value, "\x00"))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
