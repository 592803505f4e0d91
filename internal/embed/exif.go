package embed

import (
	"encoding/binary"
	"sort"
	"strings"
	"time"

	"imagemeta/internal/domain"
)

const exifTimeLayout = "2006:01:02 15:04:05"

// keywordSeparatorXP is the separator Windows Explorer expects in XPKeywords.
const keywordSeparatorXP = "; "

// tagUpdate describes what a merge writes into a tag block.
type tagUpdate struct {
	fields   domain.Fields
	modified time.Time
	// xmp is embedded as XMLPacket; used for TIFF files, which have no other XMP carrier.
	xmp []byte
}

// merge appends a rewritten IFD0 (and Exif IFD when needed) to the block and
// returns the new bytes. Entries not named by the update are copied unchanged,
// and their out-of-line values stay where they were. Directories left at the end
// of the block by an earlier merge are dropped first so repeated edits do not grow it.
func (b *tagBlock) merge(u tagUpdate) ([]byte, error) {
	order := b.order
	f := u.fields
	ifd0 := append([]ifdEntry(nil), b.ifd0...)

	if title := strings.TrimSpace(f.Title); title != "" {
		ifd0 = setEntry(ifd0, asciiEntry(tagImageDescription, title))
		ifd0 = setEntry(ifd0, xpEntry(tagXPTitle, title))
	}
	if artist := strings.TrimSpace(f.Artist); artist != "" {
		ifd0 = setEntry(ifd0, asciiEntry(tagArtist, artist))
	}
	if copyright := strings.TrimSpace(f.Copyright); copyright != "" {
		ifd0 = setEntry(ifd0, asciiEntry(tagCopyright, copyright))
	}
	if keywords := domain.SplitKeywords(domain.JoinKeywords(f.Keywords)); len(keywords) > 0 {
		ifd0 = setEntry(ifd0, xpEntry(tagXPKeywords, strings.Join(keywords, keywordSeparatorXP)))
	}
	description := strings.TrimSpace(f.Description)
	if description != "" {
		ifd0 = setEntry(ifd0, xpEntry(tagXPComment, description))
	}
	if f.Rating != nil {
		ifd0 = setEntry(ifd0, shortEntry(tagRating, uint16(clampRating(*f.Rating)), order))
	}
	if u.xmp != nil {
		ifd0 = setEntry(ifd0, bytesEntry(tagXMLPacket, typeByte, u.xmp))
	}
	ifd0 = setEntry(ifd0, asciiEntry(tagDateTime, u.modified.Format(exifTimeLayout)))

	exif, hasExif, err := b.exifDirectory()
	if err != nil {
		return nil, err
	}
	var exifEntries []ifdEntry
	if hasExif {
		exifEntries = append([]ifdEntry(nil), exif.entries...)
	}
	if description != "" {
		exifEntries = setEntry(exifEntries, userCommentEntry(description, order))
	}

	cut, exifInTail := b.reclaimStart(exif, hasExif)
	rewriteExif := description != "" || exifInTail
	if cut < uint64(len(b.buf)) {
		keptIFD0, ok := b.detachTail(ifd0, cut)
		keptExif, exifOK := b.detachTail(exifEntries, cut)
		if ok && (exifOK || !rewriteExif) {
			ifd0, exifEntries = keptIFD0, keptExif
		} else {
			cut = uint64(len(b.buf))
		}
	}

	buf := make([]byte, cut, cut+4096)
	copy(buf, b.buf[:cut])

	if rewriteExif {
		var exifOffset uint32
		buf, exifOffset, err = appendIFD(buf, order, exifEntries, exif.next)
		if err != nil {
			return nil, err
		}
		ifd0 = setEntry(ifd0, longEntry(tagExifIFD, exifOffset, order))
	}

	buf, ifd0Offset, err := appendIFD(buf, order, ifd0, b.next)
	if err != nil {
		return nil, err
	}
	order.PutUint32(buf[4:8], ifd0Offset)
	return buf, nil
}

// managedTags are the tags merge writes. Their values may be moved.
var managedTags = map[uint16]bool{
	tagImageDescription: true,
	tagDateTime:         true,
	tagArtist:           true,
	tagXMLPacket:        true,
	tagRating:           true,
	tagCopyright:        true,
	tagUserComment:      true,
	tagXPTitle:          true,
	tagXPComment:        true,
	tagXPKeywords:       true,
}

// directory is a parsed IFD and its position in the block.
type directory struct {
	offset  uint32
	entries []ifdEntry
	next    uint32
}

type span struct{ start, end uint64 }

// exifDirectory returns the Exif IFD referenced from IFD0, if any.
func (b *tagBlock) exifDirectory() (directory, bool, error) {
	pointer, ok := findEntry(b.ifd0, tagExifIFD)
	if !ok {
		return directory{}, false, nil
	}
	raw, err := b.value(pointer)
	if err != nil {
		return directory{}, false, err
	}
	if len(raw) < 4 {
		return directory{}, false, errMalformedTIFF
	}
	offset := b.order.Uint32(raw)
	entries, next, err := readIFD(b.buf, b.order, offset)
	if err != nil {
		return directory{}, false, err
	}
	return directory{offset: offset, entries: entries, next: next}, true, nil
}

// reclaimStart returns the offset where the trailing IFD0 (and Exif IFD, when
// exifInTail) begin. It returns len(buf) when anything else lives past them.
func (b *tagBlock) reclaimStart(exif directory, hasExif bool) (cut uint64, exifInTail bool) {
	size := uint64(len(b.buf))
	if b.ifd0Offset == 0 {
		return size, false
	}
	ifd0 := directory{offset: b.ifd0Offset, entries: b.ifd0, next: b.next}
	if hasExif {
		if cut, ok := b.ownedTail(exif, ifd0); ok {
			return cut, true
		}
	}
	if cut, ok := b.ownedTail(ifd0); ok {
		if hasExif && uint64(exif.offset) >= cut {
			return size, false
		}
		return cut, false
	}
	return size, false
}

// ownedTail reports where dirs start when the block from there to its end holds
// only those directories and their out-of-line values, plus pad bytes.
func (b *tagBlock) ownedTail(dirs ...directory) (uint64, bool) {
	size := uint64(len(b.buf))
	cut := size
	for _, d := range dirs {
		if uint64(d.offset) < cut {
			cut = uint64(d.offset)
		}
	}
	if cut < 8 {
		return 0, false
	}

	var spans []span
	for _, d := range dirs {
		if d.next != 0 && uint64(d.next) >= cut {
			return 0, false
		}
		start := uint64(d.offset)
		spans = append(spans, span{start, start + 2 + 12*uint64(len(d.entries)) + 4})
		for _, e := range d.entries {
			start, end, ok := b.valueRange(e)
			if !ok || end <= cut {
				continue
			}
			if start < cut {
				return 0, false
			}
			spans = append(spans, span{start, end})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	pos := cut
	for _, s := range spans {
		if s.start > pos+1 {
			return 0, false
		}
		if s.end > pos {
			pos = s.end
		}
	}
	return cut, pos <= size && size-pos <= 1
}

// detachTail copies values stored at or past cut into their entries so the tail
// can be dropped. It fails when such a value belongs to a tag merge does not own.
func (b *tagBlock) detachTail(entries []ifdEntry, cut uint64) ([]ifdEntry, bool) {
	out := append([]ifdEntry(nil), entries...)
	for i := range out {
		start, end, ok := b.valueRange(out[i])
		if !ok || end <= cut {
			continue
		}
		if start < cut || end > uint64(len(b.buf)) || !managedTags[out[i].tag] {
			return nil, false
		}
		out[i].data = append([]byte(nil), b.buf[start:end]...)
	}
	return out, true
}

// valueRange returns where a copied entry's out-of-line value sits in the block.
func (b *tagBlock) valueRange(e ifdEntry) (uint64, uint64, bool) {
	if e.data != nil {
		return 0, 0, false
	}
	size, ok := typeSizes[e.typ]
	if !ok {
		return 0, 0, false
	}
	total := uint64(size) * uint64(e.count)
	if total <= 4 {
		return 0, 0, false
	}
	start := uint64(b.order.Uint32(e.raw[:]))
	return start, start + total, true
}

func clampRating(rating int) int {
	switch {
	case rating < 0:
		return 0
	case rating > 5:
		return 5
	default:
		return rating
	}
}

// readTagFields extracts the managed values from a block. Used by Read for tags
// the generic EXIF decoder does not expose.
func (b *tagBlock) readTagFields() (keywords string, rating *int) {
	if e, ok := findEntry(b.ifd0, tagXPKeywords); ok {
		if raw, err := b.value(e); err == nil {
			keywords = decodeUTF16(raw, binary.LittleEndian)
		}
	}
	if e, ok := findEntry(b.ifd0, tagRating); ok && e.typ == typeShort {
		if raw, err := b.value(e); err == nil && len(raw) >= 2 {
			value := int(b.order.Uint16(raw))
			rating = &value
		}
	}
	return keywords, rating
}

// decodeUserComment interprets an Exif UserComment value.
func decodeUserComment(raw []byte, order binary.ByteOrder) string {
	if len(raw) < 8 {
		return strings.TrimRight(string(raw), "\x00 ")
	}
	if string(raw[:8]) == string(unicodePrefix) {
		return decodeUTF16(raw[8:], order)
	}
	return strings.TrimRight(string(raw[8:]), "\x00 ")
}
