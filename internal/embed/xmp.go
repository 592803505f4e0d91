package embed

import (
	"bytes"
	"encoding/xml"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"imagemeta/internal/domain"
)

const (
	nsDC  = "http://purl.org/dc/elements/1.1/"
	nsXMP = "http://ns.adobe.com/xap/1.0/"
)

const freshPacket = `<?xpacket begin="` + "\uFEFF" + `" id="W5M0MpCehiHzreSzNTczkc9d"?>
<x:xmpmeta xmlns:x="adobe:ns:meta/">
 <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
  <rdf:Description rdf:about=""
    xmlns:dc="` + nsDC + `"
    xmlns:xmp="` + nsXMP + `">
  </rdf:Description>
 </rdf:RDF>
</x:xmpmeta>
<?xpacket end="w"?>`

var (
	descriptionStart = regexp.MustCompile(`<rdf:Description\b[^>]*>`)
	descriptionEnd   = regexp.MustCompile(`</rdf:Description\s*>`)
	listItem         = regexp.MustCompile(`(?s)<rdf:li\b[^>]*>(.*?)</rdf:li\s*>`)
)

// xmpProperty is one managed property rendered as an element.
type xmpProperty struct {
	name string
	body string
}

// mergeXMP writes the supplied non-empty fields and the modification date into
// packet, leaving every other property as it was. An empty or unrecognised
// packet is replaced by a fresh one.
func mergeXMP(packet []byte, f domain.Fields, modified time.Time) []byte {
	doc := string(packet)
	if !descriptionStart.MatchString(doc) || !strings.Contains(doc, "<rdf:RDF") {
		doc = freshPacket
	}

	props := managedProperties(f, modified)
	for _, prop := range props {
		doc = removeProperty(doc, prop.name)
	}

	loc := descriptionStart.FindStringIndex(doc)
	start := doc[loc[0]:loc[1]]
	selfClosing := strings.HasSuffix(start, "/>")
	if selfClosing {
		start = strings.TrimSpace(strings.TrimSuffix(start, "/>")) + ">"
	}
	if !strings.Contains(doc, `xmlns:dc=`) {
		start = strings.TrimSuffix(start, ">") + "\n    xmlns:dc=\"" + nsDC + "\">"
	}
	if !strings.Contains(doc, `xmlns:xmp=`) {
		start = strings.TrimSuffix(start, ">") + "\n    xmlns:xmp=\"" + nsXMP + "\">"
	}

	var rendered strings.Builder
	for _, prop := range props {
		rendered.WriteString("\n   <")
		rendered.WriteString(prop.name)
		rendered.WriteString(">")
		rendered.WriteString(prop.body)
		rendered.WriteString("</")
		rendered.WriteString(prop.name)
		rendered.WriteString(">")
	}
	rendered.WriteString("\n  ")

	var out strings.Builder
	out.WriteString(doc[:loc[0]])
	out.WriteString(start)
	rest := doc[loc[1]:]
	if selfClosing {
		out.WriteString(rendered.String())
		out.WriteString("</rdf:Description>")
		out.WriteString(rest)
		return []byte(out.String())
	}
	end := descriptionEnd.FindStringIndex(rest)
	if end == nil {
		// Unterminated description: close it ourselves.
		out.WriteString(rest)
		out.WriteString(rendered.String())
		out.WriteString("</rdf:Description>")
		return []byte(out.String())
	}
	out.WriteString(strings.TrimRight(rest[:end[0]], " \t\r\n"))
	out.WriteString(rendered.String())
	out.WriteString(rest[end[0]:])
	return []byte(out.String())
}

func managedProperties(f domain.Fields, modified time.Time) []xmpProperty {
	var props []xmpProperty
	if title := strings.TrimSpace(f.Title); title != "" {
		props = append(props, xmpProperty{"dc:title", altBody(title)})
	}
	if description := strings.TrimSpace(f.Description); description != "" {
		props = append(props, xmpProperty{"dc:description", altBody(description)})
	}
	// Keywords go into a single rdf:li holding the joined string, matching how
	// existing files written by this tool store them.
	if keywords := domain.JoinKeywords(f.Keywords); keywords != "" {
		props = append(props, xmpProperty{"dc:subject", "<rdf:Bag><rdf:li>" + escape(keywords) + "</rdf:li></rdf:Bag>"})
	}
	if artist := strings.TrimSpace(f.Artist); artist != "" {
		props = append(props, xmpProperty{"dc:creator", "<rdf:Seq><rdf:li>" + escape(artist) + "</rdf:li></rdf:Seq>"})
	}
	if copyright := strings.TrimSpace(f.Copyright); copyright != "" {
		props = append(props, xmpProperty{"dc:rights", altBody(copyright)})
	}
	if f.Rating != nil {
		props = append(props, xmpProperty{"xmp:Rating", strconv.Itoa(clampRating(*f.Rating))})
	}
	stamp := modified.Format(time.RFC3339)
	props = append(props,
		xmpProperty{"xmp:ModifyDate", stamp},
		xmpProperty{"xmp:MetadataDate", stamp},
	)
	return props
}

func altBody(value string) string {
	return `<rdf:Alt><rdf:li xml:lang="x-default">` + escape(value) + `</rdf:li></rdf:Alt>`
}

func escape(value string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(value))
	return buf.String()
}

// removeProperty deletes every element and attribute form of name.
func removeProperty(doc, name string) string {
	quoted := regexp.QuoteMeta(name)
	element := regexp.MustCompile(`(?s)\s*<` + quoted + `(?:\s[^>]*)?>.*?</` + quoted + `\s*>`)
	empty := regexp.MustCompile(`\s*<` + quoted + `(?:\s[^>]*)?/>`)
	attribute := regexp.MustCompile(`\s+` + quoted + `\s*=\s*(?:"[^"]*"|'[^']*')`)

	doc = empty.ReplaceAllString(doc, "")
	doc = element.ReplaceAllString(doc, "")
	return descriptionStart.ReplaceAllStringFunc(doc, func(tag string) string {
		return attribute.ReplaceAllString(tag, "")
	})
}

// xmpValues holds managed values read back from a packet.
type xmpValues struct {
	Title       string
	Description string
	Keywords    string
	Creator     string
	Rights      string
	Rating      *int
}

func readXMP(packet []byte) xmpValues {
	doc := string(packet)
	var out xmpValues
	out.Title = firstItem(doc, "dc:title")
	out.Description = firstItem(doc, "dc:description")
	out.Keywords = strings.Join(allItems(doc, "dc:subject"), domain.KeywordSeparator)
	out.Creator = strings.Join(allItems(doc, "dc:creator"), domain.KeywordSeparator)
	out.Rights = firstItem(doc, "dc:rights")
	if raw := simpleValue(doc, "xmp:Rating"); raw != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			out.Rating = &n
		}
	}
	return out
}

func propertyBody(doc, name string) (string, bool) {
	quoted := regexp.QuoteMeta(name)
	re := regexp.MustCompile(`(?s)<` + quoted + `(?:\s[^>]*)?>(.*?)</` + quoted + `\s*>`)
	m := re.FindStringSubmatch(doc)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func allItems(doc, name string) []string {
	body, ok := propertyBody(doc, name)
	if !ok {
		return nil
	}
	var items []string
	for _, m := range listItem.FindAllStringSubmatch(body, -1) {
		if v := strings.TrimSpace(html.UnescapeString(m[1])); v != "" {
			items = append(items, v)
		}
	}
	return items
}

func firstItem(doc, name string) string {
	items := allItems(doc, name)
	if len(items) == 0 {
		return ""
	}
	return items[0]
}

func simpleValue(doc, name string) string {
	if body, ok := propertyBody(doc, name); ok {
		return html.UnescapeString(body)
	}
	attr := regexp.MustCompile(`\s` + regexp.QuoteMeta(name) + `\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	for _, tag := range descriptionStart.FindAllString(doc, -1) {
		if m := attr.FindStringSubmatch(tag); m != nil {
			return html.UnescapeString(m[1] + m[2])
		}
	}
	return ""
}
