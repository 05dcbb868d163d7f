package email

import (
	"strings"
)

// Multipart is a prebuilt multipart body: an ordered list of parts under a
// multipart/<subtype> content type.
type Multipart struct {
	subtype string
	parts   []Part
}

// Part is one entity of a Multipart body.
type Part struct {
	ContentType string
	// Filename marks the part as an attachment when set.
	Filename string
	Content  []byte

	// text parts are transcoded into their charset at build time.
	text bool
}

// NewMultipart returns an empty multipart body. An empty subtype means
// "mixed".
func NewMultipart(subtype string) *Multipart {
	subtype = strings.ToLower(strings.TrimPrefix(subtype, "multipart/"))
	if subtype == "" {
		subtype = "mixed"
	}
	return &Multipart{subtype: subtype}
}

// Subtype returns the multipart subtype, e.g. "mixed" or "alternative".
func (m *Multipart) Subtype() string { return m.subtype }

// Len returns the number of parts.
func (m *Multipart) Len() int { return len(m.parts) }

// Parts returns a copy of the parts.
func (m *Multipart) Parts() []Part {
	out := make([]Part, len(m.parts))
	for i, p := range m.parts {
		p.Content = append([]byte(nil), p.Content...)
		out[i] = p
	}
	return out
}

// AddPart appends a raw part. content is copied.
func (m *Multipart) AddPart(contentType string, content []byte) {
	m.parts = append(m.parts, Part{
		ContentType: contentType,
		Content:     append([]byte(nil), content...),
	})
}

// AddText appends a text/plain part. An empty charset means the builder's
// charset.
func (m *Multipart) AddText(text, charset string) {
	ct := typeTextPlain
	if charset != "" {
		ct += "; charset=" + charset
	}
	m.parts = append(m.parts, Part{
		ContentType: ct,
		Content:     []byte(text),
		text:        true,
	})
}

// AddHTML appends a text/html part. An empty charset means the builder's
// charset.
func (m *Multipart) AddHTML(html, charset string) {
	ct := "text/html"
	if charset != "" {
		ct += "; charset=" + charset
	}
	m.parts = append(m.parts, Part{
		ContentType: ct,
		Content:     []byte(html),
		text:        true,
	})
}

// AddAttachment appends an attachment part. An empty content type means
// application/octet-stream.
func (m *Multipart) AddAttachment(filename, contentType string, content []byte) {
	if contentType == "" {
		contentType = typeOctetStream
	}
	m.parts = append(m.parts, Part{
		ContentType: contentType,
		Filename:    filename,
		Content:     append([]byte(nil), content...),
	})
}
