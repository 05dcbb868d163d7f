package email

import (
	"fmt"
	"io"
	"mime"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

const (
	typeTextPlain   = "text/plain"
	typeOctetStream = "application/octet-stream"
)

// SetContent sets the message content. content may be a string, a []byte
// or an io.Reader, which is read immediately; nil clears the content.
// Other payload types are rejected without touching the builder.
func (b *MessageBuilder) SetContent(content any, contentType string) error {
	var (
		data []byte
		text bool
	)
	switch v := content.(type) {
	case nil:
		b.content, b.hasContent, b.textContent = nil, false, false
		b.UpdateContentType(contentType)
		return nil
	case string:
		data, text = []byte(v), true
	case []byte:
		data = append([]byte(nil), v...)
	case io.Reader:
		read, err := io.ReadAll(v)
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		data = read
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedContent, content)
	}

	b.content, b.hasContent, b.textContent = data, true, text
	b.UpdateContentType(contentType)
	return nil
}

// effectiveCharset returns the builder charset or the configured default.
func (b *MessageBuilder) effectiveCharset() string {
	if b.charset != "" {
		return b.charset
	}
	return b.opts.Charset
}

// parseContentType accepts only full "type/subtype" media types.
func parseContentType(ct string) (string, map[string]string, bool) {
	if strings.TrimSpace(ct) == "" {
		return "", nil, false
	}
	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil || !strings.Contains(mediaType, "/") {
		return "", nil, false
	}
	if params == nil {
		params = make(map[string]string)
	}
	return mediaType, params, true
}

// encodeText converts UTF-8 text into charset and returns the canonical
// charset name.
func encodeText(text []byte, charset string) ([]byte, string, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedCharset, charset)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		name = strings.ToLower(charset)
	}
	out, err := enc.NewEncoder().Bytes(text)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode text as %s: %w", name, err)
	}
	return out, name, nil
}

// transferEncoding picks quoted-printable for text and base64 for the rest.
func transferEncoding(mediaType string) string {
	if strings.HasPrefix(mediaType, "text/") {
		return "quoted-printable"
	}
	return "base64"
}

var headerSanitizer = strings.NewReplacer("\r", "", "\n", "")

func sanitizeHeaderValue(s string) string {
	return headerSanitizer.Replace(s)
}
