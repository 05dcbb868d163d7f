package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime/quotedprintable"
	"strings"

	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
)

// Build validates the builder and assembles the message. Build is
// idempotent: once it succeeds, every later call returns the same *Message,
// whatever was changed on the builder in between.
func (b *MessageBuilder) Build() (*Message, error) {
	if b.built != nil {
		return b.built, nil
	}

	if b.from == nil {
		return nil, ErrMissingSender
	}
	if len(b.to)+len(b.cc)+len(b.bcc) == 0 {
		return nil, ErrMissingRecipient
	}

	session, err := b.MailSession()
	if err != nil {
		return nil, err
	}

	date := b.SentDate()

	var header mail.Header
	header.Set("MIME-Version", "1.0")
	header.SetDate(date)
	header.SetAddressList("From", []*mail.Address{b.from.mailAddress()})
	if len(b.replyTo) > 0 {
		header.SetAddressList("Reply-To", toMailAddresses(b.replyTo))
	}
	if len(b.to) > 0 {
		header.SetAddressList("To", toMailAddresses(b.to))
	}
	if len(b.cc) > 0 {
		header.SetAddressList("Cc", toMailAddresses(b.cc))
	}

	subject := sanitizeHeaderValue(b.subject)
	if subject != "" {
		header.SetSubject(subject)
	}

	for _, name := range b.headerNames {
		header.Set(name, sanitizeHeaderValue(b.headers[name]))
	}
	if !header.Has("Message-Id") {
		header.Set("Message-Id", GenerateMessageID(b.from.Email))
	}

	var buf bytes.Buffer
	if err := b.writeBody(&buf, &header); err != nil {
		return nil, err
	}

	msg := &Message{
		from:      *b.from,
		to:        cloneAddresses(b.to),
		cc:        cloneAddresses(b.cc),
		bcc:       cloneAddresses(b.bcc),
		replyTo:   cloneAddresses(b.replyTo),
		subject:   subject,
		date:      date,
		messageID: header.Get("Message-Id"),
		header:    header,
		session:   *session,
		raw:       buf.Bytes(),
	}

	b.log.Debug().
		Str("message_id", msg.messageID).
		Str("from", msg.from.Email).
		Strs("recipients", msg.Recipients()).
		Int("size", len(msg.raw)).
		Msg("Built message")

	b.built = msg
	return msg, nil
}

// writeBody picks the body source: explicit content, then the multipart
// body, then an empty text body.
func (b *MessageBuilder) writeBody(w io.Writer, header *mail.Header) error {
	switch {
	case b.hasContent:
		return b.writeContent(w, header)
	case b.body != nil:
		return b.writeMultipart(w, header, b.body)
	default:
		header.SetContentType(typeTextPlain, map[string]string{"charset": b.effectiveCharset()})
		header.Set("Content-Transfer-Encoding", "7bit")
		return writeEntity(w, header.Header.Header, nil)
	}
}

func (b *MessageBuilder) writeContent(w io.Writer, header *mail.Header) error {
	ph, data, err := b.partHeader(Part{
		ContentType: b.contentType,
		Content:     b.content,
		text:        b.textContent,
	})
	if err != nil {
		return err
	}

	for _, k := range []string{"Content-Type", "Content-Transfer-Encoding"} {
		header.Set(k, ph.Get(k))
	}
	return writeEntity(w, header.Header.Header, data)
}

func (b *MessageBuilder) writeMultipart(w io.Writer, header *mail.Header, mp *Multipart) error {
	mediaType := "multipart/" + mp.Subtype()
	params := map[string]string{}

	if b.contentType != "" {
		mt, p, ok := parseContentType(b.contentType)
		switch {
		case ok && strings.HasPrefix(mt, "multipart/"):
			mediaType = mt
			for k, v := range p {
				if k != "boundary" {
					params[k] = v
				}
			}
		case b.opts.StrictContent:
			return fmt.Errorf("%w: %q does not fit a multipart body", ErrInvalidContentType, b.contentType)
		default:
			b.log.Warn().
				Str("content_type", b.contentType).
				Msg("Ignoring content type override for multipart body")
		}
	}
	mw := textproto.NewMultipartWriter(w)
	params["boundary"] = mw.Boundary()
	header.SetContentType(mediaType, params)
	if err := textproto.WriteHeader(w, header.Header.Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, part := range mp.parts {
		ph, data, err := b.partHeader(part)
		if err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}
		pw, err := mw.CreatePart(ph.Header)
		if err != nil {
			return fmt.Errorf("failed to create part %d: %w", i, err)
		}
		if err := encodeBody(pw, ph.Get("Content-Transfer-Encoding"), data); err != nil {
			return fmt.Errorf("failed to write part %d: %w", i, err)
		}
	}

	return mw.Close()
}

// partHeader resolves the content type, charset and transfer encoding of a
// single entity and returns the bytes to write for it.
func (b *MessageBuilder) partHeader(p Part) (gomessage.Header, []byte, error) {
	var h mail.AttachmentHeader
	data := p.Content

	mediaType, params, ok := parseContentType(p.ContentType)
	switch {
	case ok:
	case p.ContentType == "" && p.text:
		mediaType, params = typeTextPlain, map[string]string{}
	case p.ContentType == "":
		mediaType, params = typeOctetStream, map[string]string{}
	case b.opts.StrictContent:
		return gomessage.Header{}, nil, fmt.Errorf("%w: %q", ErrInvalidContentType, p.ContentType)
	default:
		b.log.Warn().
			Str("content_type", p.ContentType).
			Msg("Unusable content type, sending as application/octet-stream")
		mediaType, params = typeOctetStream, map[string]string{}
	}

	if strings.HasPrefix(mediaType, "text/") {
		charset := params["charset"]
		if charset == "" {
			charset = b.effectiveCharset()
		}
		if p.text {
			encoded, name, err := encodeText(data, charset)
			switch {
			case err == nil:
				data, charset = encoded, name
			case b.opts.StrictContent:
				return gomessage.Header{}, nil, err
			default:
				b.log.Warn().Err(err).Str("charset", charset).Msg("Falling back to utf-8")
				charset = "utf-8"
			}
		}
		params["charset"] = charset
	}

	h.SetContentType(mediaType, params)
	h.Set("Content-Transfer-Encoding", transferEncoding(mediaType))
	if p.Filename != "" {
		h.SetFilename(p.Filename)
	}
	return h.Header, data, nil
}

// writeEntity writes header and data, encoded per the header's
// Content-Transfer-Encoding. The body bytes are already in their declared
// charset, so go-message's charset-aware writer is bypassed.
func writeEntity(w io.Writer, header textproto.Header, data []byte) error {
	if err := textproto.WriteHeader(w, header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := encodeBody(w, header.Get("Content-Transfer-Encoding"), data); err != nil {
		return fmt.Errorf("failed to write body: %w", err)
	}
	return nil
}

func encodeBody(w io.Writer, cte string, data []byte) error {
	switch strings.ToLower(cte) {
	case "quoted-printable":
		qw := quotedprintable.NewWriter(w)
		if _, err := qw.Write(data); err != nil {
			return err
		}
		return qw.Close()
	case "base64":
		lw := &lineWrapper{w: w}
		bw := base64.NewEncoder(base64.StdEncoding, lw)
		if _, err := bw.Write(data); err != nil {
			return err
		}
		if err := bw.Close(); err != nil {
			return err
		}
		return lw.finish()
	default:
		_, err := w.Write(data)
		return err
	}
}

// lineWrapper breaks base64 output into 76 character lines.
type lineWrapper struct {
	w   io.Writer
	col int
}

const maxLineLen = 76

func (lw *lineWrapper) Write(p []byte) (int, error) {
	n := 0
	for len(p) > 0 {
		chunk := maxLineLen - lw.col
		if chunk > len(p) {
			chunk = len(p)
		}
		if _, err := lw.w.Write(p[:chunk]); err != nil {
			return n, err
		}
		n += chunk
		lw.col += chunk
		p = p[chunk:]
		if lw.col == maxLineLen {
			if _, err := io.WriteString(lw.w, "\r\n"); err != nil {
				return n, err
			}
			lw.col = 0
		}
	}
	return n, nil
}

func (lw *lineWrapper) finish() error {
	if lw.col == 0 {
		return nil
	}
	lw.col = 0
	_, err := io.WriteString(lw.w, "\r\n")
	return err
}
