package email

import (
	"bytes"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
)

// Message is an assembled, transport-ready email. It is produced by
// MessageBuilder.Build and never changes afterwards.
type Message struct {
	// Envelope
	from    Address
	to      []Address
	cc      []Address
	bcc     []Address
	replyTo []Address
	subject string
	date    time.Time

	// Metadata
	messageID string
	header    mail.Header
	session   Session

	// Content, rendered as RFC 5322 bytes (without Bcc).
	raw []byte
}

func (m *Message) From() Address         { return m.from }
func (m *Message) To() []Address         { return cloneAddresses(m.to) }
func (m *Message) Cc() []Address         { return cloneAddresses(m.cc) }
func (m *Message) Bcc() []Address        { return cloneAddresses(m.bcc) }
func (m *Message) ReplyTo() []Address    { return cloneAddresses(m.replyTo) }
func (m *Message) Subject() string       { return m.subject }
func (m *Message) Date() time.Time       { return m.date }
func (m *Message) MessageID() string     { return m.messageID }
func (m *Message) Header(k string) string { return m.header.Get(k) }

// Session returns a copy of the session the message was built with.
func (m *Message) Session() Session { return m.session }

// EnvelopeFrom returns the SMTP reverse-path: the bounce address when set,
// the From address otherwise.
func (m *Message) EnvelopeFrom() string {
	if m.session.BounceAddress != "" {
		return m.session.BounceAddress
	}
	return m.from.Email
}

// Recipients returns the envelope recipients: To, then Cc, then Bcc.
func (m *Message) Recipients() []string {
	out := make([]string, 0, len(m.to)+len(m.cc)+len(m.bcc))
	out = append(out, emails(m.to)...)
	out = append(out, emails(m.cc)...)
	out = append(out, emails(m.bcc)...)
	return out
}

// Bytes returns a copy of the rendered message.
func (m *Message) Bytes() []byte { return append([]byte(nil), m.raw...) }

// Len returns the size of the rendered message in bytes.
func (m *Message) Len() int { return len(m.raw) }

// Reader returns a reader over the rendered message.
func (m *Message) Reader() io.Reader { return bytes.NewReader(m.raw) }

// WriteTo writes the rendered message to w.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	return bytes.NewReader(m.raw).WriteTo(w)
}
