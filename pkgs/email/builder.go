package email

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// MessageBuilder accumulates the parts of one outgoing message and
// assembles it with Build. A builder is not safe for concurrent use.
type MessageBuilder struct {
	opts Options
	log  zerolog.Logger

	from    *Address
	to      []Address
	cc      []Address
	bcc     []Address
	replyTo []Address

	headerNames []string
	headers     map[string]string

	subject     string
	charset     string
	content     []byte
	hasContent  bool
	textContent bool
	contentType string
	body        *Multipart
	sentDate    time.Time

	hostName                string
	smtpPort                int
	sslSMTPPort             int
	sslOnConnect            bool
	startTLSEnabled         bool
	startTLSRequired        bool
	sslCheckServerIdentity  bool
	bounceAddress           *Address
	authenticator           Authenticator
	popBeforeSMTP           PopBeforeSMTP
	socketConnectionTimeout time.Duration
	socketTimeout           time.Duration

	session *Session
	built   *Message
}

// NewMessageBuilder returns an empty builder.
func NewMessageBuilder(opts ...Option) *MessageBuilder {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MessageBuilder{
		opts:                    o,
		log:                     o.Logger,
		headers:                 make(map[string]string),
		smtpPort:                o.SMTPPort,
		sslSMTPPort:             o.SSLSMTPPort,
		socketConnectionTimeout: o.SocketConnectionTimeout,
		socketTimeout:           o.SocketTimeout,
	}
}

// ---------- addresses ----------

// SetFrom sets the sender. addr may carry a display name ("Name <a@b>").
func (b *MessageBuilder) SetFrom(addr string) error {
	return b.SetFromNamed(addr, "")
}

// SetFromNamed sets the sender with an explicit display name.
func (b *MessageBuilder) SetFromNamed(addr, name string) error {
	a, err := NewAddress(addr, name)
	if err != nil {
		return err
	}
	b.from = &a
	return nil
}

// From returns the sender, or nil when unset.
func (b *MessageBuilder) From() *Address {
	if b.from == nil {
		return nil
	}
	a := *b.from
	return &a
}

// AddTo appends To recipients. Nothing is added unless every address parses.
func (b *MessageBuilder) AddTo(addrs ...string) error {
	return appendParsed(&b.to, addrs)
}

// AddToNamed appends one To recipient with a display name.
func (b *MessageBuilder) AddToNamed(addr, name string) error {
	return appendNamed(&b.to, addr, name)
}

// AddCc appends Cc recipients. Nothing is added unless every address parses.
func (b *MessageBuilder) AddCc(addrs ...string) error {
	return appendParsed(&b.cc, addrs)
}

// AddCcNamed appends one Cc recipient with a display name.
func (b *MessageBuilder) AddCcNamed(addr, name string) error {
	return appendNamed(&b.cc, addr, name)
}

// AddBcc appends Bcc recipients. Nothing is added unless every address parses.
func (b *MessageBuilder) AddBcc(addrs ...string) error {
	return appendParsed(&b.bcc, addrs)
}

// AddBccNamed appends one Bcc recipient with a display name.
func (b *MessageBuilder) AddBccNamed(addr, name string) error {
	return appendNamed(&b.bcc, addr, name)
}

// AddReplyTo appends a Reply-To address. name may be empty.
func (b *MessageBuilder) AddReplyTo(addr, name string) error {
	return appendNamed(&b.replyTo, addr, name)
}

func (b *MessageBuilder) ToAddresses() []Address      { return cloneAddresses(b.to) }
func (b *MessageBuilder) CcAddresses() []Address      { return cloneAddresses(b.cc) }
func (b *MessageBuilder) BccAddresses() []Address     { return cloneAddresses(b.bcc) }
func (b *MessageBuilder) ReplyToAddresses() []Address { return cloneAddresses(b.replyTo) }

func appendParsed(dst *[]Address, in []string) error {
	parsed, err := parseAddresses(in)
	if err != nil {
		return err
	}
	*dst = append(*dst, parsed...)
	return nil
}

func appendNamed(dst *[]Address, addr, name string) error {
	a, err := NewAddress(addr, name)
	if err != nil {
		return err
	}
	*dst = append(*dst, a)
	return nil
}

func cloneAddresses(in []Address) []Address {
	return append([]Address(nil), in...)
}

// ---------- headers ----------

// AddHeader adds or replaces a custom header. Both name and value must be
// non-empty and name must be a valid field name.
func (b *MessageBuilder) AddHeader(name, value string) error {
	if err := validateHeader(name, value); err != nil {
		return err
	}
	b.putHeader(name, value)
	return nil
}

// SetHeaders replaces all custom headers. The current headers are kept if
// any pair is invalid.
func (b *MessageBuilder) SetHeaders(headers map[string]string) error {
	names := make([]string, 0, len(headers))
	for name, value := range headers {
		if err := validateHeader(name, value); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	b.headerNames = nil
	b.headers = make(map[string]string, len(headers))
	for _, name := range names {
		b.putHeader(name, headers[name])
	}
	return nil
}

// Headers returns a copy of the custom headers.
func (b *MessageBuilder) Headers() map[string]string {
	out := make(map[string]string, len(b.headers))
	for k, v := range b.headers {
		out[k] = v
	}
	return out
}

func (b *MessageBuilder) putHeader(name, value string) {
	if _, ok := b.headers[name]; !ok {
		b.headerNames = append(b.headerNames, name)
	}
	b.headers[name] = value
}

func validateHeader(name, value string) error {
	if name == "" {
		return &HeaderError{Name: name, Value: value, Reason: "name can not be empty"}
	}
	if value == "" {
		return &HeaderError{Name: name, Value: value, Reason: "value can not be empty"}
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= ' ' || c >= 0x7f || c == ':' {
			return &HeaderError{Name: name, Value: value, Reason: fmt.Sprintf("illegal character %q in name", c)}
		}
	}
	if _, ok := reservedHeaders[asciiLower(name)]; ok {
		return &HeaderError{Name: name, Value: value, Reason: "set by the builder"}
	}
	return nil
}

// reservedHeaders are rendered from builder state. Message-Id is not listed
// so callers can supply their own.
var reservedHeaders = map[string]struct{}{
	"from":                      {},
	"to":                        {},
	"cc":                        {},
	"bcc":                       {},
	"reply-to":                  {},
	"subject":                   {},
	"date":                      {},
	"mime-version":              {},
	"content-type":              {},
	"content-transfer-encoding": {},
}

// ---------- subject, charset, content ----------

func (b *MessageBuilder) SetSubject(subject string) { b.subject = subject }
func (b *MessageBuilder) Subject() string           { return b.subject }

// SetCharset sets the charset used for text content.
func (b *MessageBuilder) SetCharset(charset string) { b.charset = charset }

// Charset returns the charset set on the builder, "" when unset.
func (b *MessageBuilder) Charset() string { return b.charset }

// ContentType returns the current content type, "" when unset.
func (b *MessageBuilder) ContentType() string { return b.contentType }

// SetMsg sets a plain text body.
func (b *MessageBuilder) SetMsg(text string) {
	b.content = []byte(text)
	b.hasContent = true
	b.textContent = true
	b.UpdateContentType("text/plain")
}

// SetBody sets a multipart body. Content set with SetContent takes
// precedence over it at build time.
func (b *MessageBuilder) SetBody(mp *Multipart) { b.body = mp }

// Body returns the multipart body, or nil.
func (b *MessageBuilder) Body() *Multipart { return b.body }

// UpdateContentType replaces the content type. A "; charset=" parameter is
// copied into the builder charset; a text/* type without one gets the
// builder charset appended.
func (b *MessageBuilder) UpdateContentType(contentType string) {
	if contentType == "" {
		b.contentType = ""
		return
	}

	b.contentType = contentType

	const marker = "; charset="
	lower := asciiLower(contentType)
	if pos := strings.Index(lower, marker); pos >= 0 {
		pos += len(marker)
		if end := strings.Index(lower[pos:], " "); end >= 0 {
			b.charset = contentType[pos : pos+end]
		} else {
			b.charset = contentType[pos:]
		}
		return
	}
	if strings.HasPrefix(contentType, "text/") && b.charset != "" {
		b.contentType = contentType + marker + b.charset
	}
}

// asciiLower lower-cases ASCII letters only, so byte offsets in the result
// match the input.
func asciiLower(s string) string {
	buf := []byte(s)
	for i, c := range buf {
		if 'A' <= c && c <= 'Z' {
			buf[i] = c + 'a' - 'A'
		}
	}
	return string(buf)
}

// ---------- dates ----------

func (b *MessageBuilder) SetSentDate(t time.Time) { b.sentDate = t }

// SentDate returns the date set with SetSentDate, or the current time.
func (b *MessageBuilder) SentDate() time.Time {
	if b.sentDate.IsZero() {
		return b.opts.Now()
	}
	return b.sentDate
}

// ---------- connection settings ----------

func (b *MessageBuilder) SetHostName(host string) { b.hostName = host }

// HostName returns the injected session's host when a session was injected,
// otherwise the configured host name.
func (b *MessageBuilder) HostName() string {
	if b.session != nil {
		return b.session.Host
	}
	return b.hostName
}

func (b *MessageBuilder) SetSMTPPort(port int)    { b.smtpPort = port }
func (b *MessageBuilder) SMTPPort() int           { return b.smtpPort }
func (b *MessageBuilder) SetSSLSMTPPort(port int) { b.sslSMTPPort = port }
func (b *MessageBuilder) SSLSMTPPort() int        { return b.sslSMTPPort }

func (b *MessageBuilder) SetSSLOnConnect(v bool) { b.sslOnConnect = v }
func (b *MessageBuilder) SSLOnConnect() bool     { return b.sslOnConnect }

func (b *MessageBuilder) SetStartTLSEnabled(v bool) { b.startTLSEnabled = v }
func (b *MessageBuilder) StartTLSEnabled() bool     { return b.startTLSEnabled || b.startTLSRequired }

// SetStartTLSRequired makes the transport fail when the server does not
// offer STARTTLS. It implies StartTLSEnabled.
func (b *MessageBuilder) SetStartTLSRequired(v bool) { b.startTLSRequired = v }
func (b *MessageBuilder) StartTLSRequired() bool     { return b.startTLSRequired }

func (b *MessageBuilder) SetSSLCheckServerIdentity(v bool) { b.sslCheckServerIdentity = v }
func (b *MessageBuilder) SSLCheckServerIdentity() bool     { return b.sslCheckServerIdentity }

// SetBounceAddress sets the envelope sender used for delivery failure
// notices. An empty string clears it.
func (b *MessageBuilder) SetBounceAddress(addr string) error {
	if addr == "" {
		b.bounceAddress = nil
		return nil
	}
	a, err := ParseAddress(addr)
	if err != nil {
		return err
	}
	b.bounceAddress = &a
	return nil
}

// BounceAddress returns the bounce address, "" when unset.
func (b *MessageBuilder) BounceAddress() string {
	if b.bounceAddress == nil {
		return ""
	}
	return b.bounceAddress.Email
}

func (b *MessageBuilder) SetAuthenticator(a Authenticator) { b.authenticator = a }

// SetAuthentication is a shorthand for SetAuthenticator(PasswordAuthenticator(...)).
func (b *MessageBuilder) SetAuthentication(username, password string) {
	b.authenticator = PasswordAuthenticator(username, password)
}

func (b *MessageBuilder) SetSocketConnectionTimeout(d time.Duration) { b.socketConnectionTimeout = d }
func (b *MessageBuilder) SocketConnectionTimeout() time.Duration     { return b.socketConnectionTimeout }
func (b *MessageBuilder) SetSocketTimeout(d time.Duration)           { b.socketTimeout = d }
func (b *MessageBuilder) SocketTimeout() time.Duration               { return b.socketTimeout }

// SetPopBeforeSMTP records a POP3 login for the transport to perform
// before connecting to the SMTP server.
func (b *MessageBuilder) SetPopBeforeSMTP(enabled bool, host, username, password string) {
	b.popBeforeSMTP = PopBeforeSMTP{
		Enabled:  enabled,
		Host:     host,
		Username: username,
		Password: password,
		SSL:      b.popBeforeSMTP.SSL,
	}
}

// SetPopBeforeSMTPSSL makes the POP3 login use implicit TLS.
func (b *MessageBuilder) SetPopBeforeSMTPSSL(v bool) { b.popBeforeSMTP.SSL = v }

func (b *MessageBuilder) PopBeforeSMTP() PopBeforeSMTP { return b.popBeforeSMTP }

// ---------- sending ----------

// Message returns the built message, or nil before a successful Build.
func (b *MessageBuilder) Message() *Message { return b.built }

// Send builds the message if needed and hands it to t. It returns the
// Message-ID of the sent message.
func (b *MessageBuilder) Send(ctx context.Context, t Transport) (string, error) {
	msg, err := b.Build()
	if err != nil {
		return "", err
	}
	if err := t.Send(ctx, msg); err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	return msg.MessageID(), nil
}
