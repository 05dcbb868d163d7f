package email

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultSMTPPort is used for plain and STARTTLS connections.
	DefaultSMTPPort = 25
	// DefaultSSLSMTPPort is used when SSL-on-connect is enabled.
	DefaultSSLSMTPPort = 465
	// DefaultPOP3Port is used for POP-before-SMTP.
	DefaultPOP3Port = 110
	// DefaultPOP3SPort is used for POP-before-SMTP over implicit TLS.
	DefaultPOP3SPort = 995
	// DefaultSocketTimeout applies to both the connect and the read timeout.
	DefaultSocketTimeout = 60 * time.Second
	// DefaultCharset is used for text bodies when no charset was set.
	DefaultCharset = "utf-8"
)

// Options holds the defaults a MessageBuilder starts from.
type Options struct {
	SMTPPort                int
	SSLSMTPPort             int
	SocketConnectionTimeout time.Duration
	SocketTimeout           time.Duration

	// Charset is applied to text bodies when the builder has none.
	Charset string

	// StrictContent turns content type and charset fallbacks into errors.
	StrictContent bool

	Logger zerolog.Logger
	Now    func() time.Time
}

// Option mutates Options.
type Option func(*Options)

// DefaultOptions returns the stock defaults.
func DefaultOptions() Options {
	return Options{
		SMTPPort:                DefaultSMTPPort,
		SSLSMTPPort:             DefaultSSLSMTPPort,
		SocketConnectionTimeout: DefaultSocketTimeout,
		SocketTimeout:           DefaultSocketTimeout,
		Charset:                 DefaultCharset,
		Logger:                  zerolog.Nop(),
		Now:                     time.Now,
	}
}

// WithLogger routes builder diagnostics to l.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithClock replaces time.Now for the Date header and SentDate.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Now = now
		}
	}
}

// WithStrictContent makes Build fail instead of falling back on an
// unusable content type or charset.
func WithStrictContent(strict bool) Option {
	return func(o *Options) { o.StrictContent = strict }
}

// WithDefaultCharset sets the charset used when the builder has none.
func WithDefaultCharset(charset string) Option {
	return func(o *Options) {
		if charset != "" {
			o.Charset = charset
		}
	}
}

// WithTimeouts overrides the socket connection and read timeouts. Zero
// values keep the current setting.
func WithTimeouts(connect, read time.Duration) Option {
	return func(o *Options) {
		if connect > 0 {
			o.SocketConnectionTimeout = connect
		}
		if read > 0 {
			o.SocketTimeout = read
		}
	}
}
