package email

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
)

// Authenticator supplies SMTP credentials on demand. Transports call it
// only when the server asks for authentication.
type Authenticator interface {
	Credentials(ctx context.Context) (username, password string, err error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context) (string, string, error)

// Credentials calls f(ctx).
func (f AuthenticatorFunc) Credentials(ctx context.Context) (string, string, error) {
	return f(ctx)
}

// PasswordAuthenticator returns an Authenticator with fixed credentials.
func PasswordAuthenticator(username, password string) Authenticator {
	return AuthenticatorFunc(func(context.Context) (string, string, error) {
		return username, password, nil
	})
}

// PopBeforeSMTP describes a POP3 login performed before the SMTP dial.
type PopBeforeSMTP struct {
	Enabled  bool
	Host     string
	Username string
	Password string
	// SSL dials POP3 over implicit TLS (default port 995).
	SSL bool
}

// Session is a read-only snapshot of the connection settings a transport
// needs. Callers must not modify a Session after handing it to a builder.
type Session struct {
	Host                string
	Port                int
	SSLOnConnect        bool
	StartTLSEnabled     bool
	StartTLSRequired    bool
	CheckServerIdentity bool

	// BounceAddress is the envelope sender; empty means the From address.
	BounceAddress string

	ConnectionTimeout time.Duration
	Timeout           time.Duration

	Authenticator Authenticator
	PopBeforeSMTP PopBeforeSMTP

	// RootCAs overrides the system pool for certificate verification.
	RootCAs *x509.CertPool
}

// Addr returns host:port.
func (s *Session) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// TLSConfig returns the client TLS configuration. With the identity check
// disabled the certificate chain is still verified, only the host name match
// is skipped.
func (s *Session) TLSConfig() *tls.Config {
	cfg := &tls.Config{
		ServerName: s.Host,
		RootCAs:    s.RootCAs,
	}
	if s.CheckServerIdentity {
		return cfg
	}

	roots := s.RootCAs
	cfg.InsecureSkipVerify = true
	cfg.VerifyConnection = func(cs tls.ConnectionState) error {
		if len(cs.PeerCertificates) == 0 {
			return errors.New("server presented no certificate")
		}
		opts := x509.VerifyOptions{
			Roots:         roots,
			Intermediates: x509.NewCertPool(),
		}
		for _, cert := range cs.PeerCertificates[1:] {
			opts.Intermediates.AddCert(cert)
		}
		_, err := cs.PeerCertificates[0].Verify(opts)
		return err
	}
	return cfg
}

// SASLClient resolves credentials and picks a mechanism from the server's
// AUTH extension parameters. It returns nil when no authenticator is set.
func (s *Session) SASLClient(ctx context.Context, mechanisms string) (sasl.Client, error) {
	if s.Authenticator == nil {
		return nil, nil
	}

	username, password, err := s.Authenticator.Credentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain SMTP credentials: %w", err)
	}

	offered := strings.Fields(strings.ToUpper(mechanisms))
	if !containsString(offered, sasl.Plain) && containsString(offered, sasl.Login) {
		return sasl.NewLoginClient(username, password), nil
	}
	return sasl.NewPlainClient("", username, password), nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// MailSession returns a copy of the injected session, or derives one from
// the builder's connection settings on first use and caches it. Connection
// setters called after that have no effect on the cached session.
func (b *MessageBuilder) MailSession() (*Session, error) {
	if b.session == nil {
		if err := b.deriveSession(); err != nil {
			return nil, err
		}
	}
	cp := *b.session
	return &cp, nil
}

func (b *MessageBuilder) deriveSession() error {
	if b.hostName == "" {
		return ErrMissingHost
	}

	port := b.smtpPort
	if b.sslOnConnect {
		port = b.sslSMTPPort
	}

	b.session = &Session{
		Host:                b.hostName,
		Port:                port,
		SSLOnConnect:        b.sslOnConnect,
		StartTLSEnabled:     b.startTLSEnabled || b.startTLSRequired,
		StartTLSRequired:    b.startTLSRequired,
		CheckServerIdentity: b.sslCheckServerIdentity,
		ConnectionTimeout:   b.socketConnectionTimeout,
		Timeout:             b.socketTimeout,
		Authenticator:       b.authenticator,
		PopBeforeSMTP:       b.popBeforeSMTP,
	}
	if b.bounceAddress != nil {
		b.session.BounceAddress = b.bounceAddress.Email
	}

	b.log.Debug().
		Str("host", b.session.Host).
		Int("port", b.session.Port).
		Bool("ssl", b.session.SSLOnConnect).
		Bool("starttls", b.session.StartTLSEnabled).
		Msg("Derived mail session")

	return nil
}

// SetMailSession injects a session. A copy is stored, so later changes to s
// are not seen by the builder.
func (b *MessageBuilder) SetMailSession(s *Session) {
	if s == nil {
		b.session = nil
		return
	}
	cp := *s
	b.session = &cp
}
