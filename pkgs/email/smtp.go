package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Transport delivers built messages.
type Transport interface {
	Send(ctx context.Context, msg *Message) error
}

// NewTransport returns the transport registered under kind: "smtp" or "log".
// An empty kind means "smtp".
func NewTransport(kind string) (Transport, error) {
	switch strings.ToLower(kind) {
	case "", "smtp":
		return NewSMTPTransport(), nil
	case "log":
		return NewLogTransport(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransport, kind)
	}
}

// SMTPTransport delivers messages over SMTP using the connection settings
// captured in each message's session.
type SMTPTransport struct{}

// NewSMTPTransport creates a new SMTP transport
func NewSMTPTransport() *SMTPTransport {
	return &SMTPTransport{}
}

// Send performs POP-before-SMTP when enabled, connects, upgrades and
// authenticates as the session asks, then submits the message to every
// envelope recipient.
func (t *SMTPTransport) Send(ctx context.Context, msg *Message) error {
	s := msg.Session()
	log := zerolog.Ctx(ctx).With().
		Str("transport", "smtp").
		Str("addr", s.Addr()).
		Str("message_id", msg.MessageID()).
		Logger()

	if s.PopBeforeSMTP.Enabled {
		if err := popBeforeSMTP(ctx, &s); err != nil {
			return err
		}
		log.Debug().Str("pop3_host", s.PopBeforeSMTP.Host).Msg("POP-before-SMTP login done")
	}

	client, err := t.connect(ctx, &s)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := authenticate(ctx, client, &s); err != nil {
		return err
	}

	recipients := msg.Recipients()
	if err := client.SendMail(msg.EnvelopeFrom(), recipients, msg.Reader()); err != nil {
		return fmt.Errorf("SMTP delivery failed: %w", err)
	}

	if err := client.Quit(); err != nil {
		log.Debug().Err(err).Msg("SMTP QUIT failed")
	}

	log.Info().
		Str("envelope_from", msg.EnvelopeFrom()).
		Int("recipients", len(recipients)).
		Msg("Message sent")
	return nil
}

// connect dials the server and returns a greeted client. SSL-on-connect
// uses implicit TLS. With STARTTLS enabled the connection is upgraded; when
// the server does not offer STARTTLS and it is not required, the transport
// redials and continues in plain text.
func (t *SMTPTransport) connect(ctx context.Context, s *Session) (*smtp.Client, error) {
	conn, err := dial(ctx, s)
	if err != nil {
		return nil, err
	}

	if s.StartTLSEnabled && !s.SSLOnConnect {
		client, err := smtp.NewClientStartTLS(conn, s.TLSConfig())
		if err == nil {
			setTimeouts(client, s)
			return client, nil
		}
		conn.Close()
		switch {
		case !startTLSNotOffered(err):
			return nil, fmt.Errorf("STARTTLS failed: %w", err)
		case s.StartTLSRequired:
			return nil, ErrStartTLSUnavailable
		}
		zerolog.Ctx(ctx).Debug().Str("addr", s.Addr()).Msg("Server does not offer STARTTLS, continuing in plain text")
		if conn, err = dial(ctx, s); err != nil {
			return nil, err
		}
	}

	client := smtp.NewClient(conn)
	setTimeouts(client, s)
	if err := client.Hello("localhost"); err != nil {
		client.Close()
		return nil, fmt.Errorf("SMTP greeting failed: %w", err)
	}
	return client, nil
}

func dial(ctx context.Context, s *Session) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: s.ConnectionTimeout}

	var (
		conn net.Conn
		err  error
	)
	if s.SSLOnConnect {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: s.TLSConfig()}
		conn, err = tlsDialer.DialContext(ctx, "tcp", s.Addr())
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", s.Addr())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server %s: %w", s.Addr(), err)
	}

	// Bounds the greeting and STARTTLS exchange, which run before the
	// client's command timeouts are in place.
	deadline, ok := ctx.Deadline()
	if s.Timeout > 0 {
		if d := time.Now().Add(s.Timeout); !ok || d.Before(deadline) {
			deadline, ok = d, true
		}
	}
	if ok {
		_ = conn.SetDeadline(deadline)
	}
	return conn, nil
}

func setTimeouts(client *smtp.Client, s *Session) {
	if s.Timeout > 0 {
		client.CommandTimeout = s.Timeout
		client.SubmissionTimeout = s.Timeout
	}
}

// startTLSNotOffered reports whether go-smtp refused to upgrade because the
// server's EHLO reply lacks STARTTLS. go-smtp returns an unexported error
// for this case.
func startTLSNotOffered(err error) bool {
	return strings.Contains(err.Error(), "support STARTTLS")
}

// authenticate logs in when both the session has an authenticator and the
// server advertises AUTH.
func authenticate(ctx context.Context, client *smtp.Client, s *Session) error {
	if s.Authenticator == nil {
		return nil
	}
	ok, mechanisms := client.Extension("AUTH")
	if !ok {
		zerolog.Ctx(ctx).Debug().Str("addr", s.Addr()).Msg("Server does not offer AUTH, sending unauthenticated")
		return nil
	}

	sc, err := s.SASLClient(ctx, mechanisms)
	if err != nil {
		return err
	}
	if err := client.Auth(sc); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	return nil
}

// GenerateMessageID produces a RFC 5322 compliant Message-ID using the
// domain extracted from the sender's email address.
// Format: <uuid@domain>
func GenerateMessageID(fromEmail string) string {
	domain := "localhost"
	if idx := strings.LastIndex(fromEmail, "@"); idx >= 0 && idx < len(fromEmail)-1 {
		domain = fromEmail[idx+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
