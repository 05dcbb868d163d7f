package main

import (
	"fmt"

	"github.com/emx-mail/compose/pkgs/config"
	"github.com/emx-mail/compose/pkgs/email"
)

// newBuilder prepares a MessageBuilder with the account's sender identity
// and SMTP session settings.
func (a *app) newBuilder(acc *config.AccountConfig) (*email.MessageBuilder, error) {
	b := email.NewMessageBuilder(
		email.WithLogger(a.logger),
		email.WithDefaultCharset(acc.Charset),
		email.WithTimeouts(acc.SMTP.ConnectionTimeout(), acc.SMTP.Timeout()),
	)

	if err := b.SetFromNamed(acc.Email, acc.FromName); err != nil {
		return nil, fmt.Errorf("account %s: %w", acc.Name, err)
	}
	if acc.BounceAddress != "" {
		if err := b.SetBounceAddress(acc.BounceAddress); err != nil {
			return nil, fmt.Errorf("account %s: %w", acc.Name, err)
		}
	}

	b.SetHostName(acc.SMTP.Host)
	if acc.SMTP.SSL {
		b.SetSSLOnConnect(true)
		if acc.SMTP.Port != 0 {
			b.SetSSLSMTPPort(acc.SMTP.Port)
		}
	} else if acc.SMTP.Port != 0 {
		b.SetSMTPPort(acc.SMTP.Port)
	}
	b.SetStartTLSEnabled(acc.SMTP.StartTLS)
	b.SetStartTLSRequired(acc.SMTP.StartTLSRequired)
	b.SetSSLCheckServerIdentity(acc.SMTP.VerifyServerIdentity())

	if acc.SMTP.Username != "" {
		b.SetAuthentication(acc.SMTP.Username, acc.SMTP.Password)
	}
	if acc.PopBeforeSMTP {
		b.SetPopBeforeSMTP(true, acc.POP3.Addr(), acc.POP3.Username, acc.POP3.Password)
		b.SetPopBeforeSMTPSSL(acc.POP3.SSL)
	}
	return b, nil
}

func newIMAPClient(acc *config.AccountConfig) (*email.IMAPClient, error) {
	if acc.IMAP.Host == "" {
		return nil, fmt.Errorf("IMAP not configured for account %s", acc.Email)
	}
	port := acc.IMAP.Port
	if port == 0 {
		port = 143
		if acc.IMAP.SSL {
			port = 993
		}
	}
	return email.NewIMAPClient(email.IMAPConfig{
		Host:     acc.IMAP.Host,
		Port:     port,
		Username: acc.IMAP.Username,
		Password: acc.IMAP.Password,
		SSL:      acc.IMAP.SSL,
		StartTLS: acc.IMAP.StartTLS,
	}), nil
}
