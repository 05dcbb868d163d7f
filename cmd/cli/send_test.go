package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emx-mail/compose/pkgs/config"
	"github.com/emx-mail/compose/pkgs/email"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAccount() *config.AccountConfig {
	no := false
	return &config.AccountConfig{
		Name:          "work",
		Email:         "user@example.com",
		FromName:      "User",
		ReplyTo:       "replies@example.com",
		BounceAddress: "bounces@example.com",
		Charset:       "iso-8859-1",
		SMTP: config.SMTPSettings{
			ProtocolSettings: config.ProtocolSettings{
				Host:     "smtp.example.com",
				Port:     2525,
				Username: "user",
				Password: "secret",
				StartTLS: true,
			},
			CheckServerIdentity: &no,
			ConnectionTimeoutMS: 1500,
			TimeoutMS:           3000,
		},
		POP3:          config.ProtocolSettings{Host: "pop.example.com", Port: 110, Username: "popuser", Password: "poppass"},
		PopBeforeSMTP: true,
	}
}

func newTestApp() *app {
	return &app{logger: zerolog.Nop()}
}

func TestNewBuilder_AppliesAccount(t *testing.T) {
	b, err := newTestApp().newBuilder(testAccount())
	require.NoError(t, err)

	require.NotNil(t, b.From())
	assert.Equal(t, "user@example.com", b.From().Email)
	assert.Equal(t, "User", b.From().Name)
	assert.Equal(t, "bounces@example.com", b.BounceAddress())
	assert.Equal(t, "smtp.example.com", b.HostName())
	assert.Equal(t, 2525, b.SMTPPort())
	assert.True(t, b.StartTLSEnabled())
	assert.False(t, b.SSLCheckServerIdentity())
	assert.Equal(t, 1500*time.Millisecond, b.SocketConnectionTimeout())
	assert.Equal(t, 3*time.Second, b.SocketTimeout())
	assert.Equal(t, email.PopBeforeSMTP{
		Enabled:  true,
		Host:     "pop.example.com:110",
		Username: "popuser",
		Password: "poppass",
	}, b.PopBeforeSMTP())

	session, err := b.MailSession()
	require.NoError(t, err)
	assert.Equal(t, 2525, session.Port)
	assert.NotNil(t, session.Authenticator)
}

func TestNewBuilder_SSLPort(t *testing.T) {
	acc := testAccount()
	acc.SMTP.SSL = true
	acc.SMTP.Port = 4650

	b, err := newTestApp().newBuilder(acc)
	require.NoError(t, err)
	assert.True(t, b.SSLOnConnect())
	assert.Equal(t, 4650, b.SSLSMTPPort())
	assert.Equal(t, email.DefaultSMTPPort, b.SMTPPort())
}

func TestNewBuilder_POP3SSL(t *testing.T) {
	acc := testAccount()
	acc.POP3.SSL = true

	b, err := newTestApp().newBuilder(acc)
	require.NoError(t, err)
	assert.True(t, b.PopBeforeSMTP().SSL)

	session, err := b.MailSession()
	require.NoError(t, err)
	assert.True(t, session.PopBeforeSMTP.SSL)
}

func TestNewBuilder_InvalidEmail(t *testing.T) {
	acc := testAccount()
	acc.Email = "not an address"
	_, err := newTestApp().newBuilder(acc)
	assert.ErrorIs(t, err, email.ErrInvalidAddress)
}

func TestCompose_TextBody(t *testing.T) {
	b, err := newTestApp().newBuilder(testAccount())
	require.NoError(t, err)

	f := sendFlags{
		to:      "a@example.com, b@example.com",
		bcc:     "hidden@example.com",
		subject: "Hello",
		text:    "Hi there",
		headers: []string{"X-Mailer: emx-compose", "X-Priority:1"},
	}
	require.NoError(t, compose(b, f, "replies@example.com"))

	msg, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, "Hello", msg.Subject())
	assert.Equal(t, "emx-compose", msg.Header("X-Mailer"))
	assert.Equal(t, "1", msg.Header("X-Priority"))
	assert.Contains(t, msg.Header("Reply-To"), "replies@example.com")
	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com", "hidden@example.com"}, msg.Recipients())
	assert.Equal(t, "bounces@example.com", msg.EnvelopeFrom())
	assert.Contains(t, msg.Header("Content-Type"), "windows-1252")
	assert.NotContains(t, string(msg.Bytes()), "hidden@example.com")
}

func TestCompose_ReplyToOverride(t *testing.T) {
	b, err := newTestApp().newBuilder(testAccount())
	require.NoError(t, err)

	f := sendFlags{to: "a@example.com", replyTo: "other@example.com"}
	require.NoError(t, compose(b, f, "replies@example.com"))

	addrs := b.ReplyToAddresses()
	require.Len(t, addrs, 1)
	assert.Equal(t, "other@example.com", addrs[0].Email)
}

func TestCompose_Attachments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("attached"), 0600))

	b, err := newTestApp().newBuilder(testAccount())
	require.NoError(t, err)

	f := sendFlags{
		to:          "a@example.com",
		text:        "<p>see attachment</p>",
		contentType: "text/html",
		attachments: []string{path},
	}
	require.NoError(t, compose(b, f, ""))

	mp := b.Body()
	require.NotNil(t, mp)
	parts := mp.Parts()
	require.Len(t, parts, 2)
	assert.True(t, strings.HasPrefix(parts[0].ContentType, "text/html"))
	assert.Equal(t, "notes.txt", parts[1].Filename)
	assert.Equal(t, []byte("attached"), parts[1].Content)

	msg, err := b.Build()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(msg.Header("Content-Type"), "multipart/mixed"))
}

func TestCompose_Errors(t *testing.T) {
	tests := []struct {
		name string
		f    sendFlags
		want string
	}{
		{"bad to", sendFlags{to: "nope"}, "--to"},
		{"bad cc", sendFlags{cc: "nope"}, "--cc"},
		{"bad bcc", sendFlags{bcc: "nope"}, "--bcc"},
		{"bad header", sendFlags{to: "a@example.com", headers: []string{"no colon"}}, "--header"},
		{"missing text file", sendFlags{to: "a@example.com", textFile: "/nonexistent/body.txt"}, "--text-file"},
		{"missing attachment", sendFlags{to: "a@example.com", attachments: []string{"/nonexistent/a.pdf"}}, "--attachment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := newTestApp().newBuilder(testAccount())
			require.NoError(t, err)
			err = compose(b, tt.f, "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPrintDryRun(t *testing.T) {
	b, err := newTestApp().newBuilder(testAccount())
	require.NoError(t, err)
	require.NoError(t, compose(b, sendFlags{to: "a@example.com", subject: "Preview", text: "body"}, ""))
	msg, err := b.Build()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printDryRun(&buf, msg))
	out := buf.String()
	assert.Contains(t, out, "Envelope-From: bounces@example.com")
	assert.Contains(t, out, "Recipients:    a@example.com")
	assert.Contains(t, out, "Subject: Preview")
	assert.Contains(t, out, "email was NOT sent")
}

func TestAppendMbox(t *testing.T) {
	b, err := newTestApp().newBuilder(testAccount())
	require.NoError(t, err)
	require.NoError(t, compose(b, sendFlags{to: "a@example.com", text: "one\n"}, ""))
	msg, err := b.Build()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "sent.mbox")
	require.NoError(t, appendMbox(path, msg))
	require.NoError(t, appendMbox(path, msg))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	msgs, err := email.ReadMbox(f)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestParseHeaderFlag(t *testing.T) {
	name, value, err := parseHeaderFlag("X-Tag:  a: b ")
	require.NoError(t, err)
	assert.Equal(t, "X-Tag", name)
	assert.Equal(t, "a: b", value)

	_, _, err = parseHeaderFlag(": value")
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, splitList(" a@example.com,, b@example.com "))
	assert.Empty(t, splitList(""))
}

func TestNewIMAPClientRequiresHost(t *testing.T) {
	_, err := newIMAPClient(&config.AccountConfig{Email: "user@example.com"})
	assert.Error(t, err)
}

func TestHandleInit_WritesConfig(t *testing.T) {
	if config.HasEmxConfig() {
		t.Skip("emx-config present on PATH")
	}
	path := filepath.Join(t.TempDir(), "compose.yaml")
	t.Setenv(config.EnvConfigPath, path)

	var out bytes.Buffer
	require.NoError(t, handleInit(&out))
	assert.Contains(t, out.String(), path)

	cfg, err := config.LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "work", cfg.DefaultAccount)

	assert.Error(t, handleInit(&out))
}
