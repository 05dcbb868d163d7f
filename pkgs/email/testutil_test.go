package email

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"math/big"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/require"
)

// newTestTLSConfig generates a self-signed TLS config for mock servers and
// a pool that trusts it.
func newTestTLSConfig(t *testing.T) (*tls.Config, *x509.CertPool) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	leaf, err := x509.ParseCertificate(certDER)
	require.NoError(t, err)
	pool := x509.NewCertPool()
	pool.AddCert(leaf)

	cert := tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, pool
}

// splitHostPort splits "host:port" into (host, int port).
func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

var testDate = time.Date(2026, time.February, 10, 8, 0, 0, 0, time.UTC)

// newTestBuilder returns a builder with a fixed clock and the minimum
// needed to build: host, sender and one recipient.
func newTestBuilder(t *testing.T, opts ...Option) *MessageBuilder {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return testDate })}, opts...)
	b := NewMessageBuilder(opts...)
	b.SetHostName("mail.example.com")
	require.NoError(t, b.SetFrom("sender@example.com"))
	require.NoError(t, b.AddTo("rcpt@example.com"))
	return b
}

// readMessage parses a built message back with go-message.
func readMessage(t *testing.T, msg *Message) *mail.Reader {
	t.Helper()
	mr, err := mail.CreateReader(bytes.NewReader(msg.Bytes()))
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })
	return mr
}
