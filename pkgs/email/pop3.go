package email

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// POP3Client logs into a POP3 mailbox. It is used for POP-before-SMTP,
// where a successful POP3 login opens the SMTP relay for the client address.
type POP3Client struct {
	config POP3Config
}

// POP3Config holds POP3 configuration
type POP3Config struct {
	Host     string
	Port     int
	Username string
	Password string
	SSL      bool
	Timeout  time.Duration

	// TLSConfig overrides the client TLS settings when SSL is set.
	TLSConfig *tls.Config
}

// NewPOP3Client creates a new POP3 client
func NewPOP3Client(config POP3Config) *POP3Client {
	if config.Port == 0 {
		config.Port = DefaultPOP3Port
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	return &POP3Client{config: config}
}

// Authenticate connects, logs in with USER/PASS, confirms the login with
// NOOP and quits.
func (c *POP3Client) Authenticate(ctx context.Context) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	return conn.quit()
}

// connect dials and authenticates to the POP3 server.
func (c *POP3Client) connect(ctx context.Context) (*pop3Conn, error) {
	addr := net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))

	var netConn net.Conn
	var err error

	dialer := &net.Dialer{Timeout: c.config.Timeout}

	if c.config.SSL {
		tlsCfg := c.config.TLSConfig
		if tlsCfg == nil {
			tlsCfg = &tls.Config{ServerName: c.config.Host}
		}
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: tlsCfg}
		netConn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		netConn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("POP3 connection to %s failed: %w", addr, err)
	}
	_ = netConn.SetDeadline(time.Now().Add(c.config.Timeout))
	if deadline, ok := ctx.Deadline(); ok {
		_ = netConn.SetDeadline(deadline)
	}

	conn := &pop3Conn{
		conn: netConn,
		r:    bufio.NewReader(netConn),
		w:    bufio.NewWriter(netConn),
	}

	// Read the server greeting
	if _, err := conn.readOne(); err != nil {
		netConn.Close()
		return nil, fmt.Errorf("POP3 greeting failed: %w", err)
	}

	if err := conn.auth(c.config.Username, c.config.Password); err != nil {
		netConn.Close()
		return nil, fmt.Errorf("POP3 authentication failed: %w", err)
	}

	return conn, nil
}

// popBeforeSMTP runs the POP3 login described by the session. The host may
// carry a port; 110 (995 with SSL) is used otherwise.
func popBeforeSMTP(ctx context.Context, s *Session) error {
	p := s.PopBeforeSMTP
	host, port := p.Host, DefaultPOP3Port
	if p.SSL {
		port = DefaultPOP3SPort
	}
	if h, ps, err := net.SplitHostPort(p.Host); err == nil {
		if n, err := strconv.Atoi(ps); err == nil {
			host, port = h, n
		}
	}
	if host == "" {
		return fmt.Errorf("POP-before-SMTP: %w", ErrMissingHost)
	}

	timeout := s.ConnectionTimeout
	if s.Timeout > timeout {
		timeout = s.Timeout
	}
	client := NewPOP3Client(POP3Config{
		Host:     host,
		Port:     port,
		Username: p.Username,
		Password: p.Password,
		SSL:      p.SSL,
		Timeout:  timeout,
	})
	if p.SSL {
		client.config.TLSConfig = &tls.Config{ServerName: host, RootCAs: s.RootCAs}
	}
	if err := client.Authenticate(ctx); err != nil {
		return fmt.Errorf("POP-before-SMTP: %w", err)
	}
	return nil
}

// ---------- low-level POP3 protocol ----------

var (
	pop3RespOK      = []byte("+OK")
	pop3RespOKInfo  = []byte("+OK ")
	pop3RespErr     = []byte("-ERR")
	pop3RespErrInfo = []byte("-ERR ")
)

// pop3Conn is a raw POP3 connection.
type pop3Conn struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

// send writes a POP3 command line.
func (c *pop3Conn) send(s string) error {
	if _, err := c.w.WriteString(s + "\r\n"); err != nil {
		return err
	}
	return c.w.Flush()
}

// cmd sends a command and reads the single-line response.
func (c *pop3Conn) cmd(cmd string, args ...string) ([]byte, error) {
	cmdLine := cmd
	if len(args) > 0 {
		cmdLine = cmd + " " + strings.Join(args, " ")
	}
	if err := c.send(cmdLine); err != nil {
		return nil, err
	}
	return c.readOne()
}

// readOne reads a single-line response and checks +OK/-ERR.
func (c *pop3Conn) readOne() ([]byte, error) {
	b, _, err := c.r.ReadLine()
	if err != nil {
		return nil, err
	}
	return parsePOP3Resp(b)
}

// auth authenticates with USER/PASS.
func (c *pop3Conn) auth(user, password string) error {
	if _, err := c.cmd("USER", user); err != nil {
		return err
	}
	if _, err := c.cmd("PASS", password); err != nil {
		return err
	}
	// NOOP to confirm auth succeeded
	_, err := c.cmd("NOOP")
	return err
}

// quit sends QUIT and closes the connection.
func (c *pop3Conn) quit() error {
	_, err := c.cmd("QUIT")
	if cerr := c.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

// ---------- response parsing ----------

func parsePOP3Resp(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if bytes.Equal(b, pop3RespOK) {
		return nil, nil
	}
	if bytes.HasPrefix(b, pop3RespOKInfo) {
		return bytes.TrimPrefix(b, pop3RespOKInfo), nil
	}
	if bytes.Equal(b, pop3RespErr) {
		return nil, errors.New("POP3: unknown error")
	}
	if bytes.HasPrefix(b, pop3RespErrInfo) {
		return nil, fmt.Errorf("POP3: %s", bytes.TrimPrefix(b, pop3RespErrInfo))
	}
	return nil, fmt.Errorf("POP3: unexpected response: %s", string(b))
}
