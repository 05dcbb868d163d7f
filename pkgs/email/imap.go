package email

import (
	"fmt"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// DefaultSentFolder is the mailbox sent messages are copied to.
const DefaultSentFolder = "Sent"

// IMAPClient stores copies of sent messages on an IMAP server.
type IMAPClient struct {
	config IMAPConfig
	client *imapclient.Client
}

// IMAPConfig holds IMAP configuration
type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	SSL      bool
	StartTLS bool
}

// NewIMAPClient creates a new IMAP client
func NewIMAPClient(config IMAPConfig) *IMAPClient {
	return &IMAPClient{
		config: config,
	}
}

// Connect establishes a connection to the IMAP server
func (c *IMAPClient) Connect() error {
	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)

	var client *imapclient.Client
	var err error

	if c.config.SSL {
		client, err = imapclient.DialTLS(addr, &imapclient.Options{})
	} else if c.config.StartTLS {
		client, err = imapclient.DialStartTLS(addr, &imapclient.Options{})
	} else {
		client, err = imapclient.DialInsecure(addr, &imapclient.Options{})
	}
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server %s: %w", addr, err)
	}

	if err := client.Login(c.config.Username, c.config.Password).Wait(); err != nil {
		client.Close()
		return fmt.Errorf("IMAP authentication failed: %w", err)
	}

	c.client = client
	return nil
}

// Close closes the IMAP connection
func (c *IMAPClient) Close() error {
	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// ensureConnected ensures the client is connected, returns a cleanup func
func (c *IMAPClient) ensureConnected() (func(), error) {
	if c.client != nil {
		return func() {}, nil
	}
	if err := c.Connect(); err != nil {
		return nil, err
	}
	return func() { c.Close() }, nil
}

// ListFolders returns the names of all mailboxes.
func (c *IMAPClient) ListFolders() ([]string, error) {
	cleanup, err := c.ensureConnected()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	mailboxes, err := c.client.List("", "*", &imap.ListOptions{}).Collect()
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	folders := make([]string, 0, len(mailboxes))
	for _, mb := range mailboxes {
		folders = append(folders, mb.Mailbox)
	}
	return folders, nil
}

// SaveMessage appends msg to folder with the \Seen flag. When the first
// append fails the folder is created and the append retried once.
func (c *IMAPClient) SaveMessage(folder string, msg *Message) error {
	cleanup, err := c.ensureConnected()
	if err != nil {
		return err
	}
	defer cleanup()

	if folder == "" {
		folder = DefaultSentFolder
	}

	if err := c.appendMessage(folder, msg); err == nil {
		return nil
	}

	if err := c.client.Create(folder, nil).Wait(); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", folder, err)
	}
	if err := c.appendMessage(folder, msg); err != nil {
		return fmt.Errorf("failed to save message to %s: %w", folder, err)
	}
	return nil
}

func (c *IMAPClient) appendMessage(folder string, msg *Message) error {
	cmd := c.client.Append(folder, int64(msg.Len()), &imap.AppendOptions{
		Flags: []imap.Flag{imap.FlagSeen},
		Time:  msg.Date(),
	})
	if _, err := msg.WriteTo(cmd); err != nil {
		cmd.Close()
		return err
	}
	if err := cmd.Close(); err != nil {
		return err
	}
	_, err := cmd.Wait()
	return err
}
