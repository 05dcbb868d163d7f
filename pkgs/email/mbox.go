package email

import (
	"fmt"
	"io"

	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-mbox"
)

// WriteMbox writes msgs to w in mbox format, one "From " separated entry
// per message. The envelope sender line uses EnvelopeFrom.
func WriteMbox(w io.Writer, msgs ...*Message) error {
	mw := mbox.NewWriter(w)

	for _, msg := range msgs {
		ew, err := mw.CreateMessage(msg.EnvelopeFrom(), msg.Date())
		if err != nil {
			return fmt.Errorf("creating mbox message: %w", err)
		}
		if _, err := msg.WriteTo(ew); err != nil {
			return fmt.Errorf("writing mbox message: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return fmt.Errorf("closing mbox writer: %w", err)
	}
	return nil
}

// MboxMessage is one entry read back from an mbox stream.
type MboxMessage struct {
	Header mail.Header
	Body   []byte
}

// ReadMbox parses every message of an mbox stream. Bodies are returned
// decoded from their transfer encoding.
func ReadMbox(r io.Reader) ([]MboxMessage, error) {
	mr := mbox.NewReader(r)

	var out []MboxMessage
	for {
		msgReader, err := mr.NextMessage()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading mbox message: %w", err)
		}

		entity, err := gomessage.Read(msgReader)
		if err != nil && !gomessage.IsUnknownCharset(err) {
			return nil, fmt.Errorf("parsing mail message: %w", err)
		}
		body, err := io.ReadAll(entity.Body)
		if err != nil {
			return nil, fmt.Errorf("reading message body: %w", err)
		}

		out = append(out, MboxMessage{
			Header: mail.Header{Header: entity.Header},
			Body:   body,
		})
	}

	return out, nil
}
