package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/emx-mail/compose/pkgs/config"
	"github.com/emx-mail/compose/pkgs/email"
	flag "github.com/spf13/pflag"
)

type sendFlags struct {
	to, cc, bcc, replyTo, subject string
	text, textFile                string
	contentType, charset          string
	headers, attachments          []string
	mbox                          string
	saveSent, dryRun              bool
}

func parseSendFlags(args []string) sendFlags {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	var f sendFlags
	fs.StringVar(&f.to, "to", "", "Recipients (comma-separated)")
	fs.StringVar(&f.cc, "cc", "", "CC recipients (comma-separated)")
	fs.StringVar(&f.bcc, "bcc", "", "BCC recipients (comma-separated)")
	fs.StringVar(&f.replyTo, "reply-to", "", "Reply-To address")
	fs.StringVar(&f.subject, "subject", "", "Email subject")
	fs.StringVar(&f.text, "text", "", "Message body")
	fs.StringVar(&f.textFile, "text-file", "", "Message body from file (\"-\" for stdin)")
	fs.StringVar(&f.contentType, "content-type", "", "Content type of the body")
	fs.StringVar(&f.charset, "charset", "", "Body charset")
	fs.StringArrayVar(&f.headers, "header", nil, "Extra header \"Name: value\" (repeatable)")
	fs.StringArrayVar(&f.attachments, "attachment", nil, "Attachment file path (repeatable)")
	fs.StringVar(&f.mbox, "mbox", "", "Append the sent message to this mbox file")
	fs.BoolVar(&f.saveSent, "save-sent", false, "Save a copy to the IMAP Sent folder")
	fs.BoolVar(&f.dryRun, "dry-run", false, "Print the rendered message without sending")
	if err := fs.Parse(args); err != nil {
		fatal("send: %v", err)
	}
	return f
}

// compose applies the send flags to b. replyTo is the account default,
// replaced by --reply-to when given.
func compose(b *email.MessageBuilder, f sendFlags, replyTo string) error {
	if err := b.AddTo(splitList(f.to)...); err != nil {
		return fmt.Errorf("--to: %w", err)
	}
	if err := b.AddCc(splitList(f.cc)...); err != nil {
		return fmt.Errorf("--cc: %w", err)
	}
	if err := b.AddBcc(splitList(f.bcc)...); err != nil {
		return fmt.Errorf("--bcc: %w", err)
	}
	if f.replyTo != "" {
		replyTo = f.replyTo
	}
	if replyTo != "" {
		if err := b.AddReplyTo(replyTo, ""); err != nil {
			return fmt.Errorf("--reply-to: %w", err)
		}
	}

	b.SetSubject(f.subject)
	for _, h := range f.headers {
		name, value, err := parseHeaderFlag(h)
		if err != nil {
			return fmt.Errorf("--header: %w", err)
		}
		if err := b.AddHeader(name, value); err != nil {
			return fmt.Errorf("--header: %w", err)
		}
	}
	if f.charset != "" {
		b.SetCharset(f.charset)
	}

	// --text-file takes precedence over --text
	text := f.text
	if f.textFile != "" {
		body, err := readBodySource(f.textFile)
		if err != nil {
			return fmt.Errorf("--text-file: %w", err)
		}
		text = body
	}

	contentType := f.contentType
	if contentType == "" {
		contentType = "text/plain"
	}

	if len(f.attachments) == 0 {
		if text == "" && f.contentType == "" {
			return nil
		}
		return b.SetContent(text, contentType)
	}

	mp := email.NewMultipart("mixed")
	switch mediaType(contentType) {
	case "text/plain":
		mp.AddText(text, f.charset)
	case "text/html":
		mp.AddHTML(text, f.charset)
	default:
		mp.AddPart(contentType, []byte(text))
	}
	for _, path := range f.attachments {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("--attachment: %w", err)
		}
		name := filepath.Base(path)
		mp.AddAttachment(name, mime.TypeByExtension(filepath.Ext(name)), data)
	}
	b.SetBody(mp)
	return nil
}

func mediaType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mt
}

// printDryRun writes the envelope and the rendered message.
func printDryRun(w io.Writer, msg *email.Message) error {
	fmt.Fprintln(w, "=== Email Preview (Dry-Run Mode) ===")
	fmt.Fprintf(w, "Envelope-From: %s\n", msg.EnvelopeFrom())
	fmt.Fprintf(w, "Recipients:    %s\n", strings.Join(msg.Recipients(), ", "))
	fmt.Fprintln(w)
	if _, err := msg.WriteTo(w); err != nil {
		return err
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== End of Preview ===")
	fmt.Fprintln(w, "Dry-run mode: email was NOT sent")
	return nil
}

func (a *app) handleSend(acc *config.AccountConfig, f sendFlags) error {
	if f.to == "" && f.cc == "" && f.bcc == "" {
		return fmt.Errorf("--to, --cc or --bcc is required")
	}

	b, err := a.newBuilder(acc)
	if err != nil {
		return err
	}
	if err := compose(b, f, acc.ReplyTo); err != nil {
		return err
	}

	msg, err := b.Build()
	if err != nil {
		return err
	}

	if f.dryRun {
		return printDryRun(os.Stdout, msg)
	}

	transport, err := email.NewTransport(acc.Transport)
	if err != nil {
		return err
	}
	ctx := a.logger.WithContext(context.Background())
	id, err := b.Send(ctx, transport)
	if err != nil {
		return err
	}

	if f.mbox != "" {
		if err := appendMbox(f.mbox, msg); err != nil {
			return err
		}
	}
	if f.saveSent {
		if err := saveSent(acc, msg); err != nil {
			return err
		}
	}

	fmt.Printf("Email sent successfully (Message-ID: %s)\n", id)
	return nil
}

func appendMbox(path string, msg *email.Message) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("--mbox: %w", err)
	}
	defer f.Close()
	if err := email.WriteMbox(f, msg); err != nil {
		return fmt.Errorf("--mbox: %w", err)
	}
	return nil
}

func saveSent(acc *config.AccountConfig, msg *email.Message) error {
	client, err := newIMAPClient(acc)
	if err != nil {
		return fmt.Errorf("--save-sent: %w", err)
	}
	defer client.Close()
	if err := client.SaveMessage(acc.SentFolder, msg); err != nil {
		return fmt.Errorf("--save-sent: %w", err)
	}
	return nil
}
