package email

import (
	"context"

	"github.com/rs/zerolog"
)

// LogTransport implements Transport by logging messages instead of
// delivering them. The logger comes from the context (zerolog.Ctx).
type LogTransport struct {
	// Body also logs the rendered message at debug level.
	Body bool
}

// NewLogTransport creates a new LogTransport
func NewLogTransport() *LogTransport {
	return &LogTransport{Body: true}
}

// Send logs the envelope of msg.
func (t *LogTransport) Send(ctx context.Context, msg *Message) error {
	logger := zerolog.Ctx(ctx).With().
		Str("transport", "log").
		Str("message_id", msg.MessageID()).
		Str("envelope_from", msg.EnvelopeFrom()).
		Strs("to", emails(msg.to)).
		Str("subject", msg.Subject()).
		Logger()

	if len(msg.cc) > 0 {
		logger = logger.With().Strs("cc", emails(msg.cc)).Logger()
	}
	if len(msg.bcc) > 0 {
		logger = logger.With().Strs("bcc", emails(msg.bcc)).Logger()
	}

	logger.Info().Int("size", msg.Len()).Msg("Sending email")
	if t.Body {
		logger.Debug().Msgf("Body:\n%s", msg.raw)
	}
	return nil
}
