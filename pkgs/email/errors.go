package email

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAddress is matched by every *AddressError.
	ErrInvalidAddress = errors.New("invalid email address")

	// ErrInvalidHeader is matched by every *HeaderError.
	ErrInvalidHeader = errors.New("invalid header")

	// ErrMissingSender is returned by Build when no From address is set.
	ErrMissingSender = errors.New("from address must be set")

	// ErrMissingRecipient is returned by Build when To, Cc and Bcc are all empty.
	ErrMissingRecipient = errors.New("at least one receiver address must be set")

	// ErrMissingHost is returned when neither a host name nor a session is available.
	ErrMissingHost = errors.New("Cannot find valid hostname for mail session")

	// ErrInvalidContentType is returned in strict mode for content types that
	// cannot be parsed or do not fit the body.
	ErrInvalidContentType = errors.New("invalid content type")

	// ErrUnsupportedContent is returned by SetContent for payloads that are
	// not a string, []byte or io.Reader.
	ErrUnsupportedContent = errors.New("unsupported content payload")

	// ErrUnsupportedCharset is returned in strict mode for unknown charsets.
	ErrUnsupportedCharset = errors.New("unsupported charset")

	// ErrStartTLSUnavailable is returned when STARTTLS is required but the
	// server does not offer it.
	ErrStartTLSUnavailable = errors.New("STARTTLS is required but not offered by the server")

	// ErrUnknownTransport is returned by NewTransport for unknown kinds.
	ErrUnknownTransport = errors.New("unsupported transport")
)

// AddressError reports an address string that failed to parse.
type AddressError struct {
	Input string
	Err   error
}

func (e *AddressError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid email address %q", e.Input)
	}
	return fmt.Sprintf("invalid email address %q: %v", e.Input, e.Err)
}

func (e *AddressError) Unwrap() error { return e.Err }

func (e *AddressError) Is(target error) bool { return target == ErrInvalidAddress }

// HeaderError reports a rejected header name/value pair.
type HeaderError struct {
	Name   string
	Value  string
	Reason string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("invalid header %q: %s", e.Name, e.Reason)
}

func (e *HeaderError) Is(target error) bool { return target == ErrInvalidHeader }
