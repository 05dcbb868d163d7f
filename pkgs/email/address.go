package email

import (
	"errors"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/emersion/go-message/mail"
)

// Address represents an email address
type Address struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ParseAddress parses either a bare "local@domain" address or the
// "Display Name <local@domain>" form.
func ParseAddress(s string) (Address, error) {
	in := strings.TrimSpace(s)
	if in == "" {
		return Address{}, &AddressError{Input: s, Err: errors.New("empty address")}
	}

	parsed, err := mail.ParseAddress(in)
	if err != nil {
		return Address{}, &AddressError{Input: s, Err: err}
	}
	if !govalidator.IsEmail(parsed.Address) {
		return Address{}, &AddressError{Input: s, Err: errors.New("malformed local-part or domain")}
	}

	return Address{Name: parsed.Name, Email: normalizeEmail(parsed.Address)}, nil
}

// NewAddress validates email and attaches a display name to it. A name
// embedded in email is replaced by name when name is non-empty.
func NewAddress(email, name string) (Address, error) {
	addr, err := ParseAddress(email)
	if err != nil {
		return Address{}, err
	}
	if name != "" {
		addr.Name = name
	}
	return addr, nil
}

// String formats the address for a header, RFC 2047 encoding the display
// name when needed.
func (a Address) String() string {
	return a.mailAddress().String()
}

// Equal reports whether both addresses name the same mailbox. Display names
// are not compared.
func (a Address) Equal(b Address) bool {
	return normalizeEmail(a.Email) == normalizeEmail(b.Email)
}

// Domain returns the part after the last "@", or "" when there is none.
func (a Address) Domain() string {
	if idx := strings.LastIndex(a.Email, "@"); idx >= 0 {
		return a.Email[idx+1:]
	}
	return ""
}

func (a Address) mailAddress() *mail.Address {
	return &mail.Address{Name: a.Name, Address: a.Email}
}

// normalizeEmail trims the address and lower-cases its domain. The local
// part is case-sensitive per RFC 5321 and is kept as given.
func normalizeEmail(s string) string {
	s = strings.TrimSpace(s)
	idx := strings.LastIndex(s, "@")
	if idx < 0 {
		return s
	}
	return s[:idx+1] + strings.ToLower(s[idx+1:])
}

// parseAddresses parses every input before returning, so a failure never
// yields a partial result.
func parseAddresses(in []string) ([]Address, error) {
	out := make([]Address, 0, len(in))
	for _, s := range in {
		addr, err := ParseAddress(s)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func toMailAddresses(addrs []Address) []*mail.Address {
	out := make([]*mail.Address, len(addrs))
	for i, a := range addrs {
		out[i] = a.mailAddress()
	}
	return out
}

func emails(addrs []Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Email
	}
	return out
}
