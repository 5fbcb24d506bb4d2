package credential

import (
	"strings"

	"github.com/go-errors/errors"
)

const (
	maxSsidLength = 32
	maxPskLength  = 64
)

var (
	// ErrEmptyCredential matches both ErrEmptySsid and ErrEmptyPsk.
	ErrEmptyCredential = errors.New("credential was empty")

	ErrEmptySsid   error = &emptyError{what: "SSID"}
	ErrEmptyPsk    error = &emptyError{what: "wifi password"}
	ErrInvalidSsid       = errors.New("could not parse SSID")
	ErrInvalidPsk        = errors.New("could not parse wifi password")
)

type emptyError struct {
	what string
}

func (e *emptyError) Error() string {
	return e.what + " was empty"
}

func (e *emptyError) Is(target error) bool {
	return target == ErrEmptyCredential
}

// Ssid is the validated name of a wireless network.
type Ssid string

func NewSsid(ssid string) (Ssid, error) {
	if ssid == "" {
		return "", ErrEmptySsid
	}

	if len(ssid) > maxSsidLength {
		return "", ErrInvalidSsid
	}

	return Ssid(ssid), nil
}

func (s Ssid) String() string {
	return string(s)
}

// Psk is a validated WPA passphrase. It prints masked.
type Psk string

func NewPsk(psk string) (Psk, error) {
	if psk == "" {
		return "", ErrEmptyPsk
	}

	if len(psk) > maxPskLength {
		return "", ErrInvalidPsk
	}

	return Psk(psk), nil
}

func (p Psk) String() string {
	return strings.Repeat("*", len(p))
}

// Reveal returns the passphrase as entered.
func (p Psk) Reveal() string {
	return string(p)
}

// Credential is an immutable pair of network name and passphrase.
type Credential struct {
	ssid Ssid
	psk  Psk
}

func New(ssid string, psk string) (*Credential, error) {
	s, err := NewSsid(ssid)
	if err != nil {
		return nil, err
	}

	p, err := NewPsk(psk)
	if err != nil {
		return nil, err
	}

	return &Credential{
		ssid: s,
		psk:  p,
	}, nil
}

func (c *Credential) Ssid() Ssid {
	return c.ssid
}

func (c *Credential) Psk() Psk {
	return c.psk
}

func (c *Credential) String() string {
	return c.ssid.String()
}
