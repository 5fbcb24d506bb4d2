package network

import (
	"github.com/go-errors/errors"
)

var (
	ErrRadioUnavailable      = errors.New("radio unavailable")
	ErrScanFailed            = errors.New("scan failed")
	ErrNetworkNotFound       = errors.New("could not find configured SSID")
	ErrConfigurationRejected = errors.New("radio rejected client configuration")
	ErrConnectFailed         = errors.New("could not connect wifi")
	ErrLeaseTimeout          = errors.New("timed out waiting for DHCP lease")
	ErrLeaseFailed           = errors.New("could not obtain DHCP lease")
	ErrCancelled             = errors.New("association cancelled")

	errAssociationUsed = errors.New("association was already run")
)

// AssociationError is returned by every failed association. Kind is one of
// the sentinel errors above and Err the underlying cause, if any.
type AssociationError struct {
	State State
	Kind  error
	Err   error
}

func (e *AssociationError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}

	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *AssociationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}
