package network

import (
	"context"
)

// Scan takes the peripheral just long enough to list the networks in range.
// It fails with ErrRadioUnavailable while a handle holds the radio.
func Scan(ctx context.Context, peripheral *Peripheral, log Logger) ([]*Wifi, error) {
	if log == nil {
		log = noopLogger{}
	}

	radio, err := peripheral.take()
	if err != nil {
		return nil, &AssociationError{State: Idle, Kind: ErrRadioUnavailable, Err: err}
	}

	defer func() {
		err := radio.Stop()
		if err != nil {
			log.Warnf("Could not stop radio after scan: %v", err)
		}

		peripheral.give()
	}()

	err = radio.SetConfiguration(nil)
	if err != nil {
		return nil, &AssociationError{State: Idle, Kind: ErrRadioUnavailable, Err: err}
	}

	err = radio.Start(ctx)
	if err != nil {
		return nil, &AssociationError{State: Idle, Kind: ErrRadioUnavailable, Err: err}
	}

	networks, err := radio.Scan(ctx)
	if err != nil {
		return nil, &AssociationError{State: Started, Kind: ErrScanFailed, Err: err}
	}

	return networks, nil
}
