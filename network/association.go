package network

import (
	"context"

	"github.com/the-lightning-land/stationd/credential"
)

type State int

const (
	Idle State = iota
	Started
	Scanned
	Matched
	Configured
	Connected
	LeaseAcquired
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Started:
		return "STARTED"
	case Scanned:
		return "SCANNED"
	case Matched:
		return "MATCHED"
	case Configured:
		return "CONFIGURED"
	case Connected:
		return "CONNECTED"
	case LeaseAcquired:
		return "LEASE ACQUIRED"
	case Failed:
		return "FAILED"
	default:
		return "INVALID STATE"
	}
}

type AssociationConfig struct {
	Peripheral *Peripheral
	Credential *credential.Credential
	Logger     Logger
}

// Association joins one network with one credential. It walks the states
// from Idle to LeaseAcquired in order and ends in Failed on the first error.
// An Association is single use.
type Association struct {
	log        Logger
	peripheral *Peripheral
	credential *credential.Credential
	radio      Radio
	state      State
	networks   []*Wifi
	match      *Wifi
	config     *ClientConfiguration
	lease      *Lease
}

func NewAssociation(config *AssociationConfig) *Association {
	a := &Association{
		peripheral: config.Peripheral,
		credential: config.Credential,
		state:      Idle,
	}

	if config.Logger != nil {
		a.log = config.Logger
	} else {
		a.log = noopLogger{}
	}

	return a
}

// Associate validates ssid and psk and runs a full association on the
// peripheral. Invalid credentials are reported before the radio is touched.
func Associate(ctx context.Context, peripheral *Peripheral, ssid string, psk string, log Logger) (*Handle, error) {
	cred, err := credential.New(ssid, psk)
	if err != nil {
		return nil, err
	}

	return NewAssociation(&AssociationConfig{
		Peripheral: peripheral,
		Credential: cred,
		Logger:     log,
	}).Run(ctx)
}

func (a *Association) State() State {
	return a.state
}

// Configuration returns the client configuration once the Configured state
// was reached.
func (a *Association) Configuration() *ClientConfiguration {
	return a.config
}

// Run executes all steps. On success the radio moves into the returned
// handle. On failure the radio is stopped and the peripheral is given back.
func (a *Association) Run(ctx context.Context) (*Handle, error) {
	if a.state != Idle {
		return nil, &AssociationError{State: a.state, Kind: ErrRadioUnavailable, Err: errAssociationUsed}
	}

	steps := []struct {
		next State
		run  func(context.Context) error
	}{
		{Started, a.start},
		{Scanned, a.scan},
		{Matched, a.matchNetwork},
		{Configured, a.configure},
		{Connected, a.connect},
		{LeaseAcquired, a.awaitLease},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, a.fail(&AssociationError{State: a.state, Kind: ErrCancelled, Err: err})
		}

		if err := step.run(ctx); err != nil {
			return nil, a.fail(err)
		}

		a.log.Debugf("Association of %v moved from %v to %v", a.credential.Ssid(), a.state, step.next)
		a.state = step.next
	}

	a.log.Infof("Wifi DHCP info: %v", a.lease)

	return &Handle{
		log:        a.log,
		radio:      a.radio,
		peripheral: a.peripheral,
		network:    a.match,
		networks:   a.networks,
		config:     a.config,
		lease:      a.lease,
	}, nil
}

func (a *Association) fail(err error) error {
	a.log.Errorf("Association of %v failed in state %v: %v", a.credential.Ssid(), a.state, err)

	a.state = Failed

	if a.radio != nil {
		if stopErr := a.radio.Stop(); stopErr != nil {
			a.log.Warnf("Could not stop radio after failed association: %v", stopErr)
		}

		a.radio = nil
		a.peripheral.give()
	}

	return err
}

func (a *Association) start(ctx context.Context) error {
	radio, err := a.peripheral.take()
	if err != nil {
		return &AssociationError{State: a.state, Kind: ErrRadioUnavailable, Err: err}
	}

	a.radio = radio

	a.log.Infof("Starting wifi %v %v ...", a.credential.Ssid(), a.credential.Psk())

	err = a.radio.SetConfiguration(nil)
	if err != nil {
		return a.stepError(ctx, ErrRadioUnavailable, err)
	}

	err = a.radio.Start(ctx)
	if err != nil {
		return a.stepError(ctx, ErrRadioUnavailable, err)
	}

	return nil
}

func (a *Association) scan(ctx context.Context) error {
	a.log.Infof("Scanning...")

	networks, err := a.radio.Scan(ctx)
	if err != nil {
		return a.stepError(ctx, ErrScanFailed, err)
	}

	a.log.Debugf("Scan found %d networks", len(networks))

	a.networks = networks

	return nil
}

func (a *Association) matchNetwork(ctx context.Context) error {
	match := Match(a.networks, a.credential.Ssid())
	if match == nil {
		return &AssociationError{State: a.state, Kind: ErrNetworkNotFound}
	}

	a.log.Infof("Found %v", match)

	a.match = match

	return nil
}

func (a *Association) configure(ctx context.Context) error {
	config := newClientConfiguration(a.credential, a.match)

	err := a.radio.SetConfiguration(config)
	if err != nil {
		return a.stepError(ctx, ErrConfigurationRejected, err)
	}

	a.config = config

	return nil
}

func (a *Association) connect(ctx context.Context) error {
	a.log.Infof("Connecting wifi...")

	err := a.radio.Connect(ctx)
	if err != nil {
		return a.stepError(ctx, ErrConnectFailed, err)
	}

	return nil
}

func (a *Association) awaitLease(ctx context.Context) error {
	a.log.Infof("Waiting for DHCP lease...")

	lease, err := a.radio.WaitLease(ctx)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return &AssociationError{State: a.state, Kind: ErrLeaseTimeout, Err: err}
		}

		return a.stepError(ctx, ErrLeaseFailed, err)
	}

	a.lease = lease

	return nil
}

// stepError classifies a failed step. When ctx ended while the step was
// blocked the failure is reported as ErrCancelled instead of kind.
func (a *Association) stepError(ctx context.Context, kind error, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		a.log.Debugf("Step in state %v was interrupted: %v", a.state, err)
		return &AssociationError{State: a.state, Kind: ErrCancelled, Err: ctxErr}
	}

	return &AssociationError{State: a.state, Kind: kind, Err: err}
}

// Match returns the first network in scan order whose SSID equals ssid
// byte for byte, or nil.
func Match(networks []*Wifi, ssid credential.Ssid) *Wifi {
	for _, network := range networks {
		if network != nil && network.Ssid == string(ssid) {
			return network
		}
	}

	return nil
}
