package wpa

import (
	"context"
	"sync"

	"github.com/go-errors/errors"
	"github.com/godbus/dbus/v5"
)

// Interface states as reported by wpa_supplicant.
const (
	StateDisconnected   = "disconnected"
	StateInactive       = "inactive"
	StateScanning       = "scanning"
	StateAuthenticating = "authenticating"
	StateAssociating    = "associating"
	StateAssociated     = "associated"
	StateFourWay        = "4way_handshake"
	StateGroupHandshake = "group_handshake"
	StateCompleted      = "completed"
)

type Interface struct {
	wpa *Wpa
	obj dbus.BusObject
}

func (i *Interface) String() string {
	return string(i.obj.Path())
}

type signalClient struct {
	signals <-chan *dbus.Signal
	cancel  func()
}

// subscribe delivers signals named member that are emitted by this interface.
func (i *Interface) subscribe(member string) (*signalClient, error) {
	opts := []dbus.MatchOption{
		dbus.WithMatchObjectPath(i.obj.Path()),
		dbus.WithMatchInterface(interfaceInterface),
		dbus.WithMatchMember(member),
	}

	err := i.wpa.conn.AddMatchSignal(opts...)
	if err != nil {
		return nil, errors.Errorf("could not add signal: %v", err)
	}

	signalChan := make(chan *dbus.Signal, 16)
	i.wpa.conn.Signal(signalChan)

	return &signalClient{
		signals: signalChan,
		cancel: func() {
			i.wpa.conn.RemoveSignal(signalChan)
			_ = i.wpa.conn.RemoveMatchSignal(opts...)
		},
	}, nil
}

// Scan triggers an active scan and blocks until wpa_supplicant signals
// that it is done.
func (i *Interface) Scan(ctx context.Context) error {
	client, err := i.subscribe("ScanDone")
	if err != nil {
		return errors.Errorf("unable to listen to scan completion: %v", err)
	}

	defer client.cancel()

	call := i.obj.CallWithContext(ctx, interfaceInterface+".Scan", 0, map[string]interface{}{
		"Type": "active",
	})
	if call.Err != nil {
		return errors.Errorf("could not scan: %v", call.Err)
	}

	for {
		select {
		case signal := <-client.signals:
			if signal.Name != interfaceInterface+".ScanDone" || signal.Path != i.obj.Path() {
				continue
			}

			if len(signal.Body) > 0 {
				if success, ok := signal.Body[0].(bool); ok && !success {
					return errors.New("scan was aborted")
				}
			}

			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WatchState delivers every state wpa_supplicant announces for this
// interface, so that short-lived states are seen even between polls. The
// returned func ends the watch.
func (i *Interface) WatchState() (<-chan string, func(), error) {
	client, err := i.subscribe("PropertiesChanged")
	if err != nil {
		return nil, nil, errors.Errorf("unable to listen to state changes: %v", err)
	}

	states := make(chan string, 16)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case signal := <-client.signals:
				state, ok := stateChange(i.obj.Path(), signal)
				if !ok {
					continue
				}

				select {
				case states <- state:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once

	return states, func() {
		once.Do(func() {
			close(done)
			client.cancel()
		})
	}, nil
}

// stateChange extracts the new state from a PropertiesChanged signal of the
// interface at path. Signals changing other properties are skipped.
func stateChange(path dbus.ObjectPath, signal *dbus.Signal) (string, bool) {
	if signal == nil || signal.Name != interfaceInterface+".PropertiesChanged" || signal.Path != path {
		return "", false
	}

	if len(signal.Body) == 0 {
		return "", false
	}

	props, ok := signal.Body[0].(map[string]dbus.Variant)
	if !ok {
		return "", false
	}

	v, ok := props["State"]
	if !ok {
		return "", false
	}

	state, ok := v.Value().(string)
	if !ok {
		return "", false
	}

	return state, true
}

func (i *Interface) BSSs() ([]*BSS, error) {
	v, err := i.obj.GetProperty(interfaceInterface + ".BSSs")
	if err != nil {
		return nil, errors.Errorf("could not get bsss: %v", err)
	}

	objectPaths, ok := v.Value().([]dbus.ObjectPath)
	if !ok {
		return nil, errors.Errorf("could not convert result: %v", v)
	}

	var bsss []*BSS

	for _, objectPath := range objectPaths {
		bsss = append(bsss, &BSS{
			obj: i.wpa.conn.Object(service, objectPath),
		})
	}

	return bsss, nil
}

// AddNetwork registers a network block built from args, e.g. ssid and psk.
func (i *Interface) AddNetwork(args map[string]interface{}) (*Network, error) {
	call := i.obj.Call(interfaceInterface+".AddNetwork", 0, args)
	if call.Err != nil {
		return nil, errors.Errorf("could not add network: %v", call.Err)
	}

	var objPath dbus.ObjectPath
	err := call.Store(&objPath)
	if err != nil {
		return nil, errors.Errorf("could not store value: %v", err)
	}

	return &Network{
		obj: i.wpa.conn.Object(service, objPath),
	}, nil
}

func (i *Interface) SelectNetwork(net *Network) error {
	call := i.obj.Call(interfaceInterface+".SelectNetwork", 0, net.obj.Path())
	if call.Err != nil {
		return errors.Errorf("could not select network: %v", call.Err)
	}

	return nil
}

func (i *Interface) Disconnect() error {
	call := i.obj.Call(interfaceInterface+".Disconnect", 0)
	if e, ok := call.Err.(dbus.Error); ok && e.Name == service+".NotConnected" {
		return nil
	}

	if call.Err != nil {
		return errors.Errorf("could not disconnect: %v", call.Err)
	}

	return nil
}

func (i *Interface) RemoveNetwork(net *Network) error {
	call := i.obj.Call(interfaceInterface+".RemoveNetwork", 0, net.obj.Path())
	if call.Err != nil {
		return errors.Errorf("could not remove network: %v", call.Err)
	}

	return nil
}

func (i *Interface) RemoveAllNetworks() error {
	call := i.obj.Call(interfaceInterface+".RemoveAllNetworks", 0)
	if call.Err != nil {
		return errors.Errorf("could not remove all networks: %v", call.Err)
	}

	return nil
}

func (i *Interface) State() (string, error) {
	v, err := i.obj.GetProperty(interfaceInterface + ".State")
	if err != nil {
		return "", errors.Errorf("could not get state: %v", err)
	}

	state, ok := v.Value().(string)
	if !ok {
		return "", errors.Errorf("could not convert state: %v", v)
	}

	return state, nil
}

// DisconnectReason is the IEEE 802.11 reason code of the last disconnect.
func (i *Interface) DisconnectReason() (int32, error) {
	v, err := i.obj.GetProperty(interfaceInterface + ".DisconnectReason")
	if err != nil {
		return 0, errors.Errorf("could not get disconnect reason: %v", err)
	}

	reason, ok := v.Value().(int32)
	if !ok {
		return 0, errors.Errorf("could not convert disconnect reason: %v", v)
	}

	return reason, nil
}
