package network

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/go-errors/errors"
	"github.com/jackpal/gateway"
	"github.com/the-lightning-land/stationd/network/wpa"
)

// check WpaRadio compliance to its interface during compile time
var _ Radio = (*WpaRadio)(nil)

const defaultPollInterval = 250 * time.Millisecond

type WpaRadioConfig struct {
	Interface    string
	PollInterval time.Duration
	Logger       Logger
}

// WpaRadio drives a wireless interface through wpa_supplicant.
type WpaRadio struct {
	log    Logger
	wpa    *wpa.Wpa
	ifname string
	iface  *wpa.Interface
	net    *wpa.Network
	poll   time.Duration
	// addresses on the interface when the radio started, none is a lease
	known map[string]bool
}

func NewWpaRadio(config *WpaRadioConfig) *WpaRadio {
	radio := &WpaRadio{
		ifname: config.Interface,
		wpa:    wpa.New(),
		poll:   config.PollInterval,
	}

	if radio.poll <= 0 {
		radio.poll = defaultPollInterval
	}

	if config.Logger != nil {
		radio.log = config.Logger
	} else {
		radio.log = noopLogger{}
	}

	return radio
}

func (r *WpaRadio) SetConfiguration(cfg *ClientConfiguration) error {
	if cfg == nil {
		r.net = nil

		// nothing is configured before the radio was started
		if r.iface == nil {
			return nil
		}

		return r.iface.RemoveAllNetworks()
	}

	if r.iface == nil {
		return errors.New("radio was not started")
	}

	if cfg.AuthMethod != WPA2Personal {
		return errors.Errorf("unsupported auth method %v", cfg.AuthMethod)
	}

	err := r.iface.RemoveAllNetworks()
	if err != nil {
		return err
	}

	added, err := r.iface.AddNetwork(networkArgs(cfg))
	if err != nil {
		return err
	}

	r.log.Debugf("Added network %v", added)

	r.net = added

	return nil
}

func networkArgs(cfg *ClientConfiguration) map[string]interface{} {
	args := map[string]interface{}{
		"ssid":     cfg.Ssid.String(),
		"psk":      cfg.Psk.Reveal(),
		"key_mgmt": "WPA-PSK",
		"proto":    "RSN",
		"pairwise": "CCMP",
	}

	if freq := FrequencyFromChannel(cfg.Channel); freq != 0 {
		args["scan_freq"] = strconv.Itoa(freq)
		args["freq_list"] = strconv.Itoa(freq)
	}

	return args
}

func (r *WpaRadio) Start(ctx context.Context) error {
	err := r.wpa.Start()
	if err != nil {
		return errors.Errorf("could not start wpa: %v", err)
	}

	iface, err := r.wpa.GetInterface(r.ifname)
	if err != nil {
		r.log.Debugf("Interface %v is unknown to wpa_supplicant, creating it: %v", r.ifname, err)

		iface, err = r.wpa.CreateInterface(r.ifname)
		if err != nil {
			_ = r.wpa.Stop()
			return errors.Errorf("could not find interface %v: %v", r.ifname, err)
		}
	}

	r.iface = iface

	err = r.iface.RemoveAllNetworks()
	if err != nil {
		_ = r.Stop()
		return err
	}

	r.known = make(map[string]bool)

	addrs, err := r.interfaceAddrs()
	if err != nil {
		r.log.Warnf("Could not list addresses present before association: %v", err)
		return nil
	}

	for _, ip := range routableAddrs(addrs) {
		r.known[ip.String()] = true
	}

	return nil
}

func (r *WpaRadio) Scan(ctx context.Context) ([]*Wifi, error) {
	if r.iface == nil {
		return nil, errors.New("radio was not started")
	}

	err := r.iface.Scan(ctx)
	if err != nil {
		return nil, errors.Errorf("unable to scan: %v", err)
	}

	bsss, err := r.iface.BSSs()
	if err != nil {
		return nil, errors.Errorf("unable to get BSSs: %v", err)
	}

	var wifis []*Wifi

	for _, bss := range bsss {
		b, err := bss.GetAll()
		if err != nil {
			r.log.Debugf("Skipping %v: %v", bss, err)
			continue
		}

		wifis = append(wifis, &Wifi{
			Ssid:      b.Ssid,
			Bssid:     b.Bssid,
			Frequency: int(b.Frequency),
			Channel:   ChannelFromFrequency(int(b.Frequency)),
			Signal:    int(b.Signal),
		})
	}

	return wifis, nil
}

// Connect selects the configured network and waits until wpa_supplicant
// completed the handshake.
func (r *WpaRadio) Connect(ctx context.Context) error {
	if r.net == nil {
		return errors.New("no network was configured")
	}

	changes, unwatch, err := r.iface.WatchState()
	if err != nil {
		r.log.Warnf("Falling back to polling the connection state: %v", err)
	} else {
		defer unwatch()
	}

	err = r.iface.SelectNetwork(r.net)
	if err != nil {
		return err
	}

	return awaitCompleted(ctx, r.iface, changes, r.poll)
}

// connectionState is the part of a wpa_supplicant interface Connect watches.
type connectionState interface {
	State() (string, error)
	DisconnectReason() (int32, error)
}

// awaitCompleted blocks until iface reports completed. Once the handshake
// was seen, falling back to disconnected, inactive or scanning is a failed
// attempt. States are taken from changes as they are announced and polled
// every poll interval in case an announcement is missed.
func awaitCompleted(ctx context.Context, iface connectionState, changes <-chan string, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	attempted := false

	state, err := iface.State()
	if err != nil {
		return err
	}

	for {
		switch state {
		case wpa.StateCompleted:
			return nil
		case wpa.StateAuthenticating, wpa.StateAssociating, wpa.StateAssociated,
			wpa.StateFourWay, wpa.StateGroupHandshake:
			attempted = true
		case wpa.StateDisconnected, wpa.StateInactive, wpa.StateScanning:
			if attempted {
				reason, err := iface.DisconnectReason()
				if err != nil {
					return errors.Errorf("connection attempt failed: %v", err)
				}

				return errors.Errorf("connection attempt failed with reason %d", reason)
			}
		}

		select {
		case state = <-changes:
		case <-ticker.C:
			state, err = iface.State()
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WaitLease polls the interface until an IPv4 address shows up that was not
// there when the radio started.
func (r *WpaRadio) WaitLease(ctx context.Context) (*Lease, error) {
	if r.iface == nil {
		return nil, errors.New("radio was not started")
	}

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		addrs, err := r.interfaceAddrs()
		if err != nil {
			return nil, err
		}

		if lease := freshLease(addrs, r.known); lease != nil {
			gw, err := leaseGateway(lease, gateway.DiscoverGateway)
			if err != nil {
				r.log.Warnf("Could not discover gateway: %v", err)
			} else {
				lease.Gateway = gw
			}

			return lease, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (r *WpaRadio) interfaceAddrs() ([]net.Addr, error) {
	iface, err := net.InterfaceByName(r.ifname)
	if err != nil {
		return nil, errors.Errorf("could not find interface %v: %v", r.ifname, err)
	}

	addrs, err := iface.Addrs()
	if err != nil {
		return nil, errors.Errorf("could not list addresses of %v: %v", r.ifname, err)
	}

	return addrs, nil
}

func routableAddrs(addrs []net.Addr) []*net.IPNet {
	var routable []*net.IPNet

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}

		ip := ipNet.IP.To4()
		if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}

		routable = append(routable, &net.IPNet{IP: ip, Mask: ipNet.Mask})
	}

	return routable
}

// freshLease returns the first routable IPv4 address in addrs that is not
// known. Known addresses missing from addrs are forgotten, so an address
// that was dropped and handed out again counts as fresh.
func freshLease(addrs []net.Addr, known map[string]bool) *Lease {
	routable := routableAddrs(addrs)
	present := make(map[string]bool, len(routable))

	var lease *Lease

	for _, ipNet := range routable {
		ip := ipNet.IP.String()
		present[ip] = true

		if lease == nil && !known[ip] {
			lease = &Lease{
				Address: ipNet.IP,
				Mask:    ipNet.Mask,
			}
		}
	}

	for ip := range known {
		if !present[ip] {
			delete(known, ip)
		}
	}

	return lease
}

// leaseGateway returns the default gateway when it lies in the leased
// subnet. A default route through another interface is not this lease's.
func leaseGateway(lease *Lease, discover func() (net.IP, error)) (net.IP, error) {
	gw, err := discover()
	if err != nil {
		return nil, err
	}

	subnet := &net.IPNet{
		IP:   lease.Address.Mask(lease.Mask),
		Mask: lease.Mask,
	}

	if !subnet.Contains(gw) {
		return nil, errors.Errorf("default gateway %v is outside of %v", gw, subnet)
	}

	return gw, nil
}

func (r *WpaRadio) Stop() error {
	var firstErr error

	if r.iface != nil {
		err := r.iface.Disconnect()
		if err != nil {
			firstErr = err
		}

		err = r.iface.RemoveAllNetworks()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	r.iface = nil
	r.net = nil
	r.known = nil

	err := r.wpa.Stop()
	if err != nil && firstErr == nil {
		firstErr = err
	}

	if firstErr != nil {
		return errors.Errorf("could not stop wpa: %v", firstErr)
	}

	return nil
}
