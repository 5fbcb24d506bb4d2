package network

import (
	"context"
	"fmt"
	"net"

	"github.com/the-lightning-land/stationd/credential"
)

type AuthMethod int

const (
	AuthNone AuthMethod = iota
	WPA2Personal
)

func (a AuthMethod) String() string {
	switch a {
	case AuthNone:
		return "NONE"
	case WPA2Personal:
		return "WPA2-PERSONAL"
	default:
		return "INVALID AUTH METHOD"
	}
}

// Wifi is a network seen during a scan.
type Wifi struct {
	Ssid      string
	Bssid     string
	Channel   int
	Frequency int
	Signal    int
}

func (w *Wifi) String() string {
	return fmt.Sprintf("%s (%s, channel %d)", w.Ssid, w.Bssid, w.Channel)
}

// ClientConfiguration is what gets applied to the radio before connecting.
// It only exists for networks that were matched in a scan.
type ClientConfiguration struct {
	Ssid       credential.Ssid
	Psk        credential.Psk
	AuthMethod AuthMethod
	Channel    int
}

func newClientConfiguration(cred *credential.Credential, match *Wifi) *ClientConfiguration {
	return &ClientConfiguration{
		Ssid:       cred.Ssid(),
		Psk:        cred.Psk(),
		AuthMethod: WPA2Personal,
		Channel:    match.Channel,
	}
}

// Lease holds the IPv4 details handed out by DHCP.
type Lease struct {
	Address net.IP
	Gateway net.IP
	Mask    net.IPMask
}

func (l *Lease) String() string {
	return fmt.Sprintf("ip %v, gateway %v, mask %v", l.Address, l.Gateway, net.IP(l.Mask))
}

// Radio is the station mode surface of a wireless peripheral. Scan, Connect
// and WaitLease block until the radio reports an outcome or ctx is done.
type Radio interface {
	// SetConfiguration applies cfg, or the default empty configuration when nil.
	SetConfiguration(cfg *ClientConfiguration) error
	Start(ctx context.Context) error
	Scan(ctx context.Context) ([]*Wifi, error)
	Connect(ctx context.Context) error
	WaitLease(ctx context.Context) (*Lease, error)
	Stop() error
}

// ChannelFromFrequency maps a center frequency in MHz to its channel number,
// returning 0 for frequencies outside the 2.4 GHz and 5 GHz bands.
func ChannelFromFrequency(mhz int) int {
	switch {
	case mhz == 2484:
		return 14
	case mhz >= 2412 && mhz < 2484:
		return (mhz - 2407) / 5
	case mhz >= 5000 && mhz <= 5900:
		return (mhz - 5000) / 5
	default:
		return 0
	}
}

// FrequencyFromChannel is the inverse of ChannelFromFrequency.
func FrequencyFromChannel(channel int) int {
	switch {
	case channel == 14:
		return 2484
	case channel >= 1 && channel <= 13:
		return 2407 + channel*5
	case channel >= 32 && channel <= 177:
		return 5000 + channel*5
	default:
		return 0
	}
}
