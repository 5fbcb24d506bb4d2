package pairing

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/stationd/connectivity"
	"github.com/the-lightning-land/stationd/credential"
	"github.com/the-lightning-land/stationd/daemon"
	"github.com/the-lightning-land/stationd/network"
)

const scanTimeout = 15 * time.Second

// Station is what a paired phone gets to see and control.
type Station interface {
	Status() *daemon.Status
	ScanWifi(ctx context.Context) ([]*network.Wifi, error)
	ConnectToWifi(ssid string, psk string) error
}

// check Daemon compliance to the interface during compile time
var _ Station = (*daemon.Daemon)(nil)

type WifiScanListItem struct {
	Ssid    string `json:"ssid"`
	Channel int    `json:"channel"`
	Signal  int    `json:"signal"`
}

// characteristics holds the read and write handlers of the pairing service.
// Ssid and psk are written separately and kept until the connect signal.
type characteristics struct {
	log     Logger
	station Station
	mu      sync.Mutex
	ssid    string
	psk     string
}

func (c *characteristics) readNetworkAvailabilityStatus() ([]byte, error) {
	c.log.Infof("Reading network availability...")

	if c.station.Status().State == connectivity.Online {
		return []byte{1}, nil
	}

	return []byte{0}, nil
}

func (c *characteristics) readIpAddress() ([]byte, error) {
	c.log.Infof("Reading ip address...")

	status := c.station.Status()
	if status.Lease == nil || status.Lease.Address == nil {
		return []byte{}, nil
	}

	return []byte(status.Lease.Address.String()), nil
}

func (c *characteristics) readWifiScanList() ([]byte, error) {
	c.log.Infof("Reading wifi scan list...")

	ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
	defer cancel()

	networks, err := c.station.ScanWifi(ctx)
	if err != nil {
		return nil, errors.Errorf("Could not get wifi scan list: %v", err)
	}

	// literal so that no networks serialize into an empty json array
	list := []*WifiScanListItem{}
	for _, wifi := range networks {
		list = append(list, &WifiScanListItem{
			Ssid:    wifi.Ssid,
			Channel: wifi.Channel,
			Signal:  wifi.Signal,
		})
	}

	payload, err := json.Marshal(list)
	if err != nil {
		return nil, errors.Errorf("Could not serialize wifi scan list: %v", err)
	}

	return payload, nil
}

// readWifiSsidString returns the associated network, falling back to the
// last written ssid.
func (c *characteristics) readWifiSsidString() ([]byte, error) {
	c.log.Infof("Reading wifi ssid...")

	status := c.station.Status()
	if status.Network != nil {
		return []byte(status.Network.Ssid), nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return []byte(c.ssid), nil
}

func (c *characteristics) writeWifiSsidString(value []byte) error {
	ssid := string(value)

	c.log.Infof("Writing wifi ssid to %v", ssid)

	c.mu.Lock()
	c.ssid = ssid
	c.mu.Unlock()

	return nil
}

func (c *characteristics) writeWifiPskString(value []byte) error {
	psk := credential.Psk(value)

	c.log.Infof("Writing wifi psk to %v", psk)

	c.mu.Lock()
	c.psk = psk.Reveal()
	c.mu.Unlock()

	return nil
}

func (c *characteristics) writeWifiConnectSignal(value []byte) error {
	c.log.Infof("Writing wifi connect signal to %v", value)

	if !bytes.Equal(value, []byte{1}) {
		return nil
	}

	c.mu.Lock()
	ssid, psk := c.ssid, c.psk
	c.mu.Unlock()

	err := c.station.ConnectToWifi(ssid, psk)
	if err != nil {
		return errors.Errorf("Could not connect to wifi: %v", err)
	}

	return nil
}
