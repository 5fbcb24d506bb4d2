package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/go-errors/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/the-lightning-land/stationd/connectivity"
	"github.com/the-lightning-land/stationd/network"
	"github.com/the-lightning-land/stationd/stationdb"
)

func newTestDaemon(t *testing.T, radio *network.MockRadio, config *Config) (*Daemon, *stationdb.DB) {
	t.Helper()

	db, err := stationdb.Open(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})

	if config == nil {
		config = &Config{}
	}

	config.Peripheral = network.NewPeripheral(radio)
	config.DB = db

	return New(config), db
}

func TestConnectToWifiSavesConnection(t *testing.T) {
	radio := network.NewMockRadio(&network.Wifi{Ssid: "wirt 2.4", Channel: 6})
	d, db := newTestDaemon(t, radio, nil)

	err := d.ConnectToWifi("wirt 2.4", "rosy&nina")
	require.NoError(t, err)

	status := d.Status()
	assert.Equal(t, connectivity.Online, status.State)
	assert.Equal(t, "wirt 2.4", status.Network.Ssid)
	assert.Equal(t, "192.168.1.42", status.Lease.Address.String())

	connection, err := db.GetWifiConnection()
	require.NoError(t, err)
	assert.Equal(t, &stationdb.WifiConnection{Ssid: "wirt 2.4", Psk: "rosy&nina"}, connection)

	lease, err := db.GetLastLease()
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.42", lease.Address)
	assert.Equal(t, "192.168.1.1", lease.Gateway)
	assert.Equal(t, "255.255.255.0", lease.Mask)

	d.Disconnect()
	assert.Equal(t, connectivity.Offline, d.Status().State)
	assert.Nil(t, radio.Active())
}

func TestConnectToWifiNotFoundKeepsSavedConnection(t *testing.T) {
	radio := network.NewMockRadio()
	d, db := newTestDaemon(t, radio, nil)

	require.NoError(t, db.SetWifiConnection(&stationdb.WifiConnection{Ssid: "old", Psk: "secret"}))

	err := d.ConnectToWifi("wirt 2.4", "rosy&nina")
	require.Error(t, err)
	assert.True(t, errors.Is(err, network.ErrNetworkNotFound))
	assert.Equal(t, connectivity.Offline, d.Status().State)

	connection, err := db.GetWifiConnection()
	require.NoError(t, err)
	assert.Equal(t, "old", connection.Ssid)
}

func TestReconnectReleasesPreviousHandle(t *testing.T) {
	radio := network.NewMockRadio(
		&network.Wifi{Ssid: "wirt 2.4", Channel: 6},
		&network.Wifi{Ssid: "wirt 5", Channel: 36},
	)
	d, _ := newTestDaemon(t, radio, nil)

	require.NoError(t, d.ConnectToWifi("wirt 2.4", "rosy&nina"))
	require.NoError(t, d.ConnectToWifi("wirt 5", "rosy&nina"))

	assert.Equal(t, 1, radio.Stops())
	assert.Equal(t, 36, radio.Active().Channel)

	d.Disconnect()
	assert.Equal(t, 2, radio.Stops())
}

func TestScanWifi(t *testing.T) {
	radio := network.NewMockRadio(&network.Wifi{Ssid: "wirt 2.4", Channel: 6})
	d, _ := newTestDaemon(t, radio, nil)

	networks, err := d.ScanWifi(context.Background())
	require.NoError(t, err)
	require.Len(t, networks, 1)

	require.NoError(t, d.ConnectToWifi("wirt 2.4", "rosy&nina"))
	defer d.Disconnect()

	networks, err = d.ScanWifi(context.Background())
	require.NoError(t, err)
	require.Len(t, networks, 1)
	assert.Equal(t, "wirt 2.4", networks[0].Ssid)
}

func TestRunUsesSavedConnectionAndReleasesOnShutdown(t *testing.T) {
	radio := network.NewMockRadio(&network.Wifi{Ssid: "wirt 2.4", Channel: 6})
	d, db := newTestDaemon(t, radio, nil)

	require.NoError(t, db.SetWifiConnection(&stationdb.WifiConnection{Ssid: "wirt 2.4", Psk: "rosy&nina"}))

	errs := make(chan error, 1)
	go func() {
		errs <- d.Run()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.True(t, d.Reporter().WaitForStateChange(ctx, connectivity.Offline))
	require.Eventually(t, func() bool {
		return d.Status().State == connectivity.Online
	}, 2*time.Second, time.Millisecond)

	d.Shutdown()
	d.Shutdown()

	require.NoError(t, <-errs)
	assert.Equal(t, 1, radio.Stops())
	assert.Nil(t, radio.Active())
}

func TestRunPrefersConfiguredCredentials(t *testing.T) {
	radio := network.NewMockRadio(
		&network.Wifi{Ssid: "wirt 2.4", Channel: 6},
		&network.Wifi{Ssid: "configured", Channel: 11},
	)
	d, db := newTestDaemon(t, radio, &Config{Ssid: "configured", Psk: "rosy&nina"})

	require.NoError(t, db.SetWifiConnection(&stationdb.WifiConnection{Ssid: "wirt 2.4", Psk: "rosy&nina"}))

	errs := make(chan error, 1)
	go func() {
		errs <- d.Run()
	}()

	require.Eventually(t, func() bool {
		return d.Status().State == connectivity.Online
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, 11, radio.Active().Channel)

	d.Shutdown()
	require.NoError(t, <-errs)
}

func TestTimeoutBoundsAssociation(t *testing.T) {
	radio := network.NewMockRadio(&network.Wifi{Ssid: "wirt 2.4", Channel: 6})
	radio.MockLease = nil
	d, _ := newTestDaemon(t, radio, &Config{Timeout: 20 * time.Millisecond})

	err := d.ConnectToWifi("wirt 2.4", "rosy&nina")
	require.Error(t, err)
	assert.True(t, errors.Is(err, network.ErrLeaseTimeout))
	assert.Equal(t, 1, radio.Stops())
}

func TestShutdownAbortsAssociation(t *testing.T) {
	radio := network.NewMockRadio(&network.Wifi{Ssid: "wirt 2.4", Channel: 6})
	radio.MockLease = nil
	d, _ := newTestDaemon(t, radio, nil)

	errs := make(chan error, 1)
	go func() {
		errs <- d.ConnectToWifi("wirt 2.4", "rosy&nina")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.True(t, d.Reporter().WaitForStateChange(ctx, connectivity.Offline))

	d.Shutdown()

	err := <-errs
	require.Error(t, err)
	assert.True(t, errors.Is(err, network.ErrCancelled))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, connectivity.Offline, d.Status().State)
}

func TestStatusDuringAssociation(t *testing.T) {
	radio := network.NewMockRadio(&network.Wifi{Ssid: "wirt 2.4", Channel: 6})
	radio.MockLease = nil
	d, db := newTestDaemon(t, radio, nil)

	errs := make(chan error, 1)
	go func() {
		errs <- d.ConnectToWifi("wirt 2.4", "rosy&nina")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.True(t, d.Reporter().WaitForStateChange(ctx, connectivity.Offline))

	// the lease wait blocks forever without a timeout
	require.Eventually(t, func() bool {
		calls := radio.Calls()
		return len(calls) > 0 && calls[len(calls)-1] == "wait-lease"
	}, 2*time.Second, time.Millisecond)

	statuses := make(chan *Status, 1)
	go func() {
		statuses <- d.Status()
	}()

	select {
	case status := <-statuses:
		assert.Equal(t, connectivity.Associating, status.State)
		assert.Nil(t, status.Network)
		assert.Nil(t, status.Lease)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("status blocked by the running association")
	}

	_, err := d.ScanWifi(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, network.ErrRadioUnavailable))

	d.Disconnect()

	err = <-errs
	require.Error(t, err)
	assert.True(t, errors.Is(err, network.ErrCancelled))
	assert.Equal(t, connectivity.Offline, d.Status().State)
	assert.Equal(t, 1, radio.Stops())

	connection, err := db.GetWifiConnection()
	require.NoError(t, err)
	assert.Nil(t, connection)
}
