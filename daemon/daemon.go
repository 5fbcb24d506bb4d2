package daemon

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/stationd/connectivity"
	"github.com/the-lightning-land/stationd/network"
	"github.com/the-lightning-land/stationd/stationdb"
)

type Config struct {
	Peripheral *network.Peripheral
	DB         *stationdb.DB
	Reporter   *connectivity.ChangeReporter
	// Ssid and Psk take precedence over the saved wifi connection.
	Ssid string
	Psk  string
	// Timeout bounds a whole association attempt. Zero waits forever.
	Timeout   time.Duration
	Api       Api
	ApiListen string
	Logger    Logger
}

// Daemon owns the radio peripheral and the association living on it.
type Daemon struct {
	log          Logger
	peripheral   *network.Peripheral
	db           *stationdb.DB
	reporter     *connectivity.ChangeReporter
	ssid         string
	psk          string
	timeout      time.Duration
	api          Api
	apiListen    string
	apiListeners []net.Listener
	// connecting serializes associations, mu guards the fields below it.
	// An association in flight holds only connecting.
	connecting   sync.Mutex
	mu           sync.Mutex
	handle       *network.Handle
	abort        context.CancelFunc
	done         chan struct{}
	shutdown     sync.Once
}

type Status struct {
	State   connectivity.State
	Network *network.Wifi
	Lease   *network.Lease
}

func New(config *Config) *Daemon {
	d := &Daemon{
		peripheral: config.Peripheral,
		db:         config.DB,
		reporter:   config.Reporter,
		ssid:       config.Ssid,
		psk:        config.Psk,
		timeout:    config.Timeout,
		api:        config.Api,
		apiListen:  config.ApiListen,
		done:       make(chan struct{}),
	}

	if config.Logger != nil {
		d.log = config.Logger
	} else {
		d.log = noopLogger{}
	}

	if d.reporter == nil {
		d.reporter = connectivity.NewReporter()
	}

	if d.api != nil {
		d.api.SetDaemon(d)
	}

	return d
}

// Run connects to the configured or saved wifi, serves the api and blocks
// until Shutdown is called. The association is released before returning.
func (d *Daemon) Run() error {
	defer d.Disconnect()

	ssid, psk := d.ssid, d.psk

	if ssid == "" && d.db != nil {
		wifiConnection, err := d.db.GetWifiConnection()
		if err != nil {
			d.log.Warnf("Could not retrieve saved wifi connection: %v", err)
		}

		if wifiConnection != nil {
			ssid, psk = wifiConnection.Ssid, wifiConnection.Psk
		}
	}

	if ssid != "" {
		d.log.Infof("Will attempt connecting to Wifi %v.", ssid)

		err := d.ConnectToWifi(ssid, psk)
		if err != nil {
			d.log.Warnf("Whoops, couldn't connect to wifi: %v", err)
		}
	} else {
		d.log.Infof("No saved Wifi connection available. Not connecting.")
	}

	if d.api != nil && d.apiListen != "" {
		lis, err := net.Listen("tcp", d.apiListen)
		if err != nil {
			return errors.Errorf("API server unable to listen on %v: %v", d.apiListen, err)
		}

		d.mu.Lock()
		d.apiListeners = append(d.apiListeners, lis)
		d.mu.Unlock()

		go func() {
			err := d.api.Serve(lis)
			if err != nil {
				d.log.Errorf("Could not serve api: %v", err)
			}
		}()

		d.log.Infof("Serving api on %v", lis.Addr())
	}

	<-d.done

	d.closeListeners()

	return nil
}

// ConnectToWifi drops the current association, if any, and associates with
// the given credentials. The credentials are saved once the lease is there.
// Status stays available while the association runs; Disconnect aborts it.
func (d *Daemon) ConnectToWifi(ssid string, psk string) error {
	d.connecting.Lock()
	defer d.connecting.Unlock()

	d.log.Infof("Connecting to wifi %v", ssid)

	ctx, cancel := d.associationContext()
	defer cancel()

	d.mu.Lock()
	d.releaseLocked()
	d.abort = cancel
	d.reporter.Set(connectivity.Associating)
	d.mu.Unlock()

	handle, err := network.Associate(ctx, d.peripheral, ssid, psk, d.log)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.abort = nil

	// aborted after the last step already succeeded
	if err == nil && ctx.Err() != nil {
		handle.Release()
		err = &network.AssociationError{State: network.LeaseAcquired, Kind: network.ErrCancelled, Err: ctx.Err()}
	}

	if err != nil {
		d.reporter.Set(connectivity.Offline)
		return errors.Errorf("could not connect to wifi %v: %w", ssid, err)
	}

	d.handle = handle
	d.reporter.Set(connectivity.Online)

	d.log.Infof("Connected to wifi %v with %v", ssid, handle.Lease())

	if d.db != nil {
		err = d.db.SetWifiConnection(&stationdb.WifiConnection{
			Ssid: ssid,
			Psk:  psk,
		})
		if err != nil {
			d.log.Errorf("Could not save wifi connection: %v", err)
		}

		err = d.db.SetLastLease(leaseRecord(ssid, handle.Lease()))
		if err != nil {
			d.log.Errorf("Could not save lease: %v", err)
		}
	}

	return nil
}

func (d *Daemon) associationContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	// shutting down aborts an association at its next step
	go func() {
		select {
		case <-d.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	if d.timeout <= 0 {
		return ctx, cancel
	}

	timeoutCtx, timeoutCancel := context.WithTimeout(ctx, d.timeout)

	return timeoutCtx, func() {
		timeoutCancel()
		cancel()
	}
}

func leaseRecord(ssid string, lease *network.Lease) *stationdb.Lease {
	record := &stationdb.Lease{
		Ssid:     ssid,
		Acquired: time.Now(),
	}

	if lease == nil {
		return record
	}

	if lease.Address != nil {
		record.Address = lease.Address.String()
	}

	if lease.Gateway != nil {
		record.Gateway = lease.Gateway.String()
	}

	if lease.Mask != nil {
		record.Mask = net.IP(lease.Mask).String()
	}

	return record
}

// Disconnect releases the current association, if any, and aborts one that
// is still in flight.
func (d *Daemon) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.abort != nil {
		d.abort()
	}

	d.releaseLocked()
}

func (d *Daemon) releaseLocked() {
	if d.handle == nil {
		return
	}

	d.handle.Release()
	d.handle = nil

	d.reporter.Set(connectivity.Offline)
}

// ScanWifi lists the networks in range. While associated the radio is busy,
// so the scan the association was based on is returned instead. While an
// association is in flight the scan fails with network.ErrRadioUnavailable.
func (d *Daemon) ScanWifi(ctx context.Context) ([]*network.Wifi, error) {
	d.mu.Lock()
	handle := d.handle
	d.mu.Unlock()

	if handle != nil {
		return handle.Networks(), nil
	}

	return network.Scan(ctx, d.peripheral, d.log)
}

func (d *Daemon) Status() *Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	status := &Status{
		State: d.reporter.CurrentState(),
	}

	if d.handle != nil {
		status.Network = d.handle.Network()
		status.Lease = d.handle.Lease()
	}

	return status
}

func (d *Daemon) Reporter() connectivity.Reporter {
	return d.reporter
}

func (d *Daemon) Shutdown() {
	d.shutdown.Do(func() {
		// aborts a running association before its lock is needed below
		close(d.done)

		d.closeListeners()
	})
}

func (d *Daemon) closeListeners() {
	d.mu.Lock()
	listeners := d.apiListeners
	d.apiListeners = nil
	d.mu.Unlock()

	for _, lis := range listeners {
		err := lis.Close()
		if err != nil {
			d.log.Errorf("Could not close listener: %v", err)
		}
	}
}
