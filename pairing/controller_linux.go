package pairing

import (
	"time"

	"github.com/go-errors/errors"
	"github.com/muka/go-bluetooth/api"
	"github.com/muka/go-bluetooth/linux/btmgmt"
	"github.com/muka/go-bluetooth/service"
)

const (
	// Unique UUID suffix of the station
	uuidSuffix = "-3c1e-4f52-9a0b-5e7d2a6f14c3"

	// Prefix of the station service UUID
	stationServiceUuidPrefix = "5A00"

	// Where to expose the application
	objectName = "land.lightning"
	objectPath = "/station/pairing/service"

	// Local name of the application
	localName = "Station"

	// Time for the adapter to come back after a reset
	resetDelay = 500 * time.Millisecond

	stationServiceUuid        = stationServiceUuidPrefix + "0000" + uuidSuffix
	networkAvailabilityStatus = stationServiceUuidPrefix + "5A01" + uuidSuffix
	ipAddress                 = stationServiceUuidPrefix + "5A02" + uuidSuffix
	wifiScanList              = stationServiceUuidPrefix + "5A03" + uuidSuffix
	wifiSsidString            = stationServiceUuidPrefix + "5A04" + uuidSuffix
	wifiPskString             = stationServiceUuidPrefix + "5A05" + uuidSuffix
	wifiConnectSignal         = stationServiceUuidPrefix + "5A06" + uuidSuffix
)

type Config struct {
	// Bluetooth adapter id, ex. hci0
	AdapterId string
	Station   Station
	Logger    Logger
}

// Controller exposes the station's wifi setup over Bluetooth LE, so that a
// phone can hand over credentials before the station is on any network.
type Controller struct {
	log       Logger
	adapterId string
	chars     *characteristics
	app       *service.Application
}

func NewController(config *Config) (*Controller, error) {
	controller := &Controller{
		adapterId: config.AdapterId,
	}

	if config.Logger != nil {
		controller.log = config.Logger
	} else {
		controller.log = noopLogger{}
	}

	controller.chars = &characteristics{
		log:     controller.log,
		station: config.Station,
	}

	chars := controller.chars

	app := newApp(objectName, objectPath, localName)
	svc := app.Service(Primary, stationServiceUuid, Advertised)

	svc.DeviceName(localName).Describe("Device Name").Utf8()
	svc.ManufacturerName("The Lightning Land").Describe("Manufacturer Name").Utf8()
	svc.ModelNumber("station").Describe("Model Number").Utf8()
	svc.Characteristic(networkAvailabilityStatus, chars.readNetworkAvailabilityStatus, nil).
		Describe("Network Availability Status")
	svc.Characteristic(ipAddress, chars.readIpAddress, nil).
		Describe("IP Address")
	svc.Characteristic(wifiScanList, chars.readWifiScanList, nil).
		Describe("Wi-Fi Scan List")
	svc.Characteristic(wifiSsidString, chars.readWifiSsidString, chars.writeWifiSsidString).
		Describe("Wi-Fi SSID")
	svc.Characteristic(wifiPskString, nil, chars.writeWifiPskString).
		Describe("Wi-Fi PSK")
	svc.Characteristic(wifiConnectSignal, nil, chars.writeWifiConnectSignal).
		Describe("Wi-Fi Connect Signal")

	var err error

	controller.app, err = app.Run()
	if err != nil {
		return nil, errors.Errorf("Could not start app: %v", err)
	}

	return controller, nil
}

func (c *Controller) Start() error {
	mgmt := btmgmt.NewBtMgmt(c.adapterId)
	err := mgmt.Reset()
	if err != nil {
		return errors.Errorf("Reset %s: %v", c.adapterId, err)
	}

	time.Sleep(resetDelay)

	gattManager, err := api.GetGattManager(c.adapterId)
	if err != nil {
		return errors.Errorf("Get gatt manager failed: %v", err)
	}

	err = gattManager.RegisterApplication(c.app.Path(), map[string]interface{}{})
	if err != nil {
		return errors.Errorf("Register failed: %v", err)
	}

	err = c.app.StartAdvertising(c.adapterId)
	if err != nil {
		return errors.Errorf("Failed to advertise: %v", err)
	}

	c.log.Infof("Advertising pairing service on %v", c.adapterId)

	return nil
}

func (c *Controller) Stop() error {
	err := c.app.StopAdvertising()
	if err != nil {
		return errors.Errorf("Could not stop advertising: %v", err)
	}

	gattManager, err := api.GetGattManager(c.adapterId)
	if err != nil {
		return errors.Errorf("Get gatt manager failed: %v", err)
	}

	err = gattManager.UnregisterApplication(c.app.Path())
	if err != nil {
		return errors.Errorf("Unregister failed: %v", err)
	}

	return nil
}
