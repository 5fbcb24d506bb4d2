package main

import (
	"net/http"
	// Blank import to set up profiling HTTP handlers.
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/the-lightning-land/stationd/api"
	"github.com/the-lightning-land/stationd/connectivity"
	"github.com/the-lightning-land/stationd/daemon"
	"github.com/the-lightning-land/stationd/indicator"
	"github.com/the-lightning-land/stationd/network"
	"github.com/the-lightning-land/stationd/pairing"
	"github.com/the-lightning-land/stationd/stationdb"
)

var (
	// Commit stores the current commit hash of this build. This should be set using -ldflags during compilation.
	Commit string
	// Version stores the version string of this build. This should be set using -ldflags during compilation.
	Version string
	// Date stores the date of this build. This should be set using -ldflags during compilation.
	Date string
)

// stationdMain is the true entry point for stationd. This is required since defers
// created in the top-level scope of a main method aren't executed if os.Exit() is called.
func stationdMain() error {
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)

	// Load CLI configuration and defaults
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Set logger into debug mode if called with --debug
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		log.Info("Setting debug mode.")
	}

	log.Debug("Loaded config.")

	// Print version of the daemon
	log.Infof("Version %s (commit %s)", Version, Commit)
	log.Infof("Built on %s", Date)

	// Stop here if only version was requested
	if cfg.ShowVersion {
		return nil
	}

	if cfg.Profiling.Listen != "" {
		go func() {
			log.Infof("Starting profiling server on %v", cfg.Profiling.Listen)
			// Redirect the root path
			http.Handle("/", http.RedirectHandler("/debug/pprof", http.StatusSeeOther))
			// All other handlers are registered on DefaultServeMux through the import of pprof
			err := http.ListenAndServe(cfg.Profiling.Listen, nil)
			if err != nil {
				log.Errorf("Could not run profiler: %v", err)
			}
		}()
	}

	// station.db persistently stores the last wifi connection and lease
	stationDB, err := stationdb.Open(cfg.DataDir)
	if err != nil {
		return errors.Errorf("Could not open station.db: %v", err)
	}

	log.Infof("Opened %v", stationDB.Path())

	defer func() {
		err := stationDB.Close()
		if err != nil {
			log.Errorf("Could not close station.db: %v", err)
		} else {
			log.Info("Closed station.db.")
		}
	}()

	// The radio is owned by exactly one association or scan at a time
	var radio network.Radio

	switch cfg.Net {
	case "wpa":
		radio = network.NewWpaRadio(&network.WpaRadioConfig{
			Interface:    cfg.Interface,
			PollInterval: cfg.PollInterval,
			Logger:       log.New().WithField("system", "radio"),
		})

		log.Infof("Created wpa_supplicant radio on %v.", cfg.Interface)
	case "mock":
		radio = network.NewMockRadio(&network.Wifi{
			Ssid:      cfg.Mock.Ssid,
			Channel:   cfg.Mock.Channel,
			Frequency: network.FrequencyFromChannel(cfg.Mock.Channel),
		})

		log.Info("Created a mock radio.")
	default:
		return errors.Errorf("Unknown networking type %v", cfg.Net)
	}

	reporter := connectivity.NewReporter()

	if cfg.Led.Pin != "" {
		pin, err := indicator.GpioPin(cfg.Led.Pin)
		if err != nil {
			return errors.Errorf("Could not open LED pin: %v", err)
		}

		led := indicator.New(&indicator.Config{
			Pin:      pin,
			Reporter: reporter,
			Logger:   log.New().WithField("system", "indicator"),
		})

		err = led.Start()
		if err != nil {
			return errors.Errorf("Could not start indicator: %v", err)
		}

		log.Infof("Started indicator on pin %v.", cfg.Led.Pin)

		defer func() {
			err := led.Stop()
			if err != nil {
				log.Errorf("Could not properly stop indicator: %v", err)
			} else {
				log.Info("Stopped indicator.")
			}
		}()
	}

	a := api.New(&api.Config{
		Log: log.New().WithField("system", "api"),
	})

	log.Infof("Created API")

	// central controller for the station's wifi
	d := daemon.New(&daemon.Config{
		Peripheral: network.NewPeripheral(radio),
		DB:         stationDB,
		Reporter:   reporter,
		Ssid:       cfg.Ssid,
		Psk:        cfg.Psk,
		Timeout:    cfg.Timeout,
		Api:        a,
		ApiListen:  cfg.Api.Listen,
		Logger:     log.New().WithField("system", "daemon"),
	})

	log.Infof("Created daemon.")

	if cfg.Pairing.Enabled {
		// create subsystem responsible for pairing
		pairingController, err := pairing.NewController(&pairing.Config{
			Logger:    log.New().WithField("system", "pairing"),
			AdapterId: cfg.Pairing.AdapterId,
			Station:   d,
		})
		if err != nil {
			return errors.Errorf("Could not create pairing controller: %v", err)
		}

		log.Infof("Created pairing controller.")

		err = pairingController.Start()
		if err != nil {
			return errors.Errorf("Could not start pairing controller: %v", err)
		}

		log.Infof("Started pairing controller.")

		defer func() {
			err := pairingController.Stop()
			if err != nil {
				log.Errorf("Could not properly shut down pairing controller: %v", err)
			}

			log.Infof("Stopped pairing controller.")
		}()
	}

	// Handle interrupt signals correctly
	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		sig := <-signals
		log.Info(sig)
		log.Info("Received an interrupt, stopping daemon...")
		d.Shutdown()
	}()

	// blocks until the daemon is shut down
	err = d.Run()
	if err != nil {
		return errors.Errorf("Failed running daemon: %v", err)
	}

	// finish with no error
	return nil
}

func main() {
	// Call the "real" main in a nested manner so the defers will properly
	// be executed in the case of a graceful shutdown.
	if err := stationdMain(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			os.Exit(0)
		}

		log.WithError(err).Println("Failed running stationd.")
		os.Exit(1)
	}
}
