package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "stationd.conf"
	defaultDataDir        = "/var/lib/stationd"
	defaultNet            = "wpa"
	defaultInterface      = "wlan0"
	defaultApiListen      = "localhost:9080"
	defaultAdapterId      = "hci0"
	defaultMockSsid       = "stationd"
	defaultMockChannel    = 6
	defaultPollInterval   = 250 * time.Millisecond
)

type apiConfig struct {
	Listen string `long:"listen" description:"Address the HTTP API listens on, empty to disable"`
}

type ledConfig struct {
	Pin string `long:"pin" description:"GPIO pin of the status LED, empty to disable"`
}

type pairingConfig struct {
	Enabled   bool   `long:"enabled" description:"Advertise the Bluetooth LE pairing service"`
	AdapterId string `long:"adapter" description:"Bluetooth adapter to advertise on"`
}

type mockConfig struct {
	Ssid    string `long:"ssid" description:"SSID the mock radio finds in its scans"`
	Channel int    `long:"channel" description:"Channel of the mock network"`
}

type profilingConfig struct {
	Listen string `long:"listen" description:"Address the profiling server listens on"`
}

type config struct {
	ConfigFile   string           `long:"config" description:"Path to the configuration file"`
	ShowVersion  bool             `short:"v" long:"version" description:"Display version information and exit"`
	Debug        bool             `long:"debug" description:"Start in debug mode"`
	DataDir      string           `long:"datadir" description:"Directory stationd keeps its state in"`
	Net          string           `long:"net" description:"Radio to use" choice:"wpa" choice:"mock"`
	Interface    string           `long:"interface" description:"Wireless interface managed through wpa_supplicant"`
	PollInterval time.Duration    `long:"pollinterval" description:"How often to poll the interface while connecting"`
	Ssid         string           `long:"ssid" description:"SSID to connect to instead of the saved one"`
	Psk          string           `long:"psk" description:"Passphrase of the network given by --ssid"`
	Timeout      time.Duration    `long:"timeout" description:"Upper bound for an association, 0 waits forever"`
	Api          *apiConfig       `group:"API" namespace:"api"`
	Led          *ledConfig       `group:"LED" namespace:"led"`
	Pairing      *pairingConfig   `group:"Pairing" namespace:"pairing"`
	Mock         *mockConfig      `group:"Mock" namespace:"mock"`
	Profiling    *profilingConfig `group:"Profiling" namespace:"profiling"`
}

func defaultConfig() *config {
	return &config{
		DataDir:      defaultDataDir,
		Net:          defaultNet,
		Interface:    defaultInterface,
		PollInterval: defaultPollInterval,
		Api: &apiConfig{
			Listen: defaultApiListen,
		},
		Led: &ledConfig{},
		Pairing: &pairingConfig{
			AdapterId: defaultAdapterId,
		},
		Mock: &mockConfig{
			Ssid:    defaultMockSsid,
			Channel: defaultMockChannel,
		},
		Profiling: &profilingConfig{},
	}
}

// loadConfig applies defaults, then the config file, then the command line.
// The config file is looked up in the data dir unless --config is given.
func loadConfig() (*config, error) {
	preCfg := defaultConfig()

	_, err := flags.Parse(preCfg)
	if err != nil {
		return nil, err
	}

	if preCfg.ShowVersion {
		return preCfg, nil
	}

	configFile := preCfg.ConfigFile
	if configFile == "" {
		configFile = filepath.Join(preCfg.DataDir, defaultConfigFilename)
	}

	cfg := defaultConfig()
	parser := flags.NewParser(cfg, flags.Default)

	_, err = os.Stat(configFile)
	if err == nil {
		err = flags.NewIniParser(parser).ParseFile(configFile)
		if err != nil {
			return nil, err
		}
	} else if preCfg.ConfigFile != "" {
		return nil, err
	}

	// command line options take precedence over the config file
	_, err = parser.Parse()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}
