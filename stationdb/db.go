package stationdb

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-errors/errors"
	"go.etcd.io/bbolt"
)

const (
	dbFilename        = "station.db"
	dbFilePermission  = 0600
	dataDirPermission = 0700
	openTimeout       = time.Second
)

var (
	settingsBucket = []byte("settings")

	wifiConnectionKey = []byte("wifiConnection")
	lastLeaseKey      = []byte("lastLease")
)

// DB persists the station's settings across restarts.
type DB struct {
	*bbolt.DB
	path string
}

func Open(dataDir string) (*DB, error) {
	err := os.MkdirAll(dataDir, dataDirPermission)
	if err != nil {
		return nil, errors.Errorf("could not create data dir %v: %v", dataDir, err)
	}

	path := filepath.Join(dataDir, dbFilename)

	bdb, err := bbolt.Open(path, dbFilePermission, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, errors.Errorf("could not open %v: %v", path, err)
	}

	err = bdb.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(settingsBucket)
		return err
	})
	if err != nil {
		_ = bdb.Close()
		return nil, errors.Errorf("could not create buckets: %v", err)
	}

	return &DB{
		DB:   bdb,
		path: path,
	}, nil
}

func (db *DB) Path() string {
	return db.path
}

type WifiConnection struct {
	Ssid string `json:"ssid"`
	Psk  string `json:"psk"`
}

// GetWifiConnection returns nil when no connection was saved yet.
func (db *DB) GetWifiConnection() (*WifiConnection, error) {
	var connection *WifiConnection

	err := db.getJSON(settingsBucket, wifiConnectionKey, &connection)
	if err != nil {
		return nil, errors.Errorf("could not get wifi connection: %v", err)
	}

	return connection, nil
}

func (db *DB) SetWifiConnection(connection *WifiConnection) error {
	err := db.setJSON(settingsBucket, wifiConnectionKey, connection)
	if err != nil {
		return errors.Errorf("could not set wifi connection: %v", err)
	}

	return nil
}

type Lease struct {
	Ssid     string    `json:"ssid"`
	Address  string    `json:"address"`
	Gateway  string    `json:"gateway"`
	Mask     string    `json:"mask"`
	Acquired time.Time `json:"acquired"`
}

func (db *DB) GetLastLease() (*Lease, error) {
	var lease *Lease

	err := db.getJSON(settingsBucket, lastLeaseKey, &lease)
	if err != nil {
		return nil, errors.Errorf("could not get last lease: %v", err)
	}

	return lease, nil
}

func (db *DB) SetLastLease(lease *Lease) error {
	err := db.setJSON(settingsBucket, lastLeaseKey, lease)
	if err != nil {
		return errors.Errorf("could not set last lease: %v", err)
	}

	return nil
}
