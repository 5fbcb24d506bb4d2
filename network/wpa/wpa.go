package wpa

import (
	"github.com/go-errors/errors"
	"github.com/godbus/dbus/v5"
)

const (
	service            = "fi.w1.wpa_supplicant1"
	objectPath         = "/fi/w1/wpa_supplicant1"
	interfaceInterface = "fi.w1.wpa_supplicant1.Interface"
	bssInterface       = "fi.w1.wpa_supplicant1.BSS"
)

// Wpa talks to wpa_supplicant over its D-Bus API on the system bus.
type Wpa struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

func New() *Wpa {
	return &Wpa{}
}

func (w *Wpa) Start() error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return errors.Errorf("could not connect to system bus: %v", err)
	}

	w.conn = conn
	w.obj = conn.Object(service, objectPath)

	return nil
}

func (w *Wpa) Stop() error {
	if w.conn == nil {
		return nil
	}

	err := w.conn.Close()
	w.conn = nil
	w.obj = nil

	if err != nil {
		return errors.Errorf("could not close system bus connection: %v", err)
	}

	return nil
}

func (w *Wpa) GetInterface(ifname string) (*Interface, error) {
	call := w.obj.Call(service+".GetInterface", 0, ifname)
	if call.Err != nil {
		return nil, errors.Errorf("could not get interface: %v", call.Err)
	}

	var path dbus.ObjectPath
	err := call.Store(&path)
	if err != nil {
		return nil, errors.Errorf("could not store value: %v", err)
	}

	return w.newInterface(path), nil
}

// CreateInterface asks wpa_supplicant to start managing ifname.
func (w *Wpa) CreateInterface(ifname string) (*Interface, error) {
	call := w.obj.Call(service+".CreateInterface", 0, map[string]interface{}{
		"Ifname": ifname,
	})
	if call.Err != nil {
		return nil, errors.Errorf("could not create interface: %v", call.Err)
	}

	var path dbus.ObjectPath
	err := call.Store(&path)
	if err != nil {
		return nil, errors.Errorf("could not store value: %v", err)
	}

	return w.newInterface(path), nil
}

func (w *Wpa) newInterface(path dbus.ObjectPath) *Interface {
	return &Interface{
		wpa: w,
		obj: w.conn.Object(service, path),
	}
}
