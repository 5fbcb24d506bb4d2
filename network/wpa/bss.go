package wpa

import (
	"encoding/hex"

	"github.com/go-errors/errors"
	"github.com/godbus/dbus/v5"
)

type BSS struct {
	obj dbus.BusObject
}

func (b *BSS) String() string {
	return string(b.obj.Path())
}

type Bss struct {
	Ssid      string
	Bssid     string
	Frequency uint16
	Signal    int16
}

func (b *BSS) GetAll() (*Bss, error) {
	call := b.obj.Call("org.freedesktop.DBus.Properties.GetAll", 0, bssInterface)
	if call.Err != nil {
		return nil, errors.Errorf("could not get all properties: %v", call.Err)
	}

	props, ok := call.Body[0].(map[string]dbus.Variant)
	if !ok {
		return nil, errors.Errorf("could not convert output")
	}

	return parseBss(props)
}

func parseBss(props map[string]dbus.Variant) (*Bss, error) {
	bss := Bss{}

	if val, ok := props["SSID"]; ok {
		if ssid, ok := val.Value().([]byte); ok {
			bss.Ssid = string(ssid)
		} else {
			return nil, errors.Errorf("could not convert SSID to string: %v", val)
		}
	} else {
		return nil, errors.Errorf("mandatory property SSID was missing")
	}

	if val, ok := props["BSSID"]; ok {
		if bssid, ok := val.Value().([]byte); ok {
			bss.Bssid = hex.EncodeToString(bssid)
		} else {
			return nil, errors.Errorf("could not convert BSSID to string: %v", val)
		}
	} else {
		return nil, errors.Errorf("mandatory property BSSID was missing")
	}

	if val, ok := props["Frequency"]; ok {
		if frequency, ok := val.Value().(uint16); ok {
			bss.Frequency = frequency
		} else {
			return nil, errors.Errorf("could not convert Frequency: %v", val)
		}
	} else {
		return nil, errors.Errorf("mandatory property Frequency was missing")
	}

	// signal strength is informational only
	if val, ok := props["Signal"]; ok {
		if signal, ok := val.Value().(int16); ok {
			bss.Signal = signal
		}
	}

	return &bss, nil
}
