package network

import (
	"sync"
)

// Handle owns an associated radio. Release disables it and hands the
// peripheral back; it is safe to call more than once.
type Handle struct {
	log        Logger
	radio      Radio
	peripheral *Peripheral
	network    *Wifi
	networks   []*Wifi
	config     *ClientConfiguration
	lease      *Lease
	once       sync.Once
}

func (h *Handle) Lease() *Lease {
	return h.lease
}

func (h *Handle) Network() *Wifi {
	return h.network
}

// Networks returns the scan results the association was based on.
func (h *Handle) Networks() []*Wifi {
	return h.networks
}

func (h *Handle) Configuration() *ClientConfiguration {
	return h.config
}

// Release stops the radio once. A failing stop is logged, never returned,
// and the peripheral is given back regardless.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.log.Infof("Releasing wifi %v", h.config.Ssid)

		err := h.radio.Stop()
		if err != nil {
			h.log.Warnf("Could not properly stop radio: %v", err)
		}

		h.radio = nil
		h.peripheral.give()
	})
}
