package api

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-errors/errors"
	"github.com/gorilla/websocket"
	"github.com/the-lightning-land/stationd/credential"
	"github.com/the-lightning-land/stationd/daemon"
	"github.com/the-lightning-land/stationd/network"
)

type wifiResponse struct {
	Ssid      string `json:"ssid"`
	Bssid     string `json:"bssid,omitempty"`
	Channel   int    `json:"channel"`
	Frequency int    `json:"frequency,omitempty"`
	Signal    int    `json:"signal"`
}

type leaseResponse struct {
	Address string `json:"address"`
	Gateway string `json:"gateway,omitempty"`
	Mask    string `json:"mask,omitempty"`
}

type getNetworkResponse struct {
	State   string         `json:"state"`
	Network *wifiResponse  `json:"network,omitempty"`
	Lease   *leaseResponse `json:"lease,omitempty"`
}

type postNetworkRequest struct {
	Ssid string `json:"ssid"`
	Psk  string `json:"psk"`
}

type getNetworkEventsEvent struct {
	State string `json:"state"`
}

func toWifiResponse(wifi *network.Wifi) *wifiResponse {
	return &wifiResponse{
		Ssid:      wifi.Ssid,
		Bssid:     wifi.Bssid,
		Channel:   wifi.Channel,
		Frequency: wifi.Frequency,
		Signal:    wifi.Signal,
	}
}

func toLeaseResponse(lease *network.Lease) *leaseResponse {
	res := &leaseResponse{}

	if lease.Address != nil {
		res.Address = lease.Address.String()
	}

	if lease.Gateway != nil {
		res.Gateway = lease.Gateway.String()
	}

	if lease.Mask != nil {
		res.Mask = net.IP(lease.Mask).String()
	}

	return res
}

func toNetworkResponse(status *daemon.Status) *getNetworkResponse {
	res := &getNetworkResponse{
		State: status.State.String(),
	}

	if status.Network != nil {
		res.Network = toWifiResponse(status.Network)
	}

	if status.Lease != nil {
		res.Lease = toLeaseResponse(status.Lease)
	}

	return res
}

// statusCode maps association failures onto the closest HTTP status.
func statusCode(err error) int {
	switch {
	case errors.Is(err, credential.ErrEmptyCredential),
		errors.Is(err, credential.ErrInvalidSsid),
		errors.Is(err, credential.ErrInvalidPsk):
		return http.StatusBadRequest
	case errors.Is(err, network.ErrNetworkNotFound):
		return http.StatusNotFound
	case errors.Is(err, network.ErrRadioUnavailable),
		errors.Is(err, network.ErrCancelled):
		return http.StatusServiceUnavailable
	case errors.Is(err, network.ErrLeaseTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (a *Api) handleGetNetwork() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.jsonResponse(w, toNetworkResponse(a.daemon.Status()), http.StatusOK)
	}
}

func (a *Api) handlePostNetwork() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := &postNetworkRequest{}

		err := json.NewDecoder(r.Body).Decode(req)
		if err != nil {
			a.jsonError(w, "Could not parse request body", http.StatusBadRequest)
			return
		}

		err = a.daemon.ConnectToWifi(req.Ssid, req.Psk)
		if err != nil {
			a.log.Errorf("Could not connect to wifi %v: %v", req.Ssid, err)
			a.jsonError(w, err.Error(), statusCode(err))
			return
		}

		a.jsonResponse(w, toNetworkResponse(a.daemon.Status()), http.StatusOK)
	}
}

func (a *Api) handleDeleteNetwork() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.daemon.Disconnect()

		a.jsonResponse(w, toNetworkResponse(a.daemon.Status()), http.StatusOK)
	}
}

func (a *Api) handleGetScan() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		networks, err := a.daemon.ScanWifi(r.Context())
		if err != nil {
			a.log.Errorf("Could not scan wifi: %v", err)
			a.jsonError(w, err.Error(), statusCode(err))
			return
		}

		res := make([]*wifiResponse, 0, len(networks))
		for _, wifi := range networks {
			res = append(res, toWifiResponse(wifi))
		}

		a.jsonResponse(w, res, http.StatusOK)
	}
}

func (a *Api) handleGetNetworkEvents() http.HandlerFunc {
	upgrader := &websocket.Upgrader{}

	return func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			a.log.Errorf("Could not upgrade connection: %v", err)
			return
		}

		client := a.daemon.Reporter().Subscribe()
		closed := make(chan struct{})

		// read pump
		go func() {
			defer close(closed)

			c.SetReadLimit(512)
			c.SetReadDeadline(time.Now().Add(60 * time.Second))
			c.SetPongHandler(func(string) error {
				c.SetReadDeadline(time.Now().Add(60 * time.Second))
				return nil
			})

			for {
				_, _, err := c.ReadMessage()
				if err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
						a.log.Errorf("unexpected websocket closure: %v", err)
					}
					break
				}
			}
		}()

		// write pump
		go func() {
			defer c.Close()
			defer client.Cancel()

			ticker := time.NewTicker(54 * time.Second)
			defer ticker.Stop()

			for {
				select {
				case state := <-client.Updates:
					c.SetWriteDeadline(time.Now().Add(10 * time.Second))

					err := c.WriteJSON(&getNetworkEventsEvent{
						State: state.String(),
					})
					if err != nil {
						return
					}
				case <-ticker.C:
					c.SetWriteDeadline(time.Now().Add(10 * time.Second))
					if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
						return
					}
				case <-closed:
					return
				}
			}
		}()
	}
}
