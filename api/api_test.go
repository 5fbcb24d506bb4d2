package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-errors/errors"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/the-lightning-land/stationd/credential"
	"github.com/the-lightning-land/stationd/daemon"
	"github.com/the-lightning-land/stationd/network"
	"github.com/the-lightning-land/stationd/stationdb"
)

func newTestServer(t *testing.T, radio *network.MockRadio) (*httptest.Server, *daemon.Daemon) {
	t.Helper()

	db, err := stationdb.Open(t.TempDir())
	require.NoError(t, err)

	api := New(&Config{})

	d := daemon.New(&daemon.Config{
		Peripheral: network.NewPeripheral(radio),
		DB:         db,
		Api:        api,
	})

	server := httptest.NewServer(api)

	t.Cleanup(func() {
		server.Close()
		d.Disconnect()
		_ = db.Close()
	})

	return server, d
}

func postNetwork(t *testing.T, server *httptest.Server, body string) *http.Response {
	t.Helper()

	res, err := http.Post(server.URL+"/api/v1/network", "application/json", strings.NewReader(body))
	require.NoError(t, err)

	return res
}

func TestPostNetworkConnects(t *testing.T) {
	radio := network.NewMockRadio(&network.Wifi{Ssid: "wirt 2.4", Channel: 6})
	server, _ := newTestServer(t, radio)

	res := postNetwork(t, server, `{"ssid":"wirt 2.4","psk":"rosy&nina"}`)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)

	body := &getNetworkResponse{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(body))

	assert.Equal(t, "ONLINE", body.State)
	require.NotNil(t, body.Network)
	assert.Equal(t, "wirt 2.4", body.Network.Ssid)
	assert.Equal(t, 6, body.Network.Channel)
	require.NotNil(t, body.Lease)
	assert.Equal(t, "192.168.1.42", body.Lease.Address)
	assert.Equal(t, "255.255.255.0", body.Lease.Mask)
}

func TestPostNetworkStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "malformed body", body: `{`, code: http.StatusBadRequest},
		{name: "empty ssid", body: `{"ssid":"","psk":"rosy&nina"}`, code: http.StatusBadRequest},
		{name: "empty psk", body: `{"ssid":"wirt 2.4","psk":""}`, code: http.StatusBadRequest},
		{name: "ssid too long", body: `{"ssid":"` + strings.Repeat("a", 33) + `","psk":"rosy&nina"}`, code: http.StatusBadRequest},
		{name: "unknown network", body: `{"ssid":"nope","psk":"rosy&nina"}`, code: http.StatusNotFound},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			radio := network.NewMockRadio(&network.Wifi{Ssid: "wirt 2.4", Channel: 6})
			server, _ := newTestServer(t, radio)

			res := postNetwork(t, server, test.body)
			defer res.Body.Close()

			assert.Equal(t, test.code, res.StatusCode)

			body := &errorResponse{}
			require.NoError(t, json.NewDecoder(res.Body).Decode(body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestGetNetworkAndDelete(t *testing.T) {
	radio := network.NewMockRadio(&network.Wifi{Ssid: "wirt 2.4", Channel: 6})
	server, d := newTestServer(t, radio)

	require.NoError(t, d.ConnectToWifi("wirt 2.4", "rosy&nina"))

	res, err := http.Get(server.URL + "/api/v1/network")
	require.NoError(t, err)
	defer res.Body.Close()

	body := &getNetworkResponse{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(body))
	assert.Equal(t, "ONLINE", body.State)

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/v1/network", nil)
	require.NoError(t, err)

	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	body = &getNetworkResponse{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(body))
	assert.Equal(t, "OFFLINE", body.State)
	assert.Nil(t, body.Network)
	assert.Nil(t, body.Lease)
	assert.Equal(t, 1, radio.Stops())
}

func TestGetScan(t *testing.T) {
	radio := network.NewMockRadio(
		&network.Wifi{Ssid: "wirt 2.4", Channel: 6, Signal: -40},
		&network.Wifi{Ssid: "wirt 5", Channel: 36, Signal: -70},
	)
	server, _ := newTestServer(t, radio)

	res, err := http.Get(server.URL + "/api/v1/network/scan")
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)

	var body []*wifiResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.Len(t, body, 2)
	assert.Equal(t, "wirt 5", body[1].Ssid)
	assert.Equal(t, -70, body[1].Signal)
	assert.Nil(t, radio.Active())
}

func TestGetScanRadioFailure(t *testing.T) {
	radio := network.NewMockRadio()
	radio.StartErr = assert.AnError
	server, _ := newTestServer(t, radio)

	res, err := http.Get(server.URL + "/api/v1/network/scan")
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}

func TestGetNetworkEvents(t *testing.T) {
	radio := network.NewMockRadio(&network.Wifi{Ssid: "wirt 2.4", Channel: 6})
	server, d := newTestServer(t, radio)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/network/events"

	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))

	event := &getNetworkEventsEvent{}
	require.NoError(t, c.ReadJSON(event))
	assert.Equal(t, "OFFLINE", event.State)

	require.NoError(t, d.ConnectToWifi("wirt 2.4", "rosy&nina"))

	// intermediate states may be skipped by slow readers
	for event.State != "ONLINE" {
		require.NoError(t, c.ReadJSON(event))
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "empty credential", err: credential.ErrEmptyPsk, code: http.StatusBadRequest},
		{name: "not found", err: &network.AssociationError{Kind: network.ErrNetworkNotFound}, code: http.StatusNotFound},
		{name: "radio busy", err: &network.AssociationError{Kind: network.ErrRadioUnavailable}, code: http.StatusServiceUnavailable},
		{
			name: "cancelled",
			err:  errors.Errorf("could not connect to wifi x: %w", &network.AssociationError{Kind: network.ErrCancelled, Err: context.Canceled}),
			code: http.StatusServiceUnavailable,
		},
		{name: "lease timeout", err: &network.AssociationError{Kind: network.ErrLeaseTimeout}, code: http.StatusGatewayTimeout},
		{name: "connect failed", err: &network.AssociationError{Kind: network.ErrConnectFailed}, code: http.StatusInternalServerError},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.code, statusCode(test.err))
		})
	}
}
