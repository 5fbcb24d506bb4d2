package network

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/go-errors/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/the-lightning-land/stationd/network/wpa"
)

// polledConnection answers State with states in order, repeating the last.
type polledConnection struct {
	mu        sync.Mutex
	states    []string
	reason    int32
	reasonErr error
}

func (c *polledConnection) State() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.states[0]
	if len(c.states) > 1 {
		c.states = c.states[1:]
	}

	return state, nil
}

func (c *polledConnection) DisconnectReason() (int32, error) {
	return c.reason, c.reasonErr
}

func TestAwaitCompletedPolling(t *testing.T) {
	tests := []struct {
		name   string
		states []string
		reason int32
		err    string
	}{
		{
			name:   "completed",
			states: []string{wpa.StateScanning, wpa.StateAssociating, wpa.StateFourWay, wpa.StateCompleted},
		},
		{
			name:   "disconnected after handshake",
			states: []string{wpa.StateAssociating, wpa.StateFourWay, wpa.StateDisconnected},
			reason: 15,
			err:    "connection attempt failed with reason 15",
		},
		{
			name:   "inactive after association",
			states: []string{wpa.StateAssociated, wpa.StateInactive},
			reason: 3,
			err:    "connection attempt failed with reason 3",
		},
		{
			name:   "scanning again after handshake",
			states: []string{wpa.StateScanning, wpa.StateFourWay, wpa.StateScanning},
			reason: 2,
			err:    "connection attempt failed with reason 2",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			conn := &polledConnection{states: test.states, reason: test.reason}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			err := awaitCompleted(ctx, conn, nil, time.Millisecond)
			if test.err == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), test.err)
		})
	}
}

func TestAwaitCompletedSeesAnnouncedStates(t *testing.T) {
	// polling only ever lands on scanning, the handshake and its failure
	// are only visible through the announced changes
	conn := &polledConnection{states: []string{wpa.StateScanning}, reason: 15}

	changes := make(chan string, 2)
	changes <- wpa.StateFourWay
	changes <- wpa.StateDisconnected

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := awaitCompleted(ctx, conn, changes, time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reason 15")
}

func TestAwaitCompletedDisconnectReasonUnavailable(t *testing.T) {
	conn := &polledConnection{
		states:    []string{wpa.StateFourWay, wpa.StateDisconnected},
		reasonErr: errors.New("no such property"),
	}

	err := awaitCompleted(context.Background(), conn, nil, time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such property")
}

func TestAwaitCompletedWaitsBeforeAnyAttempt(t *testing.T) {
	conn := &polledConnection{states: []string{wpa.StateDisconnected}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := awaitCompleted(ctx, conn, nil, time.Millisecond)
	assert.Equal(t, context.DeadlineExceeded, err)
}

func ipNet(cidr string) *net.IPNet {
	ip, n, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(err)
	}

	n.IP = ip
	return n
}

func TestFreshLease(t *testing.T) {
	known := map[string]bool{"192.168.1.42": true}

	addrs := []net.Addr{
		ipNet("127.0.0.1/8"),
		ipNet("169.254.3.4/16"),
		ipNet("fe80::1/64"),
		ipNet("192.168.1.42/24"),
	}

	// only the address present before the association is there
	assert.Nil(t, freshLease(addrs, known))
	assert.True(t, known["192.168.1.42"])

	lease := freshLease(append(addrs, ipNet("10.0.0.7/8")), known)
	require.NotNil(t, lease)
	assert.Equal(t, "10.0.0.7", lease.Address.String())
	assert.Equal(t, "255.0.0.0", net.IP(lease.Mask).String())
}

func TestFreshLeaseAcceptsReassignedAddress(t *testing.T) {
	known := map[string]bool{"192.168.1.42": true}

	// the old address is dropped while associating
	assert.Nil(t, freshLease(nil, known))
	assert.Empty(t, known)

	lease := freshLease([]net.Addr{ipNet("192.168.1.42/24")}, known)
	require.NotNil(t, lease)
	assert.Equal(t, "192.168.1.42", lease.Address.String())
}

func TestLeaseGateway(t *testing.T) {
	lease := &Lease{
		Address: net.IPv4(192, 168, 1, 42).To4(),
		Mask:    net.CIDRMask(24, 32),
	}

	gw, err := leaseGateway(lease, func() (net.IP, error) {
		return net.IPv4(192, 168, 1, 1), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.1", gw.String())

	// the default route of another interface
	_, err = leaseGateway(lease, func() (net.IP, error) {
		return net.IPv4(10, 0, 0, 1), nil
	})
	assert.Error(t, err)

	_, err = leaseGateway(lease, func() (net.IP, error) {
		return nil, errors.New("no default route")
	})
	assert.Error(t, err)
}

func TestWpaRadioWaitLeaseBeforeStart(t *testing.T) {
	radio := NewWpaRadio(&WpaRadioConfig{Interface: "lo"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	lease, err := radio.WaitLease(ctx)
	assert.Error(t, err)
	assert.Nil(t, lease)
}
