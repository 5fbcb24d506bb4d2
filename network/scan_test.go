package network

import (
	"context"
	"testing"

	"github.com/go-errors/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanReleasesRadio(t *testing.T) {
	radio := NewMockRadio(wirt(), &Wifi{Ssid: "neighbour", Channel: 11})
	peripheral := NewPeripheral(radio)

	networks, err := Scan(context.Background(), peripheral, nil)
	require.NoError(t, err)
	require.Len(t, networks, 2)
	assert.Equal(t, "wirt 2.4", networks[0].Ssid)

	assert.Equal(t, 1, radio.Stops())
	assert.False(t, peripheral.Taken())
}

func TestScanWhileAssociated(t *testing.T) {
	radio := NewMockRadio(wirt())
	peripheral := NewPeripheral(radio)

	handle, err := Associate(context.Background(), peripheral, "wirt 2.4", "rosy&nina", nil)
	require.NoError(t, err)
	defer handle.Release()

	_, err = Scan(context.Background(), peripheral, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRadioUnavailable))
	assert.Equal(t, 0, radio.Stops())
	assert.Len(t, handle.Networks(), 1)
}

func TestScanFailure(t *testing.T) {
	radio := NewMockRadio()
	radio.ScanErr = errors.New("busy")
	peripheral := NewPeripheral(radio)

	_, err := Scan(context.Background(), peripheral, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrScanFailed))
	assert.False(t, peripheral.Taken())
}
