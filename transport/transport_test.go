package transport

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtps-go/rtps/core/locator"
)

func udpLoc(t *testing.T, ip string, port int) locator.Locator {
	t.Helper()
	l, err := locator.FromUDPAddr(&net.UDPAddr{IP: net.ParseIP(ip), Port: port})
	require.NoError(t, err)
	return l
}

func TestLoopbackDeliversToRegisteredReceiver(t *testing.T) {
	a := udpLoc(t, "10.0.0.1", 7400)
	b := udpLoc(t, "10.0.0.2", 7400)
	tr := NewLoopback(a)

	got := make(chan []byte, 1)
	require.NoError(t, tr.OpenReceiveChannel(b, func(data []byte, from locator.Locator) {
		got <- data
	}))

	ok := tr.Send([]byte("hello"), []locator.Locator{b})
	assert.True(t, ok)
	assert.Equal(t, []byte("hello"), <-got)
}

func TestLoopbackSendToUnknownDestinationReturnsFalse(t *testing.T) {
	a := udpLoc(t, "10.0.0.1", 7400)
	tr := NewLoopback(a)
	ok := tr.Send([]byte("x"), []locator.Locator{udpLoc(t, "10.0.0.9", 7400)})
	assert.False(t, ok)
}

func TestLoopbackCloseStopsDelivery(t *testing.T) {
	a := udpLoc(t, "10.0.0.1", 7400)
	b := udpLoc(t, "10.0.0.2", 7400)
	tr := NewLoopback(a)
	require.NoError(t, tr.OpenReceiveChannel(b, func(data []byte, from locator.Locator) {}))
	require.NoError(t, tr.Close())
	assert.False(t, tr.Send([]byte("x"), []locator.Locator{b}))
}
