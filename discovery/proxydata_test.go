package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtps-go/rtps/core/guid"
	"github.com/rtps-go/rtps/core/locator"
	"github.com/rtps-go/rtps/core/qos"
	"github.com/rtps-go/rtps/wire/cdr"
	"github.com/rtps-go/rtps/wire/plist"
)

func mustLocator(t *testing.T, ip string, port int) locator.Locator {
	t.Helper()
	l, err := locator.FromUDPAddr(&net.UDPAddr{IP: net.ParseIP(ip), Port: port})
	require.NoError(t, err)
	return l
}

func roundTripList(t *testing.T, l *plist.List) *plist.List {
	t.Helper()
	w := cdr.NewWriter(cdr.LittleEndian, 0)
	plist.Encode(w, l)
	r := cdr.NewReader(w.Bytes(), cdr.LittleEndian, 0)
	got, err := plist.Decode(r)
	require.NoError(t, err)
	return got
}

func TestParticipantProxyDataRoundTrip(t *testing.T) {
	p := ParticipantProxyData{
		GUID:                       guid.GUID{Prefix: guid.Prefix{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, EntityID: guid.EntityIDParticipant},
		MetatrafficUnicastLocators: []locator.Locator{mustLocator(t, "10.0.0.1", 7410)},
		LeaseDuration:              20 * time.Second,
		UserData:                   []byte("app"),
	}
	decoded, ok := DecodeParticipantProxyData(roundTripList(t, p.Encode()))
	require.True(t, ok)
	assert.Equal(t, p.GUID, decoded.GUID)
	assert.Equal(t, p.LeaseDuration, decoded.LeaseDuration)
	require.Len(t, decoded.MetatrafficUnicastLocators, 1)
	assert.True(t, p.MetatrafficUnicastLocators[0].Equal(decoded.MetatrafficUnicastLocators[0]))
	assert.Equal(t, p.UserData, decoded.UserData)
}

func TestWriterProxyDataRoundTrip(t *testing.T) {
	w := WriterProxyData{
		GUID:            guid.GUID{Prefix: guid.Prefix{1}, EntityID: guid.EntityID{0, 0, 1, byte(guid.KindWriterWithKey)}},
		TopicName:       "square",
		TypeName:        "ShapeType",
		QoS:             qos.DefaultWriterQoS(),
		UnicastLocators: []locator.Locator{mustLocator(t, "10.0.0.2", 7411)},
	}
	decoded, ok := DecodeWriterProxyData(roundTripList(t, w.Encode()))
	require.True(t, ok)
	assert.Equal(t, w.GUID, decoded.GUID)
	assert.Equal(t, w.TopicName, decoded.TopicName)
	assert.Equal(t, w.TypeName, decoded.TypeName)
	require.Len(t, decoded.UnicastLocators, 1)
	assert.True(t, w.UnicastLocators[0].Equal(decoded.UnicastLocators[0]))
}

func TestReaderProxyDataRoundTrip(t *testing.T) {
	r := ReaderProxyData{
		GUID:      guid.GUID{Prefix: guid.Prefix{1}, EntityID: guid.EntityID{0, 0, 1, byte(guid.KindReaderWithKey)}},
		TopicName: "square",
		TypeName:  "ShapeType",
		QoS:       qos.DefaultReaderQoS(),
	}
	decoded, ok := DecodeReaderProxyData(roundTripList(t, r.Encode()))
	require.True(t, ok)
	assert.Equal(t, r.GUID, decoded.GUID)
	assert.Equal(t, r.TopicName, decoded.TopicName)
}

func TestDecodeParticipantProxyDataMissingGUIDFails(t *testing.T) {
	_, ok := DecodeParticipantProxyData(&plist.List{})
	assert.False(t, ok)
}
