package events

import (
	"html"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func propertySet(vars string) []byte {
	return []byte(`<?xml version="1.0"?><e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0">` + vars + `</e:propertyset>`)
}

func lastChange(inner string) string {
	return `<e:property><LastChange>` + html.EscapeString(`<Event xmlns="urn:schemas-upnp-org:metadata-1-0/AVT/"><InstanceID val="0">`+inner+`</InstanceID></Event>`) + `</LastChange></e:property>`
}

func TestParseNotifyBodyAVTransport(t *testing.T) {
	didl := `<DIDL-Lite><item id="-1"><dc:title>Song</dc:title></item></DIDL-Lite>`
	body := propertySet(lastChange(
		`<TransportState val="PLAYING"/>` +
			`<CurrentPlayMode val="SHUFFLE"/>` +
			`<CurrentTrackURI val="x-file-cifs://nas/a.flac"/>` +
			`<CurrentTrackMetaData val="` + html.EscapeString(didl) + `"/>` +
			`<r:EnqueuedTransportURIMetaData xmlns:r="urn:schemas-rinconnetworks-com:metadata-1-0/" val=""/>`,
	))

	props, err := ParseNotifyBody(body)
	require.NoError(t, err)
	require.Equal(t, "PLAYING", props["TransportState"])
	require.Equal(t, "SHUFFLE", props["CurrentPlayMode"])
	require.Equal(t, "x-file-cifs://nas/a.flac", props["CurrentTrackURI"])
	require.Equal(t, didl, props["CurrentTrackMetaData"])
	v, ok := props["EnqueuedTransportURIMetaData"]
	require.True(t, ok)
	require.Empty(t, v)
}

func TestParseNotifyBodyChannels(t *testing.T) {
	body := propertySet(lastChange(
		`<Volume channel="Master" val="31"/><Volume channel="LF" val="100"/><Volume channel="RF" val="80"/>` +
			`<Mute channel="Master" val="0"/><Bass val="-2"/><Loudness channel="Master" val="1"/>`,
	))

	props, err := ParseNotifyBody(body)
	require.NoError(t, err)
	require.Equal(t, "31", props["Volume/Master"])
	require.Equal(t, "100", props["Volume/LF"])
	require.Equal(t, "80", props["Volume/RF"])
	require.Equal(t, "0", props["Mute/Master"])
	require.Equal(t, "-2", props["Bass"])
	require.Equal(t, "1", props["Loudness/Master"])
}

func TestParseNotifyBodyPlainVariables(t *testing.T) {
	state := `<ZoneGroupState><ZoneGroups><ZoneGroup Coordinator="RINCON_A" ID="g"/></ZoneGroups></ZoneGroupState>`
	body := propertySet(
		`<e:property><ZoneGroupState>` + html.EscapeString(state) + `</ZoneGroupState></e:property>` +
			`<e:property><AlarmListVersion>RINCON_A:12</AlarmListVersion></e:property>`,
	)

	props, err := ParseNotifyBody(body)
	require.NoError(t, err)
	require.Equal(t, state, props["ZoneGroupState"])
	require.Equal(t, "RINCON_A:12", props["AlarmListVersion"])
}

func TestParseNotifyBodyMalformed(t *testing.T) {
	_, err := ParseNotifyBody([]byte(`<e:propertyset><e:property>`))
	require.Error(t, err)
}

func TestParseHeaders(t *testing.T) {
	require.Equal(t, 30*time.Minute, ParseTimeout("Second-1800"))
	require.Equal(t, infiniteTimeout, ParseTimeout("Second-infinite"))
	require.Equal(t, DefaultTimeout, ParseTimeout("garbage"))
	require.Equal(t, 7, ParseSEQ("7"))
	require.Equal(t, 0, ParseSEQ(""))
	require.Equal(t, "uuid:RINCON_1_sub1", ParseSID(" uuid:RINCON_1_sub1 "))
}
