package sonos

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/strefethen/sonos-broker-go/internal/sonos/events"
	"github.com/strefethen/sonos-broker-go/internal/sonos/soap"
	"github.com/strefethen/sonos-broker-go/internal/speaker"
	"github.com/stretchr/testify/require"
)

type fakePlayer struct {
	mu      sync.Mutex
	actions []string
	bodies  map[string]string
	replies map[string]string
	files   map[string]string
}

func (p *fakePlayer) calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.actions...)
}

func (p *fakePlayer) body(action string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bodies[action]
}

func newFakePlayer(t *testing.T, replies map[string]string) (*fakePlayer, string) {
	t.Helper()
	p := &fakePlayer{bodies: map[string]string{}, replies: replies, files: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.Trim(r.Header.Get("SOAPACTION"), "\"")
		if header == "" {
			p.mu.Lock()
			body, ok := p.files[r.URL.Path]
			p.actions = append(p.actions, "GET "+r.URL.RequestURI())
			p.mu.Unlock()
			if !ok {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(body))
			return
		}
		action := header[strings.Index(header, "#")+1:]
		raw, _ := io.ReadAll(r.Body)
		p.mu.Lock()
		p.actions = append(p.actions, action)
		p.bodies[action] = string(raw)
		inner := p.replies[action]
		p.mu.Unlock()
		_, _ = w.Write([]byte(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><u:` + action +
			`Response xmlns:u="urn:x">` + inner + `</u:` + action + `Response></s:Body></s:Envelope>`))
	}))
	t.Cleanup(srv.Close)
	return p, strings.TrimPrefix(srv.URL, "http://")
}

func newTestDevice(host string) *Device {
	client := soap.NewClient(2 * time.Second)
	return NewDevice("rincon_a", host, client, NewZoneGroupCache(time.Minute), nil, nil)
}

func TestGetPropertyRenderingValues(t *testing.T) {
	_, host := newFakePlayer(t, map[string]string{
		"GetVolume":   "<CurrentVolume>80</CurrentVolume>",
		"GetEQ":       "<CurrentValue>1</CurrentValue>",
		"GetLEDState": "<CurrentLEDState>Off</CurrentLEDState>",
	})
	d := newTestDevice(host)
	ctx := context.Background()

	v, err := d.GetProperty(ctx, speaker.PropVolume)
	require.NoError(t, err)
	require.Equal(t, 80, v)

	v, err = d.GetProperty(ctx, speaker.PropNightMode)
	require.NoError(t, err)
	require.Equal(t, true, v)

	v, err = d.GetProperty(ctx, speaker.PropLED)
	require.NoError(t, err)
	require.Equal(t, false, v)

	// Both channels report 80.
	v, err = d.GetProperty(ctx, speaker.PropBalance)
	require.NoError(t, err)
	require.Equal(t, 0, v)
}

func TestGetPropertyTransportFlags(t *testing.T) {
	_, host := newFakePlayer(t, map[string]string{
		"GetTransportInfo": "<CurrentTransportState>PAUSED_PLAYBACK</CurrentTransportState>",
	})
	d := newTestDevice(host)
	ctx := context.Background()

	pause, err := d.GetProperty(ctx, speaker.PropPause)
	require.NoError(t, err)
	require.Equal(t, true, pause)

	play, err := d.GetProperty(ctx, speaker.PropPlay)
	require.NoError(t, err)
	require.Equal(t, false, play)
}

func TestGetPropertyTrackFields(t *testing.T) {
	didl := `&lt;DIDL-Lite xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/"&gt;&lt;item id="-1"&gt;` +
		`&lt;dc:title&gt;Song&lt;/dc:title&gt;&lt;dc:creator&gt;Band&lt;/dc:creator&gt;&lt;upnp:albumArtURI&gt;/getaa?u=x&lt;/upnp:albumArtURI&gt;&lt;/item&gt;&lt;/DIDL-Lite&gt;`
	_, host := newFakePlayer(t, map[string]string{
		"GetPositionInfo": "<Track>2</Track><TrackURI>x-file-cifs://nas/a.flac</TrackURI><TrackMetaData>" + didl + "</TrackMetaData><RelTime>0:01:00</RelTime>",
		"GetMediaInfo":    "<NrTracks>9</NrTracks><CurrentURI>x-rincon-queue:RINCON_A#0</CurrentURI>",
	})
	d := newTestDevice(host)
	ctx := context.Background()

	title, err := d.GetProperty(ctx, speaker.PropTrackTitle)
	require.NoError(t, err)
	require.Equal(t, "Song", title)

	art, err := d.GetProperty(ctx, speaker.PropTrackAlbumArt)
	require.NoError(t, err)
	require.Equal(t, "http://"+host+"/getaa?u=x", art)

	stream, err := d.GetProperty(ctx, speaker.PropStreamType)
	require.NoError(t, err)
	require.Equal(t, StreamMusic, stream)

	total, err := d.GetProperty(ctx, speaker.PropPlaylistTotalTracks)
	require.NoError(t, err)
	require.Equal(t, 9, total)
}

func TestGetPropertyUnknown(t *testing.T) {
	d := newTestDevice("127.0.0.1:1")
	_, err := d.GetProperty(context.Background(), speaker.PropMaxVolume)
	require.True(t, errors.Is(err, speaker.ErrUnknownProperty))
}

func TestSetPropertyTransportCommands(t *testing.T) {
	tests := []struct {
		prop   speaker.Property
		value  bool
		action string
	}{
		{speaker.PropPlay, true, "Play"},
		{speaker.PropPlay, false, "Pause"},
		{speaker.PropPause, true, "Pause"},
		{speaker.PropPause, false, "Play"},
		{speaker.PropStop, true, "Stop"},
		{speaker.PropStop, false, "Play"},
	}
	for _, tt := range tests {
		player, host := newFakePlayer(t, nil)
		d := newTestDevice(host)
		require.NoError(t, d.SetProperty(context.Background(), tt.prop, tt.value))
		require.Equal(t, []string{tt.action}, player.calls(), "%s=%v", tt.prop, tt.value)
	}
}

func TestSetPropertyBalance(t *testing.T) {
	player, host := newFakePlayer(t, nil)
	d := newTestDevice(host)

	require.NoError(t, d.SetProperty(context.Background(), speaker.PropBalance, -30))
	require.Equal(t, []string{"SetVolume", "SetVolume"}, player.calls())
	require.Contains(t, player.body("SetVolume"), "<Channel>RF</Channel><DesiredVolume>70</DesiredVolume>")
}

func TestSetPropertyReadOnly(t *testing.T) {
	d := newTestDevice("127.0.0.1:1")
	err := d.SetProperty(context.Background(), speaker.PropTrackTitle, "x")
	require.True(t, errors.Is(err, speaker.ErrReadOnly))
}

func TestBalanceChannels(t *testing.T) {
	for _, b := range []int{-100, -40, 0, 25, 100} {
		left, right := channelsFromBalance(b)
		require.Equal(t, b, balanceFromChannels(left, right))
	}
}

func TestGroupFromTopology(t *testing.T) {
	state := `<ZoneGroupState>&lt;ZoneGroupState&gt;&lt;ZoneGroups&gt;` +
		`&lt;ZoneGroup Coordinator="RINCON_B" ID="RINCON_B:4"&gt;` +
		`&lt;ZoneGroupMember UUID="RINCON_B" ZoneName="Den"/&gt;` +
		`&lt;ZoneGroupMember UUID="RINCON_A" ZoneName="Kitchen"/&gt;` +
		`&lt;ZoneGroupMember UUID="RINCON_P" ZoneName="Kitchen" Invisible="1"/&gt;` +
		`&lt;/ZoneGroup&gt;&lt;/ZoneGroups&gt;&lt;/ZoneGroupState&gt;</ZoneGroupState>`
	player, host := newFakePlayer(t, map[string]string{"GetZoneGroupState": state})
	d := newTestDevice(host)

	group, err := d.Group(context.Background())
	require.NoError(t, err)
	require.Equal(t, "RINCON_B:4", group.ID)
	require.Equal(t, []speaker.GroupMember{
		{UID: "RINCON_B", IsCoordinator: true},
		{UID: "RINCON_A"},
	}, group.Members)

	// The second lookup is served from the shared cache.
	_, err = d.Group(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"GetZoneGroupState"}, player.calls())
}

func TestJoinUsesPlayerID(t *testing.T) {
	player, host := newFakePlayer(t, nil)
	d := newTestDevice(host)

	require.NoError(t, d.Join(context.Background(), "rincon_b"))
	require.Contains(t, player.body("SetAVTransportURI"), "<CurrentURI>x-rincon:RINCON_B</CurrentURI>")
}

func TestSnapshotAndRestoreQueue(t *testing.T) {
	player, host := newFakePlayer(t, map[string]string{
		"GetMediaInfo":         "<CurrentURI>x-rincon-queue:RINCON_A#0</CurrentURI>",
		"GetPositionInfo":      "<Track>4</Track><RelTime>0:02:10</RelTime>",
		"GetTransportInfo":     "<CurrentTransportState>PLAYING</CurrentTransportState>",
		"GetTransportSettings": "<PlayMode>SHUFFLE</PlayMode>",
		"GetVolume":            "<CurrentVolume>25</CurrentVolume>",
		"GetMute":              "<CurrentMute>0</CurrentMute>",
	})
	d := newTestDevice(host)
	ctx := context.Background()

	snap, err := d.Snapshot(ctx)
	require.NoError(t, err)
	require.True(t, snap.IsQueue)
	require.Equal(t, 4, snap.Track)
	require.Equal(t, 25, snap.Volume)

	player.mu.Lock()
	player.actions = nil
	player.mu.Unlock()

	require.NoError(t, d.Restore(ctx, snap))
	require.Equal(t, []string{"SetAVTransportURI", "SetPlayMode", "Seek", "Seek", "SetMute", "Play"}, player.calls())
	require.Contains(t, player.body("Seek"), "<Unit>REL_TIME</Unit><Target>0:02:10</Target>")
}

func TestLoadPlaylist(t *testing.T) {
	didl := `&lt;DIDL-Lite xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/"&gt;` +
		`&lt;container id="SQ:3" parentID="SQ:"&gt;&lt;dc:title&gt;Morning&lt;/dc:title&gt;&lt;res&gt;file:///jffs/settings/savedqueues.rsq#3&lt;/res&gt;&lt;/container&gt;&lt;/DIDL-Lite&gt;`
	player, host := newFakePlayer(t, map[string]string{
		"Browse":        "<Result>" + didl + "</Result><NumberReturned>1</NumberReturned><TotalMatches>1</TotalMatches>",
		"AddURIToQueue": "<FirstTrackNumberEnqueued>5</FirstTrackNumberEnqueued>",
	})
	d := newTestDevice(host)
	ctx := context.Background()

	require.NoError(t, d.LoadPlaylist(ctx, "Morning", true))
	require.Equal(t, []string{"Browse", "RemoveAllTracksFromQueue", "AddURIToQueue", "SetAVTransportURI", "Seek"}, player.calls())
	require.Contains(t, player.body("SetAVTransportURI"), "x-rincon-queue:RINCON_A#0")
	require.Contains(t, player.body("Seek"), "<Target>5</Target>")

	err := d.LoadPlaylist(ctx, "Evening", false)
	require.True(t, errors.Is(err, ErrPlaylistNotFound))
}

func TestQueueCommands(t *testing.T) {
	player, host := newFakePlayer(t, map[string]string{
		"AddURIToQueue": "<FirstTrackNumberEnqueued>3</FirstTrackNumberEnqueued>",
	})
	d := newTestDevice(host)
	ctx := context.Background()

	require.NoError(t, d.ClearQueue(ctx))
	require.NoError(t, d.AddToQueue(ctx, "x-file-cifs://nas/music/track.mp3"))
	require.Equal(t, []string{"RemoveAllTracksFromQueue", "AddURIToQueue"}, player.calls())
	require.Contains(t, player.body("AddURIToQueue"), "<EnqueuedURI>x-file-cifs://nas/music/track.mp3</EnqueuedURI>")
}

func TestWifiState(t *testing.T) {
	player, host := newFakePlayer(t, nil)
	player.files[soap.IfconfigPath] = "ath0  Link encap:Ethernet"
	player.files[soap.WifiControlPath] = "ok"
	d := newTestDevice(host)
	ctx := context.Background()

	on, err := d.GetProperty(ctx, speaker.PropWifiState)
	require.NoError(t, err)
	require.Equal(t, true, on)

	require.NoError(t, d.SetProperty(ctx, speaker.PropWifiState, false))
	require.Contains(t, player.calls(), "GET /wifictrl?wifi=off")
}

func TestDecodeAVTransport(t *testing.T) {
	d := newTestDevice("10.0.0.2")
	didl := `<DIDL-Lite xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:r="urn:schemas-rinconnetworks-com:metadata-1-0/"><item id="-1">` +
		`<r:streamContent>Artist - Tune</r:streamContent></item></DIDL-Lite>`
	station := `<DIDL-Lite xmlns:dc="http://purl.org/dc/elements/1.1/"><item id="R:0"><dc:title>Jazz FM</dc:title></item></DIDL-Lite>`

	ev := d.decode(speaker.CategoryAVTransport, events.Notification{
		SID: "uuid:sub-1",
		Seq: 3,
		Properties: map[string]string{
			"TransportState":               "PLAYING",
			"CurrentTrack":                 "1",
			"CurrentTrackURI":              "x-sonosapi-stream:s1234",
			"AVTransportURI":               "x-sonosapi-stream:s1234",
			"CurrentTrackMetaData":         didl,
			"EnqueuedTransportURIMetaData": station,
		},
	})

	require.Equal(t, "rincon_a", ev.UID)
	require.Equal(t, "PLAYING", ev.TransportState)
	require.Equal(t, "1", ev.Values[speaker.PropPlaylistPosition])
	require.Equal(t, "Tune", ev.Values[speaker.PropTrackTitle])
	require.Equal(t, "Artist", ev.Values[speaker.PropTrackArtist])
	require.Equal(t, "Jazz FM", ev.Values[speaker.PropRadioStation])
	require.Equal(t, StreamRadio, ev.Values[speaker.PropStreamType])
}

func TestDecodeRenderingAndTopology(t *testing.T) {
	d := newTestDevice("10.0.0.2")
	d.zones.Set(&soap.ZoneGroupState{})

	ev := d.decode(speaker.CategoryRenderingControl, events.Notification{Properties: map[string]string{
		"Volume/Master": "31",
		"Volume/LF":     "100",
		"Volume/RF":     "60",
		"Mute/Master":   "1",
	}})
	require.Equal(t, "31", ev.Values[speaker.PropVolume])
	require.Equal(t, "1", ev.Values[speaker.PropMute])
	require.Equal(t, -40, ev.Values[speaker.PropBalance])

	ev = d.decode(speaker.CategoryZoneTopology, events.Notification{Properties: map[string]string{"ZoneGroupState": "<x/>"}})
	require.Empty(t, ev.Values)
	require.Nil(t, d.zones.Get())
}
