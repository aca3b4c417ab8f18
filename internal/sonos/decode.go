package sonos

import (
	"strconv"
	"strings"

	"github.com/strefethen/sonos-broker-go/internal/sonos/events"
	"github.com/strefethen/sonos-broker-go/internal/speaker"
)

// eventValue maps an evented variable straight to a mirrored property.
type eventValue struct {
	variable string
	prop     speaker.Property
}

var avTransportValues = []eventValue{
	{"CurrentPlayMode", speaker.PropPlayMode},
	{"CurrentTrack", speaker.PropPlaylistPosition},
	{"NumberOfTracks", speaker.PropPlaylistTotalTracks},
	{"CurrentTrackDuration", speaker.PropTrackDuration},
	{"CurrentTransportActions", speaker.PropTransportActions},
	{"CurrentTrackURI", speaker.PropTrackURI},
}

var renderingValues = []eventValue{
	{"Volume/Master", speaker.PropVolume},
	{"Mute/Master", speaker.PropMute},
	{"Bass", speaker.PropBass},
	{"Treble", speaker.PropTreble},
	{"Loudness/Master", speaker.PropLoudness},
	{"NightMode", speaker.PropNightMode},
}

var devicePropertyValues = []eventValue{
	{"ZoneName", speaker.PropZoneName},
}

// decode turns a notification into a speaker event. Values stay strings and
// are normalized by the mirror.
func (d *Device) decode(category speaker.Category, n events.Notification) speaker.Event {
	ev := speaker.Event{
		UID:      d.uid,
		Category: category,
		SID:      n.SID,
		Seq:      n.Seq,
		Values:   make(map[speaker.Property]any),
	}
	props := n.Properties

	switch category {
	case speaker.CategoryAVTransport:
		ev.TransportState = props["TransportState"]
		copyValues(ev.Values, props, avTransportValues)
		if _, ok := props["CurrentTrackMetaData"]; ok {
			transportMeta := firstNonEmpty(props["EnqueuedTransportURIMetaData"], props["AVTransportURIMetaData"])
			track := ResolveTrack(d.host, props["CurrentTrackURI"], props["CurrentTrackMetaData"], props["AVTransportURI"], transportMeta)
			for _, p := range []speaker.Property{
				speaker.PropTrackTitle, speaker.PropTrackArtist, speaker.PropTrackAlbum, speaker.PropTrackAlbumArt,
				speaker.PropRadioStation, speaker.PropRadioShow, speaker.PropStreamType,
			} {
				ev.Values[p] = trackValue(track, p)
			}
		}
	case speaker.CategoryRenderingControl:
		copyValues(ev.Values, props, renderingValues)
		left, okLeft := props["Volume/LF"]
		right, okRight := props["Volume/RF"]
		if okLeft && okRight {
			l, errL := strconv.Atoi(left)
			r, errR := strconv.Atoi(right)
			if errL == nil && errR == nil {
				ev.Values[speaker.PropBalance] = balanceFromChannels(l, r)
			}
		}
	case speaker.CategoryDeviceProperties:
		copyValues(ev.Values, props, devicePropertyValues)
		if icon, ok := props["Icon"]; ok {
			ev.Values[speaker.PropZoneIcon] = strings.TrimPrefix(icon, roomIconPrefix)
		}
	case speaker.CategoryZoneTopology:
		d.zones.Invalidate()
	}
	return ev
}

func copyValues(dst map[speaker.Property]any, props map[string]string, mapping []eventValue) {
	for _, m := range mapping {
		if v, ok := props[m.variable]; ok {
			dst[m.prop] = v
		}
	}
}
