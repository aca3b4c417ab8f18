// Package sonos implements the Device Gateway for Sonos players over
// UPnP/SOAP control and GENA eventing.
package sonos

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/strefethen/sonos-broker-go/internal/discovery"
	"github.com/strefethen/sonos-broker-go/internal/sonos/events"
	"github.com/strefethen/sonos-broker-go/internal/sonos/soap"
	"github.com/strefethen/sonos-broker-go/internal/speaker"
)

const (
	rampType       = "SLEEP_TIMER_RAMP_TYPE"
	nightModeEQ    = "NightMode"
	roomIconPrefix = "x-rincon-roomicon:"
	queuePrefix    = "x-rincon-queue:"
	groupPrefix    = "x-rincon:"
)

// ErrPlaylistNotFound is returned by LoadPlaylist for an unknown playlist name.
var ErrPlaylistNotFound = errors.New("sonos playlist not found")

var categoryServices = map[speaker.Category]soap.Service{
	speaker.CategoryAVTransport:      soap.ServiceAVTransport,
	speaker.CategoryRenderingControl: soap.ServiceRenderingControl,
	speaker.CategoryZoneTopology:     soap.ServiceZoneGroupTopology,
	speaker.CategoryAlarmClock:       soap.ServiceAlarmClock,
	speaker.CategoryDeviceProperties: soap.ServiceDeviceProperties,
}

// Device talks to one Sonos player.
type Device struct {
	uid        string
	host       string
	client     *soap.Client
	zones      *ZoneGroupCache
	subscriber *events.Subscriber
	logger     *log.Logger
}

// NewDevice creates the gateway for the player uid reachable at host.
// zones is shared by every device of the household.
func NewDevice(uid, host string, client *soap.Client, zones *ZoneGroupCache, subscriber *events.Subscriber, logger *log.Logger) *Device {
	if logger == nil {
		logger = log.Default()
	}
	return &Device{
		uid:        uid,
		host:       host,
		client:     client,
		zones:      zones,
		subscriber: subscriber,
		logger:     logger,
	}
}

func (d *Device) UID() string  { return d.uid }
func (d *Device) Host() string { return d.host }

// Ping fetches the device description.
func (d *Device) Ping(ctx context.Context) error {
	_, err := d.client.Fetch(ctx, d.host, soap.DescriptionPath)
	return err
}

// Info collects the static identity of the player.
func (d *Device) Info(ctx context.Context) (speaker.Info, error) {
	payload, err := d.client.Fetch(ctx, d.host, soap.DescriptionPath)
	if err != nil {
		return speaker.Info{}, err
	}
	desc, err := discovery.ParseDeviceDescription(payload)
	if err != nil {
		return speaker.Info{}, err
	}
	info := speaker.Info{
		UID:             d.uid,
		IP:              d.host,
		ZoneName:        desc.RoomName,
		Model:           desc.ModelName,
		ModelNumber:     desc.ModelNumber,
		SerialNumber:    desc.SerialNumber,
		SoftwareVersion: desc.SoftwareVersion,
		HardwareVersion: desc.HardwareVersion,
	}

	zone, err := d.client.GetZoneInfo(ctx, d.host)
	if err != nil {
		return speaker.Info{}, err
	}
	info.DisplayVersion = zone.DisplayVersion
	info.MACAddress = zone.MACAddress
	if zone.IPAddress != "" {
		info.IP = zone.IPAddress
	}
	if info.SerialNumber == "" {
		info.SerialNumber = zone.SerialNumber
	}

	attrs, err := d.client.GetZoneAttributes(ctx, d.host)
	if err != nil {
		return speaker.Info{}, err
	}
	if attrs.CurrentZoneName != "" {
		info.ZoneName = attrs.CurrentZoneName
	}
	info.ZoneIcon = strings.TrimPrefix(attrs.CurrentIcon, roomIconPrefix)

	if info.HouseholdID, err = d.client.GetHouseholdID(ctx, d.host); err != nil {
		return speaker.Info{}, err
	}
	return info, nil
}

// GetProperty reads one property from the player.
func (d *Device) GetProperty(ctx context.Context, p speaker.Property) (any, error) {
	switch p {
	case speaker.PropTrackPosition, speaker.PropTrackURI, speaker.PropTrackDuration, speaker.PropPlaylistPosition:
		pos, err := d.client.GetPositionInfo(ctx, d.host)
		if err != nil {
			return nil, err
		}
		switch p {
		case speaker.PropTrackPosition:
			return pos.RelTime, nil
		case speaker.PropTrackURI:
			return pos.TrackURI, nil
		case speaker.PropTrackDuration:
			return pos.TrackDuration, nil
		default:
			return pos.Track, nil
		}
	case speaker.PropTrackTitle, speaker.PropTrackArtist, speaker.PropTrackAlbum, speaker.PropTrackAlbumArt,
		speaker.PropRadioStation, speaker.PropRadioShow, speaker.PropStreamType:
		track, err := d.currentTrack(ctx)
		if err != nil {
			return nil, err
		}
		return trackValue(track, p), nil
	case speaker.PropPlaylistTotalTracks:
		media, err := d.client.GetMediaInfo(ctx, d.host)
		if err != nil {
			return nil, err
		}
		return media.NrTracks, nil
	case speaker.PropTransportActions:
		return d.client.GetCurrentTransportActions(ctx, d.host)
	case speaker.PropPlay, speaker.PropPause, speaker.PropStop:
		ti, err := d.client.GetTransportInfo(ctx, d.host)
		if err != nil {
			return nil, err
		}
		play, pause, stop := transportFlags(ti.CurrentTransportState)
		return map[speaker.Property]bool{speaker.PropPlay: play, speaker.PropPause: pause, speaker.PropStop: stop}[p], nil
	case speaker.PropPlayMode:
		ts, err := d.client.GetTransportSettings(ctx, d.host)
		if err != nil {
			return nil, err
		}
		return ts.PlayMode, nil
	case speaker.PropZoneName, speaker.PropZoneIcon:
		attrs, err := d.client.GetZoneAttributes(ctx, d.host)
		if err != nil {
			return nil, err
		}
		if p == speaker.PropZoneName {
			return attrs.CurrentZoneName, nil
		}
		return strings.TrimPrefix(attrs.CurrentIcon, roomIconPrefix), nil
	case speaker.PropMute:
		return d.client.GetMute(ctx, d.host)
	case speaker.PropNightMode:
		v, err := d.client.GetEQ(ctx, d.host, nightModeEQ)
		return v != 0, err
	case speaker.PropLED:
		return d.client.GetLEDState(ctx, d.host)
	case speaker.PropVolume:
		return d.client.GetVolume(ctx, d.host, soap.ChannelMaster)
	case speaker.PropBass:
		return d.client.GetBass(ctx, d.host)
	case speaker.PropTreble:
		return d.client.GetTreble(ctx, d.host)
	case speaker.PropLoudness:
		return d.client.GetLoudness(ctx, d.host)
	case speaker.PropBalance:
		left, err := d.client.GetVolume(ctx, d.host, soap.ChannelLeft)
		if err != nil {
			return nil, err
		}
		right, err := d.client.GetVolume(ctx, d.host, soap.ChannelRight)
		if err != nil {
			return nil, err
		}
		return balanceFromChannels(left, right), nil
	case speaker.PropWifiState:
		payload, err := d.client.Fetch(ctx, d.host, soap.IfconfigPath)
		if err != nil {
			return nil, err
		}
		return strings.Contains(string(payload), "ath0"), nil
	case speaker.PropAlarms:
		list, err := d.client.ListAlarms(ctx, d.host)
		if err != nil {
			return nil, err
		}
		return alarmMap(list, d.uid), nil
	case speaker.PropSonosPlaylists:
		items, err := d.client.SavedQueues(ctx, d.host)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(items))
		for _, item := range items {
			names = append(names, item.Title)
		}
		return strings.Join(names, ","), nil
	case speaker.PropHouseholdID:
		return d.client.GetHouseholdID(ctx, d.host)
	case speaker.PropIP:
		return d.host, nil
	}
	return nil, fmt.Errorf("%w: %s is not readable from the device", speaker.ErrUnknownProperty, p)
}

// SetProperty actuates one property on the player.
func (d *Device) SetProperty(ctx context.Context, p speaker.Property, value any) error {
	switch p {
	case speaker.PropPlay, speaker.PropPause, speaker.PropStop:
		on, _ := value.(bool)
		switch transportCommand(p, on) {
		case speaker.PropStop:
			return d.client.Stop(ctx, d.host)
		case speaker.PropPause:
			return d.client.Pause(ctx, d.host)
		default:
			return d.client.Play(ctx, d.host)
		}
	case speaker.PropTrackPosition:
		return d.client.Seek(ctx, d.host, "REL_TIME", asString(value))
	case speaker.PropPlayMode:
		return d.client.SetPlayMode(ctx, d.host, strings.ToUpper(asString(value)))
	case speaker.PropMute:
		return d.client.SetMute(ctx, d.host, asBool(value))
	case speaker.PropNightMode:
		n := 0
		if asBool(value) {
			n = 1
		}
		return d.client.SetEQ(ctx, d.host, nightModeEQ, n)
	case speaker.PropLED:
		return d.client.SetLEDState(ctx, d.host, asBool(value))
	case speaker.PropVolume:
		return d.client.SetVolume(ctx, d.host, soap.ChannelMaster, asInt(value))
	case speaker.PropBass:
		return d.client.SetBass(ctx, d.host, asInt(value))
	case speaker.PropTreble:
		return d.client.SetTreble(ctx, d.host, asInt(value))
	case speaker.PropLoudness:
		return d.client.SetLoudness(ctx, d.host, asBool(value))
	case speaker.PropBalance:
		left, right := channelsFromBalance(asInt(value))
		if err := d.client.SetVolume(ctx, d.host, soap.ChannelLeft, left); err != nil {
			return err
		}
		return d.client.SetVolume(ctx, d.host, soap.ChannelRight, right)
	case speaker.PropWifiState:
		state := "off"
		if asBool(value) {
			state = "on"
		}
		_, err := d.client.Fetch(ctx, d.host, soap.WifiControlPath+"?wifi="+state)
		return err
	}
	return fmt.Errorf("%w: %s cannot be set on the device", speaker.ErrReadOnly, p)
}

// Group reports the zone of the player from the shared topology cache.
func (d *Device) Group(ctx context.Context) (*speaker.Group, error) {
	state, err := d.zones.GetOrFetch(ctx, func(ctx context.Context) (soap.ZoneGroupState, error) {
		return d.client.GetZoneGroupState(ctx, d.host)
	})
	if err != nil {
		return nil, err
	}
	zg, ok := state.GroupOf(playerID(d.uid))
	if !ok {
		return nil, nil
	}
	group := &speaker.Group{ID: zg.ID}
	for _, m := range zg.Members {
		if !m.IsVisible {
			continue
		}
		group.Members = append(group.Members, speaker.GroupMember{UID: m.UUID, IsCoordinator: m.IsCoordinator})
	}
	return group, nil
}

// Subscribe opens a lease for one event category. Decoded events are sent to sink.
func (d *Device) Subscribe(ctx context.Context, category speaker.Category, timeout time.Duration, sink chan<- speaker.Event) (speaker.Lease, error) {
	service, ok := categoryServices[category]
	if !ok {
		return nil, fmt.Errorf("unknown event category %q", category)
	}
	lease, err := d.subscriber.Subscribe(ctx, d.host, service, timeout, func(ctx context.Context, n events.Notification) {
		ev := d.decode(category, n)
		select {
		case sink <- ev:
		case <-ctx.Done():
			d.logger.Printf("UPNP: dropped %s event of %s: %v", category, d.uid, ctx.Err())
		}
	})
	if err != nil {
		return nil, err
	}
	return lease, nil
}

// Snapshot captures what the player is doing so it can be restored later.
func (d *Device) Snapshot(ctx context.Context) (*speaker.Snapshot, error) {
	media, err := d.client.GetMediaInfo(ctx, d.host)
	if err != nil {
		return nil, err
	}
	pos, err := d.client.GetPositionInfo(ctx, d.host)
	if err != nil {
		return nil, err
	}
	ti, err := d.client.GetTransportInfo(ctx, d.host)
	if err != nil {
		return nil, err
	}
	ts, err := d.client.GetTransportSettings(ctx, d.host)
	if err != nil {
		return nil, err
	}
	volume, err := d.client.GetVolume(ctx, d.host, soap.ChannelMaster)
	if err != nil {
		return nil, err
	}
	mute, err := d.client.GetMute(ctx, d.host)
	if err != nil {
		return nil, err
	}
	return &speaker.Snapshot{
		URI:            media.CurrentURI,
		Metadata:       media.CurrentURIMetaData,
		IsQueue:        strings.HasPrefix(media.CurrentURI, queuePrefix),
		Track:          pos.Track,
		Position:       pos.RelTime,
		TransportState: ti.CurrentTransportState,
		PlayMode:       ts.PlayMode,
		Volume:         volume,
		Mute:           mute,
	}, nil
}

// Restore puts back the source, position and transport state of a snapshot.
// Volume is left to the caller.
func (d *Device) Restore(ctx context.Context, snap *speaker.Snapshot) error {
	if snap == nil {
		return nil
	}
	if snap.URI != "" {
		if err := d.client.SetAVTransportURI(ctx, d.host, snap.URI, snap.Metadata); err != nil {
			return err
		}
	}
	if snap.IsQueue {
		if snap.PlayMode != "" {
			if err := d.client.SetPlayMode(ctx, d.host, snap.PlayMode); err != nil {
				return err
			}
		}
		if snap.Track > 0 {
			if err := d.client.Seek(ctx, d.host, "TRACK_NR", strconv.Itoa(snap.Track)); err != nil {
				return err
			}
		}
		if snap.Position != "" && snap.Position != "NOT_IMPLEMENTED" {
			if err := d.client.Seek(ctx, d.host, "REL_TIME", snap.Position); err != nil {
				return err
			}
		}
	}
	if err := d.client.SetMute(ctx, d.host, snap.Mute); err != nil {
		return err
	}
	if snap.TransportState == speaker.TransportPlaying && snap.URI != "" {
		return d.client.Play(ctx, d.host)
	}
	return nil
}

// PlayURI replaces the current source with uri and starts it.
func (d *Device) PlayURI(ctx context.Context, uri string) error {
	if err := d.client.SetAVTransportURI(ctx, d.host, uri, ""); err != nil {
		return err
	}
	return d.client.Play(ctx, d.host)
}

func (d *Device) Stop(ctx context.Context) error     { return d.client.Stop(ctx, d.host) }
func (d *Device) Next(ctx context.Context) error     { return d.client.Next(ctx, d.host) }
func (d *Device) Previous(ctx context.Context) error { return d.client.Previous(ctx, d.host) }

// RampVolume fades the master volume to volume.
func (d *Device) RampVolume(ctx context.Context, volume int) error {
	return d.client.RampToVolume(ctx, d.host, rampType, volume)
}

// Join makes the player a member of the zone coordinated by coordinatorUID.
func (d *Device) Join(ctx context.Context, coordinatorUID string) error {
	return d.client.SetAVTransportURI(ctx, d.host, groupPrefix+playerID(coordinatorUID), "")
}

// Unjoin makes the player a standalone zone.
func (d *Device) Unjoin(ctx context.Context) error {
	return d.client.BecomeCoordinatorOfStandaloneGroup(ctx, d.host)
}

// LoadPlaylist enqueues the saved Sonos playlist called name and selects the
// queue at its first track.
func (d *Device) LoadPlaylist(ctx context.Context, name string, clearQueue bool) error {
	items, err := d.client.SavedQueues(ctx, d.host)
	if err != nil {
		return err
	}
	var playlist *soap.DidlItem
	for i := range items {
		if items[i].Title == name {
			playlist = &items[i]
			break
		}
	}
	if playlist == nil {
		return fmt.Errorf("%w: %q", ErrPlaylistNotFound, name)
	}

	if clearQueue {
		if err := d.client.RemoveAllTracksFromQueue(ctx, d.host); err != nil {
			return err
		}
	}
	first, err := d.client.AddURIToQueue(ctx, d.host, playlist.Resource, playlistDidl(*playlist), 0, false)
	if err != nil {
		return err
	}
	if err := d.client.SetAVTransportURI(ctx, d.host, queuePrefix+playerID(d.uid)+"#0", ""); err != nil {
		return err
	}
	return d.client.Seek(ctx, d.host, "TRACK_NR", strconv.Itoa(max(first, 1)))
}

// ClearQueue removes every track from the queue.
func (d *Device) ClearQueue(ctx context.Context) error {
	return d.client.RemoveAllTracksFromQueue(ctx, d.host)
}

// AddToQueue appends uri to the end of the queue.
func (d *Device) AddToQueue(ctx context.Context, uri string) error {
	_, err := d.client.AddURIToQueue(ctx, d.host, uri, "", 0, false)
	return err
}

// currentTrack resolves the mirrored track fields of what is playing.
func (d *Device) currentTrack(ctx context.Context) (TrackFields, error) {
	pos, err := d.client.GetPositionInfo(ctx, d.host)
	if err != nil {
		return TrackFields{}, err
	}
	media, err := d.client.GetMediaInfo(ctx, d.host)
	if err != nil {
		return TrackFields{}, err
	}
	return ResolveTrack(d.host, pos.TrackURI, pos.TrackMetaData, media.CurrentURI, media.CurrentURIMetaData), nil
}

func trackValue(track TrackFields, p speaker.Property) string {
	switch p {
	case speaker.PropTrackTitle:
		return track.Title
	case speaker.PropTrackArtist:
		return track.Artist
	case speaker.PropTrackAlbum:
		return track.Album
	case speaker.PropTrackAlbumArt:
		return track.AlbumArt
	case speaker.PropRadioStation:
		return track.RadioStation
	case speaker.PropRadioShow:
		return track.RadioShow
	default:
		return track.StreamType
	}
}

// transportFlags maps a transport state to the play/pause/stop flags.
func transportFlags(state string) (play, pause, stop bool) {
	switch state {
	case speaker.TransportPlaying, speaker.TransportTransitioning:
		return true, false, false
	case speaker.TransportPaused:
		return false, true, false
	default:
		return false, false, true
	}
}

// transportCommand picks the command a tri-state write resolves to.
func transportCommand(p speaker.Property, on bool) speaker.Property {
	switch {
	case p == speaker.PropStop && on:
		return speaker.PropStop
	case p == speaker.PropPause && on, p == speaker.PropPlay && !on:
		return speaker.PropPause
	default:
		return speaker.PropPlay
	}
}

// channelsFromBalance converts a -100..100 balance to left/right channel volumes.
func channelsFromBalance(balance int) (left, right int) {
	left, right = 100, 100
	if balance > 0 {
		left = 100 - balance
	} else if balance < 0 {
		right = 100 + balance
	}
	return left, right
}

func balanceFromChannels(left, right int) int {
	return right - left
}

func alarmMap(list soap.AlarmListResult, uid string) map[string]any {
	out := make(map[string]any)
	for _, a := range list.Alarms {
		if !strings.EqualFold(a.RoomUUID, playerID(uid)) {
			continue
		}
		out[a.ID] = map[string]any{
			"Enabled":           a.Enabled,
			"Duration":          a.Duration,
			"PlayMode":          a.PlayMode,
			"Volume":            a.Volume,
			"Recurrence":        a.Recurrence,
			"StartTime":         a.StartTime,
			"IncludedLinkZones": a.IncludeLinkedZones,
		}
	}
	return out
}

// playerID restores the RINCON_ form of a normalized uid.
func playerID(uid string) string {
	return strings.ToUpper(strings.TrimPrefix(uid, "uuid:"))
}

func playlistDidl(item soap.DidlItem) string {
	var b strings.Builder
	b.WriteString(`<DIDL-Lite xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/" xmlns:r="urn:schemas-rinconnetworks-com:metadata-1-0/" xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/">`)
	b.WriteString(`<item id="` + escapeAttr(item.ID) + `" parentID="` + escapeAttr(item.ParentID) + `" restricted="true">`)
	b.WriteString(`<dc:title>` + escapeAttr(item.Title) + `</dc:title>`)
	b.WriteString(`<upnp:class>object.container.playlistContainer</upnp:class>`)
	b.WriteString(`<desc id="cdudn" nameSpace="urn:schemas-rinconnetworks-com:metadata-1-0/">RINCON_AssociatedZPUDN</desc>`)
	b.WriteString(`</item></DIDL-Lite>`)
	return b.String()
}

var attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func escapeAttr(s string) string { return attrEscaper.Replace(s) }

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asInt(v any) int {
	n, _ := v.(int)
	return n
}
