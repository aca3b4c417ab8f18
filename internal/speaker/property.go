package speaker

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Property identifies one mirrored speaker property.
type Property uint8

const (
	// Coordinator-forwarded playback/track/zone properties.
	PropTrackTitle Property = iota
	PropTrackPosition
	PropTrackAlbumArt
	PropTrackArtist
	PropTrackURI
	PropTrackDuration
	PropTrackAlbum
	PropTransportActions
	PropStop
	PropPlay
	PropPause
	PropRadioStation
	PropRadioShow
	PropPlaylistPosition
	PropPlaylistTotalTracks
	PropStreamType
	PropPlayMode
	PropZoneIcon
	PropZoneName

	// Per-device properties.
	PropMute
	PropNightMode
	PropSonosPlaylists
	PropHouseholdID
	PropDisplayVersion
	PropIP
	PropMACAddress
	PropSoftwareVersion
	PropHardwareVersion
	PropSerialNumber
	PropLED
	PropVolume
	PropMaxVolume
	PropAdditionalZoneMembers
	PropStatus
	PropModel
	PropModelNumber
	PropBass
	PropTreble
	PropLoudness
	PropAlarms
	PropIsCoordinator
	PropWifiState
	PropBalance

	propertyCount
)

// Kind is the canonical Go type a property value is normalized to.
type Kind uint8

const (
	KindString Kind = iota
	KindInt
	KindBool
	KindMap
)

// Access describes who may change a property and how.
type Access uint8

const (
	// AccessReadOnly properties are reported by the device and only updated value-only.
	AccessReadOnly Access = iota
	// AccessActuated properties have a matching Device Gateway setter.
	AccessActuated
	// AccessSetting properties live only in the broker (no device call).
	AccessSetting
	// AccessDerived properties are computed from topology and never stored.
	AccessDerived
)

// Descriptor drives the generic get/set routine for a property.
type Descriptor struct {
	Name      string
	Kind      Kind
	Forwarded bool
	Access    Access
}

var descriptors = [propertyCount]Descriptor{
	PropTrackTitle:          {Name: "track_title", Kind: KindString, Forwarded: true},
	PropTrackPosition:       {Name: "track_position", Kind: KindString, Forwarded: true, Access: AccessActuated},
	PropTrackAlbumArt:       {Name: "track_album_art", Kind: KindString, Forwarded: true},
	PropTrackArtist:         {Name: "track_artist", Kind: KindString, Forwarded: true},
	PropTrackURI:            {Name: "track_uri", Kind: KindString, Forwarded: true},
	PropTrackDuration:       {Name: "track_duration", Kind: KindString, Forwarded: true},
	PropTrackAlbum:          {Name: "track_album", Kind: KindString, Forwarded: true},
	PropTransportActions:    {Name: "transport_actions", Kind: KindString, Forwarded: true},
	PropStop:                {Name: "stop", Kind: KindBool, Forwarded: true, Access: AccessActuated},
	PropPlay:                {Name: "play", Kind: KindBool, Forwarded: true, Access: AccessActuated},
	PropPause:               {Name: "pause", Kind: KindBool, Forwarded: true, Access: AccessActuated},
	PropRadioStation:        {Name: "radio_station", Kind: KindString, Forwarded: true},
	PropRadioShow:           {Name: "radio_show", Kind: KindString, Forwarded: true},
	PropPlaylistPosition:    {Name: "playlist_position", Kind: KindInt, Forwarded: true},
	PropPlaylistTotalTracks: {Name: "playlist_total_tracks", Kind: KindInt, Forwarded: true},
	PropStreamType:          {Name: "streamtype", Kind: KindString, Forwarded: true},
	PropPlayMode:            {Name: "playmode", Kind: KindString, Forwarded: true, Access: AccessActuated},
	PropZoneIcon:            {Name: "zone_icon", Kind: KindString, Forwarded: true},
	PropZoneName:            {Name: "zone_name", Kind: KindString, Forwarded: true},

	PropMute:                  {Name: "mute", Kind: KindBool, Access: AccessActuated},
	PropNightMode:             {Name: "nightmode", Kind: KindBool, Access: AccessActuated},
	PropSonosPlaylists:        {Name: "sonos_playlists", Kind: KindString},
	PropHouseholdID:           {Name: "household_id", Kind: KindString},
	PropDisplayVersion:        {Name: "display_version", Kind: KindString},
	PropIP:                    {Name: "ip", Kind: KindString},
	PropMACAddress:            {Name: "mac_address", Kind: KindString},
	PropSoftwareVersion:       {Name: "software_version", Kind: KindString},
	PropHardwareVersion:       {Name: "hardware_version", Kind: KindString},
	PropSerialNumber:          {Name: "serial_number", Kind: KindString},
	PropLED:                   {Name: "led", Kind: KindBool, Access: AccessActuated},
	PropVolume:                {Name: "volume", Kind: KindInt, Access: AccessActuated},
	PropMaxVolume:             {Name: "max_volume", Kind: KindInt, Access: AccessSetting},
	PropAdditionalZoneMembers: {Name: "additional_zone_members", Kind: KindString, Access: AccessDerived},
	PropStatus:                {Name: "status", Kind: KindBool, Access: AccessSetting},
	PropModel:                 {Name: "model", Kind: KindString},
	PropModelNumber:           {Name: "model_number", Kind: KindString},
	PropBass:                  {Name: "bass", Kind: KindInt, Access: AccessActuated},
	PropTreble:                {Name: "treble", Kind: KindInt, Access: AccessActuated},
	PropLoudness:              {Name: "loudness", Kind: KindBool, Access: AccessActuated},
	PropAlarms:                {Name: "alarms", Kind: KindMap},
	PropIsCoordinator:         {Name: "is_coordinator", Kind: KindBool, Access: AccessDerived},
	PropWifiState:             {Name: "wifi_state", Kind: KindBool, Access: AccessActuated},
	PropBalance:               {Name: "balance", Kind: KindInt, Access: AccessActuated},
}

var propertiesByName = func() map[string]Property {
	m := make(map[string]Property, propertyCount)
	for i := Property(0); i < propertyCount; i++ {
		m[descriptors[i].Name] = i
	}
	return m
}()

// musicProperties are refreshed whenever the zone a speaker belongs to changes.
var musicProperties = []Property{
	PropTrackTitle,
	PropTrackPosition,
	PropTrackAlbumArt,
	PropTrackArtist,
	PropTrackURI,
	PropTrackDuration,
	PropTrackAlbum,
	PropTransportActions,
	PropStop,
	PropPlay,
	PropPause,
	PropMute,
	PropRadioStation,
	PropRadioShow,
	PropPlaylistPosition,
	PropPlaylistTotalTracks,
	PropStreamType,
	PropPlayMode,
	PropZoneIcon,
	PropZoneName,
}

// metadataProperties are cleared when the coordinator reports an empty track uri.
var metadataProperties = []Property{
	PropTrackAlbumArt,
	PropTrackArtist,
	PropTrackTitle,
	PropPlaylistPosition,
	PropPlaylistTotalTracks,
	PropTrackAlbum,
	PropRadioShow,
	PropRadioStation,
	PropTrackDuration,
}

// ParseProperty resolves a property by its wire name.
func ParseProperty(name string) (Property, error) {
	p, ok := propertiesByName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownProperty, name)
	}
	return p, nil
}

// AllProperties returns every mirrored property in descriptor order.
func AllProperties() []Property {
	props := make([]Property, propertyCount)
	for i := range props {
		props[i] = Property(i)
	}
	return props
}

// MusicProperties returns the playback/metadata properties of a zone.
func MusicProperties() []Property {
	return append([]Property(nil), musicProperties...)
}

func (p Property) Valid() bool { return p < propertyCount }

// Descriptor returns the static description of the property.
func (p Property) Descriptor() Descriptor {
	if !p.Valid() {
		return Descriptor{Name: "unknown"}
	}
	return descriptors[p]
}

func (p Property) String() string { return p.Descriptor().Name }

// Forwarded reports whether reads and actuation are routed to the zone coordinator.
func (p Property) Forwarded() bool { return p.Valid() && descriptors[p].Forwarded }

func (p Property) bit() uint64 { return 1 << uint(p) }

// zeroValue is the unset value stored for a property.
func (p Property) zeroValue() any {
	switch p {
	case PropMaxVolume:
		return -1
	case PropStatus, PropLED:
		return true
	}
	switch descriptors[p].Kind {
	case KindInt:
		return 0
	case KindBool:
		return false
	case KindMap:
		return map[string]any{}
	default:
		return ""
	}
}

// normalize converts an incoming value to the canonical kind of the property.
func normalize(p Property, value any) (any, error) {
	desc := p.Descriptor()
	switch desc.Kind {
	case KindBool:
		return toBool(value)
	case KindInt:
		return toInt(value)
	case KindMap:
		if value == nil {
			return map[string]any{}, nil
		}
		if m, ok := value.(map[string]any); ok {
			return m, nil
		}
		return nil, fmt.Errorf("%w: %s expects an object, got %T", ErrInvalidValue, desc.Name, value)
	default:
		switch v := value.(type) {
		case string:
			return v, nil
		case nil:
			return "", nil
		case fmt.Stringer:
			return v.String(), nil
		case int, int64, float64, bool:
			return fmt.Sprint(v), nil
		}
		return nil, fmt.Errorf("%w: %s expects a string, got %T", ErrInvalidValue, desc.Name, value)
	}
}

func toBool(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "on", "yes":
			return true, nil
		case "0", "false", "off", "no", "":
			return false, nil
		}
	}
	return nil, fmt.Errorf("%w: cannot interpret %v as a boolean", ErrInvalidValue, value)
}

func toInt(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err == nil {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%w: cannot interpret %v as an integer", ErrInvalidValue, value)
}

func valuesEqual(a, b any) bool {
	am, aok := a.(map[string]any)
	bm, bok := b.(map[string]any)
	if aok != bok {
		return false
	}
	if aok {
		if len(am) == 0 && len(bm) == 0 {
			return true
		}
		return reflect.DeepEqual(am, bm)
	}
	return a == b
}
