package soap

// TransportInfo mirrors Sonos GetTransportInfo response.
type TransportInfo struct {
	CurrentTransportState  string
	CurrentTransportStatus string
	CurrentSpeed           string
}

// TransportSettings mirrors GetTransportSettings.
type TransportSettings struct {
	PlayMode       string
	RecQualityMode string
}

// PositionInfo mirrors Sonos GetPositionInfo response.
type PositionInfo struct {
	Track         int
	TrackDuration string
	TrackMetaData string
	TrackURI      string
	RelTime       string
	AbsTime       string
}

// MediaInfo mirrors Sonos GetMediaInfo response.
type MediaInfo struct {
	NrTracks           int
	MediaDuration      string
	CurrentURI         string
	CurrentURIMetaData string
}

// ZoneGroupState mirrors GetZoneGroupState result (minimal subset needed).
type ZoneGroupState struct {
	Groups []ZoneGroup
}

// GroupOf returns the group containing the member uuid.
func (s ZoneGroupState) GroupOf(uuid string) (ZoneGroup, bool) {
	for _, g := range s.Groups {
		for _, m := range g.Members {
			if m.UUID == uuid {
				return g, true
			}
		}
	}
	return ZoneGroup{}, false
}

// ZoneGroup represents a Sonos group.
type ZoneGroup struct {
	ID          string
	Coordinator string
	Members     []ZoneMember
}

// ZoneMember represents a member device in a group.
type ZoneMember struct {
	UUID          string
	ZoneName      string
	Location      string
	IsCoordinator bool
	IsVisible     bool
	IsSatellite   bool
	IsSubwoofer   bool
	ChannelMapSet string
}

// ZoneAttributes mirrors GetZoneAttributes.
type ZoneAttributes struct {
	CurrentZoneName string
	CurrentIcon     string
}

// ZoneInfo mirrors GetZoneInfo.
type ZoneInfo struct {
	SerialNumber    string
	SoftwareVersion string
	DisplayVersion  string
	HardwareVersion string
	IPAddress       string
	MACAddress      string
}

// BrowseResult mirrors ContentDirectory Browse response (subset).
type BrowseResult struct {
	NumberReturned int
	TotalMatches   int
	Items          []DidlItem
}

// DidlItem is one item or container of a DIDL-Lite listing.
type DidlItem struct {
	ID               string
	ParentID         string
	Title            string
	UpnpClass        string
	Resource         string
	ResourceMetaData string
}

// Alarm mirrors an alarm item from ListAlarms.
type Alarm struct {
	ID                 string
	StartTime          string
	Duration           string
	Recurrence         string
	Enabled            bool
	RoomUUID           string
	ProgramURI         string
	PlayMode           string
	Volume             int
	IncludeLinkedZones bool
}

// AlarmListResult mirrors ListAlarms response.
type AlarmListResult struct {
	AlarmListVersion string
	Alarms           []Alarm
}
