package soap

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"
)

func parseTextValue(payload []byte, element string) string {
	decoder := xml.NewDecoder(bytes.NewReader(payload))
	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == element {
			var value string
			if err := decoder.DecodeElement(&value, &se); err == nil {
				return strings.TrimSpace(value)
			}
		}
	}
	return ""
}

func parseIntValue(payload []byte, element string) int {
	n, _ := strconv.Atoi(parseTextValue(payload, element))
	return n
}

func parseBoolValue(payload []byte, element string) bool {
	return parseFlag(parseTextValue(payload, element))
}

func parseFlag(value string) bool {
	return value == "1" || strings.EqualFold(value, "true") || strings.EqualFold(value, "on")
}

func flag(on bool) string {
	if on {
		return "1"
	}
	return "0"
}

func parseTransportInfo(payload []byte) TransportInfo {
	return TransportInfo{
		CurrentTransportState:  parseTextValue(payload, "CurrentTransportState"),
		CurrentTransportStatus: parseTextValue(payload, "CurrentTransportStatus"),
		CurrentSpeed:           parseTextValue(payload, "CurrentSpeed"),
	}
}

func parseTransportSettings(payload []byte) TransportSettings {
	return TransportSettings{
		PlayMode:       parseTextValue(payload, "PlayMode"),
		RecQualityMode: parseTextValue(payload, "RecQualityMode"),
	}
}

func parsePositionInfo(payload []byte) PositionInfo {
	return PositionInfo{
		Track:         parseIntValue(payload, "Track"),
		TrackDuration: parseTextValue(payload, "TrackDuration"),
		TrackMetaData: parseTextValue(payload, "TrackMetaData"),
		TrackURI:      parseTextValue(payload, "TrackURI"),
		RelTime:       parseTextValue(payload, "RelTime"),
		AbsTime:       parseTextValue(payload, "AbsTime"),
	}
}

func parseMediaInfo(payload []byte) MediaInfo {
	return MediaInfo{
		NrTracks:           parseIntValue(payload, "NrTracks"),
		MediaDuration:      parseTextValue(payload, "MediaDuration"),
		CurrentURI:         parseTextValue(payload, "CurrentURI"),
		CurrentURIMetaData: parseTextValue(payload, "CurrentURIMetaData"),
	}
}

func parseZoneAttributes(payload []byte) ZoneAttributes {
	return ZoneAttributes{
		CurrentZoneName: parseTextValue(payload, "CurrentZoneName"),
		CurrentIcon:     parseTextValue(payload, "CurrentIcon"),
	}
}

func parseZoneInfo(payload []byte) ZoneInfo {
	return ZoneInfo{
		SerialNumber:    parseTextValue(payload, "SerialNumber"),
		SoftwareVersion: parseTextValue(payload, "SoftwareVersion"),
		DisplayVersion:  parseTextValue(payload, "DisplaySoftwareVersion"),
		HardwareVersion: parseTextValue(payload, "HardwareVersion"),
		IPAddress:       parseTextValue(payload, "IPAddress"),
		MACAddress:      parseTextValue(payload, "MACAddress"),
	}
}

// ParseZoneGroupState parses a ZoneGroupState document, either a full
// GetZoneGroupState response or the bare state carried by a topology event.
func ParseZoneGroupState(payload []byte) ZoneGroupState {
	zoneXML := parseTextValue(payload, "ZoneGroupState")
	if zoneXML == "" {
		zoneXML = string(payload)
	}

	decoder := xml.NewDecoder(strings.NewReader(zoneXML))
	var state ZoneGroupState
	current := -1

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "ZoneGroup":
			group := ZoneGroup{}
			for _, attr := range se.Attr {
				switch attr.Name.Local {
				case "ID":
					group.ID = attr.Value
				case "Coordinator":
					group.Coordinator = attr.Value
				}
			}
			state.Groups = append(state.Groups, group)
			current = len(state.Groups) - 1
		case "ZoneGroupMember", "Satellite":
			if current < 0 {
				continue
			}
			member := ZoneMember{IsVisible: true}
			var htSatChan string
			for _, attr := range se.Attr {
				switch attr.Name.Local {
				case "UUID":
					member.UUID = attr.Value
				case "ZoneName":
					member.ZoneName = attr.Value
				case "Location":
					member.Location = attr.Value
				case "ChannelMapSet":
					member.ChannelMapSet = attr.Value
				case "HTSatChanMapSet":
					htSatChan = attr.Value
				case "Invisible":
					member.IsVisible = !parseFlag(attr.Value)
				}
			}
			if se.Name.Local == "Satellite" {
				member.IsSubwoofer = strings.Contains(htSatChan, ":SW")
				member.IsSatellite = !member.IsSubwoofer
				member.IsVisible = false
			}
			if member.UUID == "" {
				continue
			}
			group := &state.Groups[current]
			member.IsCoordinator = member.UUID == group.Coordinator
			group.Members = append(group.Members, member)
		}
	}

	return state
}

func parseBrowseResult(payload []byte) BrowseResult {
	result := BrowseResult{
		NumberReturned: parseIntValue(payload, "NumberReturned"),
		TotalMatches:   parseIntValue(payload, "TotalMatches"),
	}
	if didl := parseTextValue(payload, "Result"); didl != "" {
		result.Items = parseDidlItems([]byte(didl))
	}
	return result
}

// parseDidlItems lists the items and containers of a DIDL-Lite document.
func parseDidlItems(payload []byte) []DidlItem {
	decoder := xml.NewDecoder(bytes.NewReader(payload))
	var items []DidlItem
	var current *DidlItem

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "item", "container":
			item := DidlItem{}
			for _, attr := range se.Attr {
				switch attr.Name.Local {
				case "id":
					item.ID = attr.Value
				case "parentID":
					item.ParentID = attr.Value
				}
			}
			items = append(items, item)
			current = &items[len(items)-1]
		case "title", "class", "res", "resMD":
			if current == nil {
				continue
			}
			var value string
			if err := decoder.DecodeElement(&value, &se); err != nil {
				continue
			}
			value = strings.TrimSpace(value)
			switch se.Name.Local {
			case "title":
				current.Title = value
			case "class":
				current.UpnpClass = value
			case "res":
				current.Resource = value
			case "resMD":
				current.ResourceMetaData = value
			}
		}
	}

	return items
}

// ParseAlarmList parses the alarm list document of a ListAlarms response
// or an AlarmClock event.
func ParseAlarmList(payload []byte) AlarmListResult {
	result := AlarmListResult{
		AlarmListVersion: parseTextValue(payload, "CurrentAlarmListVersion"),
	}
	alarmListXML := parseTextValue(payload, "CurrentAlarmList")
	if alarmListXML == "" {
		alarmListXML = string(payload)
	}

	decoder := xml.NewDecoder(strings.NewReader(alarmListXML))
	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "Alarm" {
			continue
		}
		alarm := Alarm{}
		for _, attr := range se.Attr {
			switch attr.Name.Local {
			case "ID":
				alarm.ID = attr.Value
			case "StartTime":
				alarm.StartTime = attr.Value
			case "Duration":
				alarm.Duration = attr.Value
			case "Recurrence":
				alarm.Recurrence = attr.Value
			case "Enabled":
				alarm.Enabled = parseFlag(attr.Value)
			case "RoomUUID":
				alarm.RoomUUID = attr.Value
			case "ProgramURI":
				alarm.ProgramURI = attr.Value
			case "PlayMode":
				alarm.PlayMode = attr.Value
			case "Volume":
				alarm.Volume, _ = strconv.Atoi(attr.Value)
			case "IncludeLinkedZones":
				alarm.IncludeLinkedZones = parseFlag(attr.Value)
			}
		}
		result.Alarms = append(result.Alarms, alarm)
	}

	return result
}
