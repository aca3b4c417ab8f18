package discovery

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// ErrNotZonePlayer is returned for a description document without a root UDN.
var ErrNotZonePlayer = errors.New("not a zone player description")

// DeviceDescription is the subset of /xml/device_description.xml the broker uses.
type DeviceDescription struct {
	UDN             string
	ModelName       string
	ModelNumber     string
	RoomName        string
	SerialNumber    string
	SoftwareVersion string
	HardwareVersion string
}

// ParseDeviceDescription extracts the root device fields of a description document.
func ParseDeviceDescription(xmlPayload []byte) (*DeviceDescription, error) {
	decoder := xml.NewDecoder(bytes.NewReader(xmlPayload))
	var desc DeviceDescription
	var friendlyName string

	fields := map[string]*string{
		"friendlyName":    &friendlyName,
		"roomName":        &desc.RoomName,
		"modelName":       &desc.ModelName,
		"modelNumber":     &desc.ModelNumber,
		"serialNum":       &desc.SerialNumber,
		"softwareVersion": &desc.SoftwareVersion,
		"hardwareVersion": &desc.HardwareVersion,
		"UDN":             &desc.UDN,
	}

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		dst, ok := fields[se.Name.Local]
		// Embedded MediaServer/MediaRenderer devices repeat these elements;
		// the root device comes first.
		if !ok || *dst != "" {
			continue
		}
		var value string
		if err := decoder.DecodeElement(&value, &se); err == nil {
			*dst = strings.TrimSpace(value)
		}
	}

	desc.UDN = strings.TrimPrefix(desc.UDN, "uuid:")
	if desc.UDN == "" {
		return nil, ErrNotZonePlayer
	}
	if desc.RoomName == "" {
		desc.RoomName = parseRoomName(friendlyName)
	}
	return &desc, nil
}

// parseRoomName takes the room from "Kitchen - Sonos One" style friendly names.
func parseRoomName(friendlyName string) string {
	if room, _, ok := strings.Cut(friendlyName, " - "); ok {
		return strings.TrimSpace(room)
	}
	return strings.TrimSpace(friendlyName)
}
