package sonos

import (
	"bytes"
	"encoding/xml"
	"strings"

	"github.com/strefethen/sonos-broker-go/internal/sonos/soap"
)

// Stream types reported in the streamtype property.
const (
	StreamMusic  = "music"
	StreamRadio  = "radio"
	StreamLineIn = "line_in"
	StreamTV     = "tv"
)

// TrackMetadata represents a Sonos track payload.
type TrackMetadata struct {
	Title         string
	Artist        string
	Album         string
	AlbumArtURI   string
	UpnpClass     string
	StreamContent string
	RadioShow     string
}

// ParseDidlMetadata parses DIDL-Lite metadata into a TrackMetadata struct.
// It returns nil for empty or unsupported metadata.
func ParseDidlMetadata(didlXML string) *TrackMetadata {
	if strings.TrimSpace(didlXML) == "" || didlXML == "NOT_IMPLEMENTED" {
		return nil
	}
	return parseDidlItem(didlXML)
}

// StreamType classifies a transport uri.
func StreamType(uri string) string {
	u := strings.ToLower(uri)
	switch {
	case u == "":
		return ""
	case strings.HasPrefix(u, "x-sonos-htastream"), strings.Contains(u, "spdif"):
		return StreamTV
	case strings.HasPrefix(u, "x-rincon-stream"):
		return StreamLineIn
	case strings.HasPrefix(u, "x-sonosapi-stream"),
		strings.HasPrefix(u, "x-sonosapi-radio"),
		strings.HasPrefix(u, "x-sonosapi-hls"),
		strings.HasPrefix(u, "x-rincon-mp3radio"),
		strings.HasPrefix(u, "aac:"),
		strings.HasPrefix(u, "hls-radio:"):
		return StreamRadio
	default:
		return StreamMusic
	}
}

// TrackFields resolves the mirrored track properties from a track's metadata
// and, for radio, the metadata of the transport uri naming the station.
type TrackFields struct {
	Title        string
	Artist       string
	Album        string
	AlbumArt     string
	RadioStation string
	RadioShow    string
	StreamType   string
}

// ResolveTrack combines track and transport metadata. host is the device
// address used to absolutize album art paths.
func ResolveTrack(host, trackURI, trackMeta, transportURI, transportMeta string) TrackFields {
	fields := TrackFields{StreamType: StreamType(firstNonEmpty(transportURI, trackURI))}
	if trackURI == "" && transportURI == "" {
		return fields
	}

	if md := ParseDidlMetadata(trackMeta); md != nil {
		fields.Title = md.Title
		fields.Artist = md.Artist
		fields.Album = md.Album
		fields.AlbumArt = AlbumArtURL(host, md.AlbumArtURI)
		fields.RadioShow = radioShowName(md.RadioShow)
		if fields.StreamType == StreamRadio && md.StreamContent != "" {
			fields.Artist, fields.Title = splitStreamContent(md.StreamContent)
		}
	}
	if fields.StreamType == StreamRadio {
		if md := ParseDidlMetadata(transportMeta); md != nil {
			fields.RadioStation = md.Title
		}
		if fields.Title == fields.RadioStation {
			fields.Title = ""
		}
	}
	return fields
}

// AlbumArtURL makes a device relative album art path absolute.
func AlbumArtURL(host, art string) string {
	if art == "" || strings.HasPrefix(art, "http://") || strings.HasPrefix(art, "https://") {
		return art
	}
	return "http://" + soap.HostPort(host) + "/" + strings.TrimPrefix(art, "/")
}

// splitStreamContent splits the "Artist - Title" form radio stations report.
func splitStreamContent(content string) (artist, title string) {
	if strings.HasPrefix(content, "ZPSTR_") {
		return "", ""
	}
	if a, t, ok := strings.Cut(content, " - "); ok {
		return strings.TrimSpace(a), strings.TrimSpace(t)
	}
	return "", strings.TrimSpace(content)
}

// radioShowName strips the ",p123456" show id suffix.
func radioShowName(show string) string {
	if idx := strings.LastIndex(show, ","); idx > 0 {
		return show[:idx]
	}
	return show
}

func parseDidlItem(didlXML string) *TrackMetadata {
	decoder := xml.NewDecoder(bytes.NewReader([]byte(didlXML)))
	var currentElement string
	var inItem bool
	item := &TrackMetadata{}

	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}

		switch elem := token.(type) {
		case xml.StartElement:
			local := elem.Name.Local
			if local == "item" || local == "container" {
				inItem = true
				continue
			}
			if inItem {
				currentElement = local
			}
		case xml.EndElement:
			if !inItem {
				continue
			}
			currentElement = ""
			if elem.Name.Local == "item" || elem.Name.Local == "container" {
				inItem = false
				if !item.empty() {
					return item
				}
			}
		case xml.CharData:
			if !inItem {
				continue
			}
			value := strings.TrimSpace(string(elem))
			if value == "" {
				continue
			}
			switch currentElement {
			case "title":
				setOnce(&item.Title, value)
			case "creator", "albumArtist", "artist":
				setOnce(&item.Artist, value)
			case "album":
				setOnce(&item.Album, value)
			case "albumArtURI":
				setOnce(&item.AlbumArtURI, value)
			case "class":
				setOnce(&item.UpnpClass, value)
			case "streamContent":
				setOnce(&item.StreamContent, value)
			case "radioShowMd":
				setOnce(&item.RadioShow, value)
			}
		}
	}

	if item.empty() {
		return nil
	}
	return item
}

func (m *TrackMetadata) empty() bool {
	return *m == TrackMetadata{}
}

func setOnce(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
