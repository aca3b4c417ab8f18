package events

import (
	"bytes"
	"encoding/xml"
	"io"
	"strconv"
	"strings"
	"time"
)

// ParseNotifyBody parses a UPnP NOTIFY event body into a flat variable map.
// Sonos events use double-encoded XML in the LastChange property; its
// InstanceID variables are merged into the result.
func ParseNotifyBody(body []byte) (map[string]string, error) {
	props := make(map[string]string)
	decoder := xml.NewDecoder(bytes.NewReader(body))
	depth := 0

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch se := tok.(type) {
		case xml.StartElement:
			depth++
			// propertyset > property > variable
			if depth != 3 {
				continue
			}
			var value string
			if err := decoder.DecodeElement(&value, &se); err != nil {
				return nil, err
			}
			depth--
			if se.Name.Local == "LastChange" {
				if err := parseLastChange(value, props); err != nil {
					return nil, err
				}
				continue
			}
			props[se.Name.Local] = strings.TrimSpace(value)
		case xml.EndElement:
			depth--
		}
	}

	return props, nil
}

// parseLastChange flattens the val attributes of an Event/InstanceID document.
func parseLastChange(content string, props map[string]string) error {
	decoder := xml.NewDecoder(strings.NewReader(content))
	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		var val, channel string
		hasVal := false
		for _, attr := range se.Attr {
			switch attr.Name.Local {
			case "val":
				val, hasVal = attr.Value, true
			case "channel":
				channel = attr.Value
			}
		}
		if !hasVal || se.Name.Local == "InstanceID" || se.Name.Local == "QueueID" {
			continue
		}
		key := se.Name.Local
		if channel != "" {
			key += "/" + channel
		}
		props[key] = val
	}
	return nil
}

// ParseSID extracts the subscription ID from a SUBSCRIBE response header.
// SID format: uuid:RINCON_xxx_sub0000000001
func ParseSID(sidHeader string) string {
	return strings.TrimSpace(sidHeader)
}

// ParseTimeout extracts the granted timeout from a SUBSCRIBE response header.
func ParseTimeout(header string) time.Duration {
	// Timeout format: Second-3600 or Second-infinite
	value := strings.TrimPrefix(strings.TrimSpace(header), "Second-")
	if strings.EqualFold(value, "infinite") {
		return infiniteTimeout
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return DefaultTimeout
}

// ParseSEQ extracts the sequence number from a NOTIFY header.
func ParseSEQ(seqHeader string) int {
	if seq, err := strconv.Atoi(strings.TrimSpace(seqHeader)); err == nil {
		return seq
	}
	return 0
}
