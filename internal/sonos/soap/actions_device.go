package soap

import (
	"context"
	"strconv"
)

// ZoneGroupTopology actions

func (c *Client) GetZoneGroupState(ctx context.Context, host string) (ZoneGroupState, error) {
	payload, err := c.ExecuteAction(ctx, host, ServiceZoneGroupTopology, "GetZoneGroupState", nil)
	if err != nil {
		return ZoneGroupState{}, err
	}
	return ParseZoneGroupState(payload), nil
}

// DeviceProperties actions

func (c *Client) GetZoneAttributes(ctx context.Context, host string) (ZoneAttributes, error) {
	payload, err := c.ExecuteAction(ctx, host, ServiceDeviceProperties, "GetZoneAttributes", nil)
	if err != nil {
		return ZoneAttributes{}, err
	}
	return parseZoneAttributes(payload), nil
}

func (c *Client) GetZoneInfo(ctx context.Context, host string) (ZoneInfo, error) {
	payload, err := c.ExecuteAction(ctx, host, ServiceDeviceProperties, "GetZoneInfo", nil)
	if err != nil {
		return ZoneInfo{}, err
	}
	return parseZoneInfo(payload), nil
}

func (c *Client) GetHouseholdID(ctx context.Context, host string) (string, error) {
	payload, err := c.ExecuteAction(ctx, host, ServiceDeviceProperties, "GetHouseholdID", nil)
	if err != nil {
		return "", err
	}
	return parseTextValue(payload, "CurrentHouseholdID"), nil
}

func (c *Client) GetLEDState(ctx context.Context, host string) (bool, error) {
	payload, err := c.ExecuteAction(ctx, host, ServiceDeviceProperties, "GetLEDState", nil)
	if err != nil {
		return false, err
	}
	return parseBoolValue(payload, "CurrentLEDState"), nil
}

func (c *Client) SetLEDState(ctx context.Context, host string, on bool) error {
	state := "Off"
	if on {
		state = "On"
	}
	_, err := c.ExecuteAction(ctx, host, ServiceDeviceProperties, "SetLEDState", []Arg{{"DesiredLEDState", state}})
	return err
}

// AlarmClock actions

func (c *Client) ListAlarms(ctx context.Context, host string) (AlarmListResult, error) {
	payload, err := c.ExecuteAction(ctx, host, ServiceAlarmClock, "ListAlarms", nil)
	if err != nil {
		return AlarmListResult{}, err
	}
	return ParseAlarmList(payload), nil
}

// ContentDirectory actions

// Browse lists the children (BrowseDirectChildren) or metadata (BrowseMetadata) of objectID.
func (c *Client) Browse(ctx context.Context, host, objectID, browseFlag string, startIndex, requestedCount int) (BrowseResult, error) {
	payload, err := c.ExecuteAction(ctx, host, ServiceContentDirectory, "Browse", []Arg{
		{"ObjectID", objectID},
		{"BrowseFlag", browseFlag},
		{"Filter", "dc:title,res"},
		{"StartingIndex", strconv.Itoa(startIndex)},
		{"RequestedCount", strconv.Itoa(requestedCount)},
		{"SortCriteria", ""},
	})
	if err != nil {
		return BrowseResult{}, err
	}
	return parseBrowseResult(payload), nil
}

// SavedQueues lists the Sonos playlists stored in the household.
func (c *Client) SavedQueues(ctx context.Context, host string) ([]DidlItem, error) {
	result, err := c.Browse(ctx, host, "SQ:", "BrowseDirectChildren", 0, 100)
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}
