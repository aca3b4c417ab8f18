package soap

import (
	"context"
	"strconv"
)

// AVTransport actions. Commands that act on a zone must be sent to its coordinator.

func (c *Client) GetTransportInfo(ctx context.Context, host string) (TransportInfo, error) {
	payload, err := c.ExecuteAction(ctx, host, ServiceAVTransport, "GetTransportInfo", instance())
	if err != nil {
		return TransportInfo{}, err
	}
	return parseTransportInfo(payload), nil
}

func (c *Client) GetTransportSettings(ctx context.Context, host string) (TransportSettings, error) {
	payload, err := c.ExecuteAction(ctx, host, ServiceAVTransport, "GetTransportSettings", instance())
	if err != nil {
		return TransportSettings{}, err
	}
	return parseTransportSettings(payload), nil
}

func (c *Client) GetPositionInfo(ctx context.Context, host string) (PositionInfo, error) {
	payload, err := c.ExecuteAction(ctx, host, ServiceAVTransport, "GetPositionInfo", instance())
	if err != nil {
		return PositionInfo{}, err
	}
	return parsePositionInfo(payload), nil
}

func (c *Client) GetMediaInfo(ctx context.Context, host string) (MediaInfo, error) {
	payload, err := c.ExecuteAction(ctx, host, ServiceAVTransport, "GetMediaInfo", instance())
	if err != nil {
		return MediaInfo{}, err
	}
	return parseMediaInfo(payload), nil
}

// GetCurrentTransportActions returns the comma separated actions the zone currently allows.
func (c *Client) GetCurrentTransportActions(ctx context.Context, host string) (string, error) {
	payload, err := c.ExecuteAction(ctx, host, ServiceAVTransport, "GetCurrentTransportActions", instance())
	if err != nil {
		return "", err
	}
	return parseTextValue(payload, "Actions"), nil
}

func (c *Client) Play(ctx context.Context, host string) error {
	_, err := c.ExecuteAction(ctx, host, ServiceAVTransport, "Play", instance(Arg{"Speed", "1"}))
	return err
}

func (c *Client) Pause(ctx context.Context, host string) error {
	_, err := c.ExecuteAction(ctx, host, ServiceAVTransport, "Pause", instance())
	return err
}

func (c *Client) Stop(ctx context.Context, host string) error {
	_, err := c.ExecuteAction(ctx, host, ServiceAVTransport, "Stop", instance())
	return err
}

func (c *Client) Next(ctx context.Context, host string) error {
	_, err := c.ExecuteAction(ctx, host, ServiceAVTransport, "Next", instance())
	return err
}

func (c *Client) Previous(ctx context.Context, host string) error {
	_, err := c.ExecuteAction(ctx, host, ServiceAVTransport, "Previous", instance())
	return err
}

func (c *Client) SetPlayMode(ctx context.Context, host, mode string) error {
	_, err := c.ExecuteAction(ctx, host, ServiceAVTransport, "SetPlayMode", instance(Arg{"NewPlayMode", mode}))
	return err
}

func (c *Client) SetAVTransportURI(ctx context.Context, host, uri, metadata string) error {
	_, err := c.ExecuteAction(ctx, host, ServiceAVTransport, "SetAVTransportURI", instance(
		Arg{"CurrentURI", uri},
		Arg{"CurrentURIMetaData", metadata},
	))
	return err
}

// AddURIToQueue enqueues a uri and returns the queue position of its first track.
func (c *Client) AddURIToQueue(ctx context.Context, host, uri, metadata string, position int, enqueueNext bool) (int, error) {
	payload, err := c.ExecuteAction(ctx, host, ServiceAVTransport, "AddURIToQueue", instance(
		Arg{"EnqueuedURI", uri},
		Arg{"EnqueuedURIMetaData", metadata},
		Arg{"DesiredFirstTrackNumberEnqueued", strconv.Itoa(position)},
		Arg{"EnqueueAsNext", flag(enqueueNext)},
	))
	if err != nil {
		return 0, err
	}
	return parseIntValue(payload, "FirstTrackNumberEnqueued"), nil
}

func (c *Client) RemoveAllTracksFromQueue(ctx context.Context, host string) error {
	_, err := c.ExecuteAction(ctx, host, ServiceAVTransport, "RemoveAllTracksFromQueue", instance())
	return err
}

// Seek moves playback. unit is REL_TIME (target HH:MM:SS) or TRACK_NR.
func (c *Client) Seek(ctx context.Context, host, unit, target string) error {
	_, err := c.ExecuteAction(ctx, host, ServiceAVTransport, "Seek", instance(
		Arg{"Unit", unit},
		Arg{"Target", target},
	))
	return err
}

func (c *Client) BecomeCoordinatorOfStandaloneGroup(ctx context.Context, host string) error {
	_, err := c.ExecuteAction(ctx, host, ServiceAVTransport, "BecomeCoordinatorOfStandaloneGroup", instance())
	return err
}
