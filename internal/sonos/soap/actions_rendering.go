package soap

import (
	"context"
	"strconv"
)

// RenderingControl actions. These are per device, never forwarded.

// Channels accepted by the volume and mute actions.
const (
	ChannelMaster = "Master"
	ChannelLeft   = "LF"
	ChannelRight  = "RF"
)

func (c *Client) GetVolume(ctx context.Context, host, channel string) (int, error) {
	payload, err := c.ExecuteAction(ctx, host, ServiceRenderingControl, "GetVolume", instance(Arg{"Channel", channel}))
	if err != nil {
		return 0, err
	}
	return parseIntValue(payload, "CurrentVolume"), nil
}

func (c *Client) SetVolume(ctx context.Context, host, channel string, level int) error {
	_, err := c.ExecuteAction(ctx, host, ServiceRenderingControl, "SetVolume", instance(
		Arg{"Channel", channel},
		Arg{"DesiredVolume", strconv.Itoa(level)},
	))
	return err
}

// RampToVolume fades the master volume to level using the given ramp type,
// e.g. SLEEP_TIMER_RAMP_TYPE or AUTOPLAY_RAMP_TYPE.
func (c *Client) RampToVolume(ctx context.Context, host, rampType string, level int) error {
	_, err := c.ExecuteAction(ctx, host, ServiceRenderingControl, "RampToVolume", instance(
		Arg{"Channel", ChannelMaster},
		Arg{"RampType", rampType},
		Arg{"DesiredVolume", strconv.Itoa(level)},
		Arg{"ResetVolumeAfter", "0"},
		Arg{"ProgramURI", ""},
	))
	return err
}

func (c *Client) GetMute(ctx context.Context, host string) (bool, error) {
	payload, err := c.ExecuteAction(ctx, host, ServiceRenderingControl, "GetMute", instance(Arg{"Channel", ChannelMaster}))
	if err != nil {
		return false, err
	}
	return parseBoolValue(payload, "CurrentMute"), nil
}

func (c *Client) SetMute(ctx context.Context, host string, mute bool) error {
	_, err := c.ExecuteAction(ctx, host, ServiceRenderingControl, "SetMute", instance(
		Arg{"Channel", ChannelMaster},
		Arg{"DesiredMute", flag(mute)},
	))
	return err
}

func (c *Client) GetBass(ctx context.Context, host string) (int, error) {
	payload, err := c.ExecuteAction(ctx, host, ServiceRenderingControl, "GetBass", instance())
	if err != nil {
		return 0, err
	}
	return parseIntValue(payload, "CurrentBass"), nil
}

func (c *Client) SetBass(ctx context.Context, host string, level int) error {
	_, err := c.ExecuteAction(ctx, host, ServiceRenderingControl, "SetBass", instance(Arg{"DesiredBass", strconv.Itoa(level)}))
	return err
}

func (c *Client) GetTreble(ctx context.Context, host string) (int, error) {
	payload, err := c.ExecuteAction(ctx, host, ServiceRenderingControl, "GetTreble", instance())
	if err != nil {
		return 0, err
	}
	return parseIntValue(payload, "CurrentTreble"), nil
}

func (c *Client) SetTreble(ctx context.Context, host string, level int) error {
	_, err := c.ExecuteAction(ctx, host, ServiceRenderingControl, "SetTreble", instance(Arg{"DesiredTreble", strconv.Itoa(level)}))
	return err
}

func (c *Client) GetLoudness(ctx context.Context, host string) (bool, error) {
	payload, err := c.ExecuteAction(ctx, host, ServiceRenderingControl, "GetLoudness", instance(Arg{"Channel", ChannelMaster}))
	if err != nil {
		return false, err
	}
	return parseBoolValue(payload, "CurrentLoudness"), nil
}

func (c *Client) SetLoudness(ctx context.Context, host string, on bool) error {
	_, err := c.ExecuteAction(ctx, host, ServiceRenderingControl, "SetLoudness", instance(
		Arg{"Channel", ChannelMaster},
		Arg{"DesiredLoudness", flag(on)},
	))
	return err
}

// GetEQ reads an extended EQ value such as NightMode or DialogLevel.
func (c *Client) GetEQ(ctx context.Context, host, eqType string) (int, error) {
	payload, err := c.ExecuteAction(ctx, host, ServiceRenderingControl, "GetEQ", instance(Arg{"EQType", eqType}))
	if err != nil {
		return 0, err
	}
	return parseIntValue(payload, "CurrentValue"), nil
}

func (c *Client) SetEQ(ctx context.Context, host, eqType string, value int) error {
	_, err := c.ExecuteAction(ctx, host, ServiceRenderingControl, "SetEQ", instance(
		Arg{"EQType", eqType},
		Arg{"DesiredValue", strconv.Itoa(value)},
	))
	return err
}
