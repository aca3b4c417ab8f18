package speaker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// VolumeStep is the change applied by VolumeUp and VolumeDown.
const VolumeStep = 2

// SettleDelay is how long a join or unjoin is given to take effect on the devices.
var SettleDelay = 3 * time.Second

// offlineBaseline is written when a speaker becomes unreachable.
var offlineBaseline = []propertyValue{
	{PropWifiState, false},
	{PropStreamType, ""},
	{PropVolume, 0},
	{PropBass, 0},
	{PropTreble, 0},
	{PropLoudness, false},
	{PropMute, false},
	{PropLED, true},
	{PropStop, true},
	{PropPlay, false},
	{PropPause, false},
	{PropTrackTitle, ""},
	{PropTrackArtist, ""},
	{PropTrackAlbum, ""},
	{PropTrackAlbumArt, ""},
	{PropTrackURI, ""},
	{PropTrackDuration, ""},
	{PropTrackPosition, ""},
	{PropTransportActions, ""},
	{PropPlaylistPosition, 0},
	{PropPlaylistTotalTracks, 0},
	{PropRadioShow, ""},
	{PropRadioStation, ""},
	{PropMaxVolume, -1},
	{PropZoneName, ""},
	{PropZoneIcon, ""},
	{PropPlayMode, ""},
	{PropAlarms, map[string]any{}},
}

// transportFlags resolves a tri-state write to the resulting play/pause/stop flags.
func transportFlags(p Property, on bool) (play, pause, stop bool) {
	switch {
	case p == PropStop && on:
		return false, false, true
	case p == PropPause && on, p == PropPlay && !on:
		return false, true, false
	default:
		return true, false, false
	}
}

// setTransport applies a tri-state write. Clearing a flag that is already
// clear leaves the state alone. A change reports all three flags for the
// whole zone.
func (s *Speaker) setTransport(ctx context.Context, p Property, on, trigger bool) error {
	if !on && !s.GetBool(p) {
		return nil
	}
	play, pause, stop := transportFlags(p, on)
	if s.GetBool(PropPlay) == play && s.GetBool(PropPause) == pause && s.GetBool(PropStop) == stop {
		return nil
	}
	if trigger {
		if err := s.actuate(ctx, p, on); err != nil {
			return err
		}
	}
	s.store(pv(PropPlay, play), pv(PropPause, pause), pv(PropStop, stop))
	s.markZoneDirty(PropPlay, PropPause, PropStop)
	return nil
}

func (s *Speaker) setVolume(ctx context.Context, volume int, trigger bool) error {
	if volume < 0 || volume > 100 {
		return fmt.Errorf("%w: volume %d not in 0..100", ErrOutOfRange, volume)
	}
	if trigger {
		if limit, _ := s.localValue(PropMaxVolume).(int); limit >= 0 && volume > limit {
			volume = limit
		}
	}
	return s.set(ctx, PropVolume, volume, trigger)
}

func (s *Speaker) setMaxVolume(ctx context.Context, limit int, trigger bool) error {
	if limit < -1 || limit > 100 {
		return fmt.Errorf("%w: max_volume %d not in -1..100", ErrOutOfRange, limit)
	}
	s.store(pv(PropMaxVolume, limit))
	if trigger && limit >= 0 && s.GetInt(PropVolume) > limit {
		return s.setVolume(ctx, limit, true)
	}
	return nil
}

// setStatus records reachability. Going offline resets the volatile state,
// leaves the zone and makes the speaker its own standalone coordinator.
// Former members become standalone until the next topology recompute.
func (s *Speaker) setStatus(reachable bool) {
	s.mu.Lock()
	if s.values[PropStatus] == reachable {
		s.mu.Unlock()
		return
	}
	s.values[PropStatus] = reachable
	s.dirty.Add(PropStatus)
	if reachable {
		s.mu.Unlock()
		return
	}
	for _, item := range offlineBaseline {
		if valuesEqual(s.values[item.p], item.v) {
			continue
		}
		s.values[item.p] = item.v
		s.dirty.Add(item.p)
	}
	oldCoordinator, oldMembers := s.coordinator, s.members
	if s.coordinator != s.uid || len(s.members) > 0 {
		s.coordinator = s.uid
		s.members = nil
		s.dirty.Add(PropIsCoordinator, PropAdditionalZoneMembers)
	}
	s.mu.Unlock()

	if s.registry == nil {
		return
	}
	if oldCoordinator != "" && oldCoordinator != s.uid {
		if coord := s.registry.Get(oldCoordinator); coord != nil {
			coord.removeMember(s.uid)
		}
	}
	for _, uid := range oldMembers {
		if m := s.registry.Get(uid); m != nil && m.CoordinatorUID() == s.uid {
			m.setTopology(uid, nil)
		}
	}
}

// setTrackURI mirrors the current track uri. An empty uri clears the track metadata.
func (s *Speaker) setTrackURI(uri string) {
	if valuesEqual(s.Get(PropTrackURI), uri) {
		return
	}
	values := []propertyValue{pv(PropTrackURI, uri)}
	if uri == "" {
		for _, p := range metadataProperties {
			values = append(values, pv(p, p.zeroValue()))
		}
	}
	s.store(values...)
}

// IsReachable reports the last known reachability.
func (s *Speaker) IsReachable() bool {
	return s.GetBool(PropStatus)
}

// VolumeUp raises the volume by VolumeStep, clamped to 100.
func (s *Speaker) VolumeUp(ctx context.Context, group bool) error {
	return s.stepVolume(ctx, VolumeStep, group)
}

// VolumeDown lowers the volume by VolumeStep, clamped to 0.
func (s *Speaker) VolumeDown(ctx context.Context, group bool) error {
	return s.stepVolume(ctx, -VolumeStep, group)
}

func (s *Speaker) stepVolume(ctx context.Context, delta int, group bool) error {
	volume := min(max(s.GetInt(PropVolume)+delta, 0), 100)
	err := s.Set(ctx, PropVolume, volume, SetOptions{Trigger: true})
	if err != nil || !group || s.registry == nil {
		return err
	}
	var errs []error
	for _, uid := range s.ZoneMemberUIDs() {
		if m := s.registry.Get(uid); m != nil {
			if err := m.stepVolume(ctx, delta, false); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// PlayURI starts a uri on the zone coordinator.
func (s *Speaker) PlayURI(ctx context.Context, uri string) error {
	coord := s.Coordinator()
	if err := coord.device.PlayURI(ctx, uri); err != nil {
		return &ActionError{Op: "play uri", UID: coord.uid, Err: err}
	}
	return nil
}

// Next skips to the next track of the zone.
func (s *Speaker) Next(ctx context.Context) error {
	coord := s.Coordinator()
	if err := coord.device.Next(ctx); err != nil {
		return &ActionError{Op: "next", UID: coord.uid, Err: err}
	}
	return nil
}

// Previous skips to the previous track of the zone.
func (s *Speaker) Previous(ctx context.Context) error {
	coord := s.Coordinator()
	if err := coord.device.Previous(ctx); err != nil {
		return &ActionError{Op: "previous", UID: coord.uid, Err: err}
	}
	return nil
}

// LoadPlaylist replaces or extends the zone queue with a saved playlist.
func (s *Speaker) LoadPlaylist(ctx context.Context, name string, play, clearQueue bool) error {
	if name == "" {
		return fmt.Errorf("%w: playlist name is required", ErrInvalidValue)
	}
	coord := s.Coordinator()
	if err := coord.device.LoadPlaylist(ctx, name, clearQueue); err != nil {
		return &ActionError{Op: "load playlist", UID: coord.uid, Err: err}
	}
	if play {
		return coord.Set(ctx, PropPlay, true, SetOptions{Trigger: true})
	}
	return nil
}

// ClearQueue empties the queue of the zone.
func (s *Speaker) ClearQueue(ctx context.Context) error {
	coord := s.Coordinator()
	if err := coord.device.ClearQueue(ctx); err != nil {
		return &ActionError{Op: "clear queue", UID: coord.uid, Err: err}
	}
	return nil
}

// AddToQueue appends uri to the queue of the zone.
func (s *Speaker) AddToQueue(ctx context.Context, uri string) error {
	if uri == "" {
		return fmt.Errorf("%w: uri is required", ErrInvalidValue)
	}
	coord := s.Coordinator()
	if err := coord.device.AddToQueue(ctx, uri); err != nil {
		return &ActionError{Op: "add to queue", UID: coord.uid, Err: err}
	}
	return nil
}

// PartyMode joins every reachable speaker outside the zone to the zone.
func (s *Speaker) PartyMode(ctx context.Context) error {
	if s.registry == nil {
		return nil
	}
	coordUID := s.CoordinatorUID()
	var errs []error
	joined := 0
	for _, other := range s.registry.List() {
		if other.CoordinatorUID() == coordUID || !other.IsReachable() {
			continue
		}
		if err := other.device.Join(ctx, coordUID); err != nil {
			errs = append(errs, &ActionError{Op: "join", UID: other.uid, Err: err})
			continue
		}
		joined++
	}
	if joined > 0 {
		if err := settle(ctx); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

// Join adds the speaker to the zone of the speaker targetUID.
func (s *Speaker) Join(ctx context.Context, targetUID string) error {
	if s.registry == nil {
		return ErrSpeakerNotFound
	}
	target, err := s.registry.Lookup(targetUID)
	if err != nil {
		return err
	}
	coordUID := target.CoordinatorUID()
	if coordUID == s.uid {
		return nil
	}
	if err := s.device.Join(ctx, coordUID); err != nil {
		return &ActionError{Op: "join", UID: s.uid, Err: err}
	}
	return settle(ctx)
}

// Unjoin makes the speaker a standalone zone, optionally resuming playback.
func (s *Speaker) Unjoin(ctx context.Context, play bool) error {
	if err := s.device.Unjoin(ctx); err != nil {
		return &ActionError{Op: "unjoin", UID: s.uid, Err: err}
	}
	if err := settle(ctx); err != nil {
		return err
	}
	if old := s.coordinatorSpeaker(); old != nil {
		old.removeMember(s.uid)
	}
	s.setTopology(s.uid, nil)
	if play {
		return s.Set(ctx, PropPlay, true, SetOptions{Trigger: true})
	}
	return nil
}

func settle(ctx context.Context) error {
	if SettleDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(SettleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Refresh reads properties from the device and mirrors them value-only.
// Forwarded properties of a zone member are refreshed on the coordinator.
func (s *Speaker) Refresh(ctx context.Context, props ...Property) error {
	var errs []error
	for _, p := range props {
		target := s
		if p.Forwarded() {
			target = s.Coordinator()
		}
		v, err := target.device.GetProperty(ctx, p)
		if err != nil {
			errs = append(errs, &ActionError{Op: "get " + p.String(), UID: target.uid, Err: err})
			continue
		}
		if err := target.Set(ctx, p, v, SetOptions{}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RefreshAlarms reloads the alarm map.
func (s *Speaker) RefreshAlarms(ctx context.Context) error {
	return s.Refresh(ctx, PropAlarms)
}

// RefreshTrackPosition reloads the playback position of the zone.
func (s *Speaker) RefreshTrackPosition(ctx context.Context) error {
	return s.Refresh(ctx, PropTrackPosition)
}

// RefreshWifi reloads whether the wireless interface is enabled.
func (s *Speaker) RefreshWifi(ctx context.Context) error {
	return s.Refresh(ctx, PropWifiState)
}

// RefreshInfo mirrors the static identity of the device.
func (s *Speaker) RefreshInfo(ctx context.Context) error {
	info, err := s.device.Info(ctx)
	if err != nil {
		return &ActionError{Op: "info", UID: s.uid, Err: err}
	}
	s.store(
		pv(PropIP, info.IP),
		pv(PropModel, info.Model),
		pv(PropModelNumber, info.ModelNumber),
		pv(PropSerialNumber, info.SerialNumber),
		pv(PropSoftwareVersion, info.SoftwareVersion),
		pv(PropHardwareVersion, info.HardwareVersion),
		pv(PropDisplayVersion, info.DisplayVersion),
		pv(PropMACAddress, info.MACAddress),
		pv(PropHouseholdID, info.HouseholdID),
	)
	if info.ZoneName != "" {
		s.store(pv(PropZoneName, info.ZoneName), pv(PropZoneIcon, info.ZoneIcon))
	}
	return nil
}

// Ping probes reachability and records the result in status.
func (s *Speaker) Ping(ctx context.Context) bool {
	reachable := s.device.Ping(ctx) == nil
	s.setStatus(reachable)
	return reachable
}
