package speaker_test

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/sonos-broker-go/internal/speaker"
	"github.com/strefethen/sonos-broker-go/internal/speaker/speakertest"
)

func init() {
	speaker.SettleDelay = 0
}

type fixture struct {
	registry *speaker.Registry
	devices  map[string]*speakertest.Device
}

func newFixture(t *testing.T, uids ...string) *fixture {
	t.Helper()
	f := &fixture{
		registry: speaker.NewRegistry(log.New(io.Discard, "", 0)),
		devices:  make(map[string]*speakertest.Device),
	}
	for _, uid := range uids {
		d := speakertest.NewDevice(uid)
		f.devices[uid] = d
		_, created := f.registry.Add(d)
		require.True(t, created)
	}
	return f
}

func (f *fixture) speaker(uid string) *speaker.Speaker {
	return f.registry.Get(uid)
}

// group reports the same zone from every listed device and recomputes.
func (f *fixture) group(t *testing.T, coordinator string, members ...string) {
	t.Helper()
	zone := speakertest.Zone(coordinator, members...)
	f.devices[coordinator].SetGroup(zone, nil)
	for _, m := range members {
		f.devices[m].SetGroup(zone, nil)
	}
	f.registry.RecomputeAll(context.Background())
}

func (f *fixture) drain() {
	for _, s := range f.registry.List() {
		s.TakeDirty()
	}
}

func TestSetIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a")
	s := f.speaker("a")
	s.TakeDirty()

	require.NoError(t, s.Set(ctx, speaker.PropVolume, 30, speaker.SetOptions{Trigger: true}))
	require.NoError(t, s.Set(ctx, speaker.PropVolume, 30, speaker.SetOptions{Trigger: true}))

	require.Equal(t, []string{"set"}, f.devices["a"].Ops())
	require.Equal(t, []speaker.Property{speaker.PropVolume}, s.Dirty())
	require.Equal(t, 30, s.Get(speaker.PropVolume))
}

func TestSetValueOnlyDoesNotCallDevice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a")
	s := f.speaker("a")

	require.NoError(t, s.Set(ctx, speaker.PropBass, "4", speaker.SetOptions{}))
	require.Empty(t, f.devices["a"].Ops())
	require.Equal(t, 4, s.Get(speaker.PropBass))
}

func TestSetFailureLeavesValueUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a")
	s := f.speaker("a")
	s.TakeDirty()
	f.devices["a"].Fail("set", errors.New("soap fault 701"))

	err := s.Set(ctx, speaker.PropMute, true, speaker.SetOptions{Trigger: true})

	var actionErr *speaker.ActionError
	require.ErrorAs(t, err, &actionErr)
	require.Equal(t, "a", actionErr.UID)
	require.Equal(t, false, s.Get(speaker.PropMute))
	require.Empty(t, s.Dirty())
}

func TestSetRejectsReadOnlyAndDerived(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a")
	s := f.speaker("a")

	require.ErrorIs(t, s.Set(ctx, speaker.PropTrackTitle, "x", speaker.SetOptions{Trigger: true}), speaker.ErrReadOnly)
	require.ErrorIs(t, s.Set(ctx, speaker.PropIsCoordinator, false, speaker.SetOptions{}), speaker.ErrReadOnly)
	require.ErrorIs(t, s.Set(ctx, speaker.PropVolume, "loud", speaker.SetOptions{}), speaker.ErrInvalidValue)
	require.ErrorIs(t, s.Set(ctx, speaker.PropVolume, 101, speaker.SetOptions{}), speaker.ErrOutOfRange)
	require.ErrorIs(t, s.Set(ctx, speaker.PropBalance, -101, speaker.SetOptions{Trigger: true}), speaker.ErrOutOfRange)
}

func TestTransportTriState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a")
	s := f.speaker("a")

	flags := func() [3]bool {
		return [3]bool{s.GetBool(speaker.PropPlay), s.GetBool(speaker.PropPause), s.GetBool(speaker.PropStop)}
	}
	transport := []speaker.Property{speaker.PropPlay, speaker.PropPause, speaker.PropStop}
	s.TakeDirty()

	require.NoError(t, s.Set(ctx, speaker.PropPlay, true, speaker.SetOptions{Trigger: true}))
	require.Equal(t, [3]bool{true, false, false}, flags())
	require.ElementsMatch(t, transport, s.Dirty())
	s.TakeDirty()

	require.NoError(t, s.Set(ctx, speaker.PropPause, true, speaker.SetOptions{Trigger: true}))
	require.Equal(t, [3]bool{false, true, false}, flags())
	require.ElementsMatch(t, transport, s.Dirty())
	s.TakeDirty()

	require.NoError(t, s.Set(ctx, speaker.PropStop, true, speaker.SetOptions{Trigger: true}))
	require.Equal(t, [3]bool{false, false, true}, flags())
	require.ElementsMatch(t, transport, s.Dirty())
	s.TakeDirty()

	require.NoError(t, s.Set(ctx, speaker.PropStop, false, speaker.SetOptions{Trigger: true}))
	require.Equal(t, [3]bool{true, false, false}, flags())
	require.ElementsMatch(t, transport, s.Dirty())
	s.TakeDirty()

	require.NoError(t, s.Set(ctx, speaker.PropPlay, false, speaker.SetOptions{Trigger: true}))
	require.Equal(t, [3]bool{false, true, false}, flags())
	require.ElementsMatch(t, transport, s.Dirty())
	s.TakeDirty()

	// clearing a flag that is already clear changes nothing
	require.NoError(t, s.Set(ctx, speaker.PropStop, false, speaker.SetOptions{Trigger: true}))
	require.Equal(t, [3]bool{false, true, false}, flags())
	require.Empty(t, s.Dirty())

	calls := f.devices["a"].Calls()
	require.Len(t, calls, 5)
	require.Equal(t, speaker.PropPlay, calls[4].Prop)
	require.Equal(t, false, calls[4].Value)
}

func TestTransportChangeMarksZoneDirty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b")
	f.group(t, "a", "b")
	require.NoError(t, f.speaker("a").Set(ctx, speaker.PropPlay, true, speaker.SetOptions{Trigger: true}))
	f.drain()

	require.NoError(t, f.speaker("a").Set(ctx, speaker.PropPause, true, speaker.SetOptions{Trigger: true}))

	transport := []speaker.Property{speaker.PropPlay, speaker.PropPause, speaker.PropStop}
	require.ElementsMatch(t, transport, f.speaker("a").Dirty())
	require.ElementsMatch(t, transport, f.speaker("b").Dirty())
	require.Equal(t, true, f.speaker("b").Get(speaker.PropPause))
}

func TestRefreshKeepsStoppedTransport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a")
	s := f.speaker("a")
	d := f.devices["a"]
	d.SetValue(speaker.PropStop, true)
	d.SetValue(speaker.PropPlay, false)
	d.SetValue(speaker.PropPause, false)

	for i := 0; i < 2; i++ {
		require.NoError(t, s.Refresh(ctx, speaker.PropStop, speaker.PropPlay, speaker.PropPause))
		require.Equal(t, true, s.Get(speaker.PropStop))
		require.Equal(t, false, s.Get(speaker.PropPlay))
		require.Equal(t, false, s.Get(speaker.PropPause))
	}

	d.SetValue(speaker.PropStop, false)
	d.SetValue(speaker.PropPause, true)
	require.NoError(t, s.Refresh(ctx, speaker.PropStop, speaker.PropPlay, speaker.PropPause))
	require.Equal(t, true, s.Get(speaker.PropPause))
	require.Equal(t, false, s.Get(speaker.PropStop))
	require.Equal(t, false, s.Get(speaker.PropPlay))
	require.NotContains(t, d.Ops(), "set")
}

func TestMaxVolumeClampsVolume(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a")
	s := f.speaker("a")

	require.Equal(t, -1, s.Get(speaker.PropMaxVolume))
	require.NoError(t, s.Set(ctx, speaker.PropVolume, 60, speaker.SetOptions{Trigger: true}))

	require.NoError(t, s.Set(ctx, speaker.PropMaxVolume, 40, speaker.SetOptions{Trigger: true}))
	require.Equal(t, 40, s.Get(speaker.PropVolume))

	require.NoError(t, s.Set(ctx, speaker.PropVolume, 90, speaker.SetOptions{Trigger: true}))
	require.Equal(t, 40, s.Get(speaker.PropVolume))

	require.NoError(t, s.Set(ctx, speaker.PropMaxVolume, -1, speaker.SetOptions{Trigger: true}))
	require.NoError(t, s.Set(ctx, speaker.PropVolume, 90, speaker.SetOptions{Trigger: true}))
	require.Equal(t, 90, s.Get(speaker.PropVolume))
}

func TestVolumeStepClamps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a")
	s := f.speaker("a")

	require.NoError(t, s.Set(ctx, speaker.PropVolume, 99, speaker.SetOptions{Trigger: true}))
	require.NoError(t, s.VolumeUp(ctx, false))
	require.Equal(t, 100, s.Get(speaker.PropVolume))

	require.NoError(t, s.Set(ctx, speaker.PropVolume, 1, speaker.SetOptions{Trigger: true}))
	require.NoError(t, s.VolumeDown(ctx, false))
	require.Equal(t, 0, s.Get(speaker.PropVolume))
}

func TestStatusOfflineResetsVolatileState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b")
	f.group(t, "b", "a")
	a := f.speaker("a")
	require.NoError(t, a.Set(ctx, speaker.PropVolume, 45, speaker.SetOptions{}))
	require.NoError(t, a.Set(ctx, speaker.PropMute, true, speaker.SetOptions{}))
	require.NoError(t, a.Set(ctx, speaker.PropLED, false, speaker.SetOptions{}))
	f.drain()

	require.NoError(t, a.Set(ctx, speaker.PropStatus, false, speaker.SetOptions{}))

	require.Empty(t, f.speaker("b").Members())
	require.Contains(t, f.speaker("b").Dirty(), speaker.PropAdditionalZoneMembers)
	require.Equal(t, 0, a.Get(speaker.PropVolume))
	require.Equal(t, false, a.Get(speaker.PropMute))
	require.Equal(t, true, a.Get(speaker.PropLED))
	require.Equal(t, true, a.Get(speaker.PropStop))
	require.Equal(t, false, a.Get(speaker.PropPlay))
	require.Equal(t, false, a.Get(speaker.PropPause))
	require.True(t, a.IsCoordinator())

	payload := a.TakeDirty()
	require.Equal(t, false, payload["status"])
	require.Equal(t, true, payload["is_coordinator"])
	require.Equal(t, "a", payload["uid"])
}

func TestStatusOfflineCoordinatorReleasesMembers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b", "c")
	f.group(t, "a", "b", "c")

	require.NoError(t, f.speaker("a").Set(ctx, speaker.PropStatus, false, speaker.SetOptions{}))

	require.Empty(t, f.speaker("a").Members())
	require.True(t, f.speaker("b").IsCoordinator())
	require.True(t, f.speaker("c").IsCoordinator())
}

func TestEmptyTrackURIClearsMetadata(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a")
	s := f.speaker("a")
	require.NoError(t, s.Set(ctx, speaker.PropTrackURI, "x-sonos-http:1", speaker.SetOptions{}))
	require.NoError(t, s.Set(ctx, speaker.PropTrackTitle, "Song", speaker.SetOptions{}))
	require.NoError(t, s.Set(ctx, speaker.PropTrackDuration, "00:03:10", speaker.SetOptions{}))
	require.NoError(t, s.Set(ctx, speaker.PropPlaylistPosition, 3, speaker.SetOptions{}))

	require.NoError(t, s.Set(ctx, speaker.PropTrackURI, "", speaker.SetOptions{}))

	require.Equal(t, "", s.Get(speaker.PropTrackTitle))
	require.Equal(t, "00:00:00", s.Get(speaker.PropTrackDuration))
	require.Equal(t, 0, s.Get(speaker.PropPlaylistPosition))
}

func TestForwardedPropertiesReadFromCoordinator(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b")
	f.group(t, "a", "b")
	a, b := f.speaker("a"), f.speaker("b")

	require.True(t, a.IsCoordinator())
	require.False(t, b.IsCoordinator())
	require.Equal(t, "b", a.Get(speaker.PropAdditionalZoneMembers))
	require.Equal(t, "a", b.Get(speaker.PropAdditionalZoneMembers))

	require.NoError(t, a.Set(ctx, speaker.PropTrackTitle, "Blue", speaker.SetOptions{}))
	require.Equal(t, "Blue", b.Get(speaker.PropTrackTitle))

	require.NoError(t, b.Set(ctx, speaker.PropVolume, 12, speaker.SetOptions{}))
	require.Equal(t, 0, a.Get(speaker.PropVolume))
}

func TestForwardedActuationGoesToCoordinator(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b")
	f.group(t, "a", "b")
	f.devices["a"].ResetCalls()
	f.devices["b"].ResetCalls()

	require.NoError(t, f.speaker("b").Set(ctx, speaker.PropPlay, true, speaker.SetOptions{Trigger: true}))

	require.Equal(t, []string{"set"}, f.devices["a"].Ops())
	require.Empty(t, f.devices["b"].Ops())
	require.Equal(t, true, f.speaker("a").Get(speaker.PropPlay))
}

func TestCoordinatorChangeMarksMembersDirty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b", "c")
	f.group(t, "a", "b", "c")
	f.drain()

	require.NoError(t, f.speaker("a").Set(ctx, speaker.PropTrackTitle, "X", speaker.SetOptions{}))

	for _, uid := range []string{"a", "b", "c"} {
		payload := f.speaker(uid).TakeDirty()
		require.Equal(t, "X", payload["track_title"], uid)
		require.Equal(t, uid, payload["uid"])
	}
}

func TestGroupSetAppliesToEveryMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b", "c")
	f.group(t, "a", "b", "c")

	require.NoError(t, f.speaker("b").Set(ctx, speaker.PropMute, true, speaker.SetOptions{Trigger: true, Group: true}))

	for _, uid := range []string{"a", "b", "c"} {
		require.Equal(t, true, f.speaker(uid).Get(speaker.PropMute), uid)
	}
}

func TestGroupSetJoinsMemberErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b")
	f.group(t, "a", "b")
	f.devices["b"].Fail("set", errors.New("timeout"))

	err := f.speaker("a").Set(ctx, speaker.PropLED, false, speaker.SetOptions{Trigger: true, Group: true})

	var actionErr *speaker.ActionError
	require.ErrorAs(t, err, &actionErr)
	require.Equal(t, "b", actionErr.UID)
	require.Equal(t, false, f.speaker("a").Get(speaker.PropLED))
	require.Equal(t, true, f.speaker("b").Get(speaker.PropLED))
}

func TestTakeDirtyEmptyReturnsNil(t *testing.T) {
	f := newFixture(t, "a")
	s := f.speaker("a")
	s.TakeDirty()
	require.Nil(t, s.TakeDirty())
}

func TestApplyEventIgnoresForwardedFromMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b")
	f.group(t, "a", "b")
	a, b := f.speaker("a"), f.speaker("b")
	require.NoError(t, a.Set(ctx, speaker.PropTrackTitle, "Coordinator", speaker.SetOptions{}))

	b.ApplyEvent(ctx, speaker.Event{
		UID:            "b",
		Category:       speaker.CategoryAVTransport,
		TransportState: speaker.TransportStopped,
		Values: map[speaker.Property]any{
			speaker.PropTrackTitle: "Member",
			speaker.PropVolume:     33,
		},
	})

	require.Equal(t, "Coordinator", b.Get(speaker.PropTrackTitle))
	require.Equal(t, 33, b.Get(speaker.PropVolume))

	a.ApplyEvent(ctx, speaker.Event{UID: "a", Category: speaker.CategoryAVTransport, TransportState: speaker.TransportPlaying})
	require.Equal(t, true, b.Get(speaker.PropPlay))
}

func TestUnjoinBecomesStandalone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b")
	f.group(t, "a", "b")
	b := f.speaker("b")
	f.devices["b"].ResetCalls()

	require.NoError(t, b.Unjoin(ctx, true))

	require.True(t, b.IsCoordinator())
	require.Empty(t, f.speaker("a").Members())
	require.Equal(t, true, b.Get(speaker.PropPlay))
	require.Equal(t, []string{"unjoin", "set"}, f.devices["b"].Ops())
}

func TestQueueCommandsRunOnCoordinator(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b")
	f.group(t, "a", "b")
	b := f.speaker("b")

	require.NoError(t, b.ClearQueue(ctx))
	require.NoError(t, b.AddToQueue(ctx, "x-file-cifs://nas/music/track.mp3"))
	require.ErrorIs(t, b.AddToQueue(ctx, ""), speaker.ErrInvalidValue)

	require.Empty(t, f.devices["b"].Ops())
	calls := f.devices["a"].Calls()
	require.Equal(t, []string{"clear_queue", "add_to_queue"}, f.devices["a"].Ops())
	require.Equal(t, "x-file-cifs://nas/music/track.mp3", calls[1].Value)
}

func TestPartyModeJoinsOtherZones(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b", "c", "d")
	f.group(t, "a", "b")
	require.NoError(t, f.speaker("d").Set(ctx, speaker.PropStatus, false, speaker.SetOptions{}))
	for _, d := range f.devices {
		d.ResetCalls()
	}

	require.NoError(t, f.speaker("b").PartyMode(ctx))

	require.Empty(t, f.devices["a"].Ops())
	require.Empty(t, f.devices["b"].Ops())
	require.Empty(t, f.devices["d"].Ops())
	calls := f.devices["c"].Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "join", calls[0].Op)
	require.Equal(t, "a", calls[0].Value)

	f.devices["c"].Fail("join", errors.New("soap fault 800"))
	var actionErr *speaker.ActionError
	require.ErrorAs(t, f.speaker("a").PartyMode(ctx), &actionErr)
	require.Equal(t, "c", actionErr.UID)
}

func TestRefreshInfoMirrorsIdentity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a")
	f.devices["a"].SetInfo(speaker.Info{UID: "a", IP: "10.0.0.5", Model: "Sonos One", ZoneName: "Kitchen"})

	require.NoError(t, f.speaker("a").RefreshInfo(ctx))
	require.Equal(t, "10.0.0.5", f.speaker("a").Get(speaker.PropIP))
	require.Equal(t, "Kitchen", f.speaker("a").Get(speaker.PropZoneName))
}

func TestParseProperty(t *testing.T) {
	p, err := speaker.ParseProperty("Track_Title")
	require.NoError(t, err)
	require.Equal(t, speaker.PropTrackTitle, p)
	require.True(t, p.Forwarded())

	_, err = speaker.ParseProperty("bogus")
	require.ErrorIs(t, err, speaker.ErrUnknownProperty)
}

func TestJoinUsesTargetCoordinator(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b", "c")
	f.group(t, "a", "b")

	require.NoError(t, f.speaker("c").Join(ctx, "b"))
	calls := f.devices["c"].Calls()
	require.Equal(t, "join", calls[len(calls)-1].Op)
	require.Equal(t, "a", calls[len(calls)-1].Value)

	require.ErrorIs(t, f.speaker("c").Join(ctx, "ghost"), speaker.ErrSpeakerNotFound)
	require.Same(t, f.speaker("a"), f.registry.Coordinator("b"))
}
