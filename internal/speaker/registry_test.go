package speaker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/sonos-broker-go/internal/speaker"
	"github.com/strefethen/sonos-broker-go/internal/speaker/speakertest"
)

func TestRegistryAddIsIdempotent(t *testing.T) {
	f := newFixture(t, "rincon_a")

	s, created := f.registry.Add(speakertest.NewDevice("uuid:RINCON_A"))
	require.False(t, created)
	require.Same(t, f.speaker("rincon_a"), s)
	require.Equal(t, 1, f.registry.Len())

	_, err := f.registry.Lookup("missing")
	require.ErrorIs(t, err, speaker.ErrSpeakerNotFound)
}

func TestRecomputeUnknownMemberIsNoOp(t *testing.T) {
	f := newFixture(t, "a", "b")
	f.devices["a"].SetGroup(speakertest.Zone("a", "b", "ghost"), nil)

	changed, err := f.registry.Recompute(context.Background(), f.speaker("a"))
	require.NoError(t, err)
	require.False(t, changed)
	require.Empty(t, f.speaker("a").Members())
}

func TestRecomputeUnknownCoordinatorIsNoOp(t *testing.T) {
	f := newFixture(t, "a", "b")
	f.group(t, "a", "b")
	f.devices["b"].SetGroup(speakertest.Zone("ghost", "b"), nil)

	changed, err := f.registry.Recompute(context.Background(), f.speaker("b"))
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, "a", f.speaker("b").CoordinatorUID())
}

func TestRecomputeGroupErrorIsNoOp(t *testing.T) {
	f := newFixture(t, "a", "b")
	f.group(t, "a", "b")
	f.devices["a"].SetGroup(nil, errors.New("connection refused"))

	changed, err := f.registry.Recompute(context.Background(), f.speaker("a"))
	require.Error(t, err)
	require.False(t, changed)
	require.Equal(t, []string{"b"}, f.speaker("a").Members())

	f.devices["a"].SetGroup(nil, nil)
	changed, err = f.registry.Recompute(context.Background(), f.speaker("a"))
	require.NoError(t, err)
	require.False(t, changed)
}

func TestRecomputeAllReportsChanges(t *testing.T) {
	f := newFixture(t, "a", "b", "c")
	f.group(t, "a", "b")
	f.drain()

	zone := speakertest.Zone("c", "a", "b")
	for _, d := range f.devices {
		d.SetGroup(zone, nil)
	}
	changed := f.registry.RecomputeAll(context.Background())

	require.ElementsMatch(t, []string{"a", "b", "c"}, changed)
	require.Equal(t, []string{"a", "b"}, f.speaker("c").Members())
	require.Empty(t, f.speaker("a").Members())

	payload := f.speaker("a").TakeDirty()
	require.Equal(t, false, payload["is_coordinator"])
	require.Equal(t, "c,b", payload["additional_zone_members"])
}

func TestRemoveDetachesZone(t *testing.T) {
	f := newFixture(t, "a", "b", "c")
	f.group(t, "a", "b", "c")

	require.NotNil(t, f.registry.Remove("b"))
	require.Equal(t, []string{"c"}, f.speaker("a").Members())

	require.NotNil(t, f.registry.Remove("a"))
	require.True(t, f.speaker("c").IsCoordinator())
	require.Nil(t, f.registry.Remove("a"))
}

func TestRecomputeKeepsReportedMemberOrder(t *testing.T) {
	f := newFixture(t, "a", "b", "c", "d")
	f.group(t, "a", "d", "b", "c")

	require.Equal(t, []string{"d", "b", "c"}, f.speaker("a").Members())
	payload := f.speaker("a").TakeDirty()
	require.Equal(t, "d,b,c", payload["additional_zone_members"])
}
