package speaker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirtySetKeepsInsertionOrderWithoutDuplicates(t *testing.T) {
	var d DirtySet
	d.Add(PropVolume, PropMute, PropVolume, PropTrackTitle)

	require.Equal(t, 3, d.Len())
	require.True(t, d.Contains(PropMute))
	require.False(t, d.Contains(PropBass))
	require.Equal(t, []Property{PropVolume, PropMute, PropTrackTitle}, d.Properties())
}

func TestDirtySetDrainClears(t *testing.T) {
	var d DirtySet
	d.Add(PropBalance, PropStatus)

	drained := d.Drain()
	require.Equal(t, []Property{PropBalance, PropStatus}, drained)
	require.Zero(t, d.Len())
	require.False(t, d.Contains(PropBalance))

	d.Add(PropBalance)
	require.Equal(t, []Property{PropBalance}, d.Properties())
}
