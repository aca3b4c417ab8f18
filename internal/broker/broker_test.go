package broker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/sonos-broker-go/internal/discovery"
	"github.com/strefethen/sonos-broker-go/internal/speaker"
	"github.com/strefethen/sonos-broker-go/internal/speaker/speakertest"
)

type recordingSink struct {
	mu       sync.Mutex
	payloads []map[string]any
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Deliver(payload []byte) error {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, m)
	return nil
}

// last returns the most recent payload of uid merged over earlier ones.
func (r *recordingSink) merged(uid string) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]any)
	for _, p := range r.payloads {
		if p["uid"] != uid {
			continue
		}
		for k, v := range p {
			out[k] = v
		}
	}
	return out
}

func (r *recordingSink) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = nil
}

type mockDiscoverer struct{ mock.Mock }

func (m *mockDiscoverer) Discover(ctx context.Context) ([]discovery.Found, error) {
	args := m.Called(ctx)
	found, _ := args.Get(0).([]discovery.Found)
	return found, args.Error(1)
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func newBroker(t *testing.T, discoverer Discoverer, factory DeviceFactory) (*Broker, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	b := New(sink, discoverer, factory, Options{Logger: quietLogger()})
	t.Cleanup(func() { _ = b.Shutdown(context.Background()) })
	return b, sink
}

func newDevice(uid string) *speakertest.Device {
	d := speakertest.NewDevice(uid)
	d.SetValue(speaker.PropVolume, 20)
	d.SetValue(speaker.PropMute, false)
	d.SetGroup(speakertest.Zone(uid), nil)
	return d
}

func TestAddSpeakerMirrorsAndSubscribes(t *testing.T) {
	b, sink := newBroker(t, nil, nil)
	d := newDevice("a")
	d.SetInfo(speaker.Info{UID: "a", Model: "Sonos One", ZoneName: "Kitchen"})

	s, err := b.AddSpeaker(context.Background(), d)
	require.NoError(t, err)
	require.Equal(t, 20, s.GetInt(speaker.PropVolume))
	require.Equal(t, "Kitchen", s.GetString(speaker.PropZoneName))

	require.Len(t, d.Leases(), len(speaker.Categories))
	require.ElementsMatch(t, speaker.Categories, b.Subscriptions("a").Active())
	require.Equal(t, 2, b.Tasks().Len("a"))

	payload := sink.merged("a")
	require.Equal(t, float64(20), payload["volume"])
	require.Equal(t, "Sonos One", payload["model"])
	require.Equal(t, true, payload["status"])

	again, err := b.AddSpeaker(context.Background(), d)
	require.NoError(t, err)
	require.Same(t, s, again)
	require.Len(t, d.Leases(), len(speaker.Categories))
}

func TestAddUnreachableSpeakerSkipsSubscribe(t *testing.T) {
	b, _ := newBroker(t, nil, nil)
	d := newDevice("a")
	d.SetOffline(true)

	s, err := b.AddSpeaker(context.Background(), d)
	require.NoError(t, err)
	require.False(t, s.IsReachable())
	require.Empty(t, d.Leases())
}

func TestHandleEventUpdatesMirrorAndFlushes(t *testing.T) {
	b, sink := newBroker(t, nil, nil)
	ctx := context.Background()
	_, err := b.AddSpeaker(ctx, newDevice("a"))
	require.NoError(t, err)
	sink.reset()

	b.HandleEvent(ctx, speaker.Event{
		UID:      "a",
		Category: speaker.CategoryRenderingControl,
		Values:   map[speaker.Property]any{speaker.PropVolume: "33"},
	})

	require.Equal(t, 33, b.Registry().Get("a").GetInt(speaker.PropVolume))
	require.Equal(t, float64(33), sink.merged("a")["volume"])
}

func TestHandleEventUnknownSpeakerIsIgnored(t *testing.T) {
	b, sink := newBroker(t, nil, nil)
	b.HandleEvent(context.Background(), speaker.Event{UID: "ghost", Category: speaker.CategoryAVTransport})
	require.Empty(t, sink.merged("ghost"))
}

func TestTopologyEventRecomputesZone(t *testing.T) {
	b, sink := newBroker(t, nil, nil)
	ctx := context.Background()
	da, db := newDevice("a"), newDevice("b")
	_, err := b.AddSpeaker(ctx, da)
	require.NoError(t, err)
	_, err = b.AddSpeaker(ctx, db)
	require.NoError(t, err)
	sink.reset()

	zone := speakertest.Zone("a", "b")
	da.SetGroup(zone, nil)
	db.SetGroup(zone, nil)
	b.HandleEvent(ctx, speaker.Event{UID: "b", Category: speaker.CategoryZoneTopology})

	require.Equal(t, []string{"b"}, b.Registry().Get("a").Members())
	require.Equal(t, "a", b.Registry().Get("b").CoordinatorUID())
	require.Equal(t, false, sink.merged("b")["is_coordinator"])
}

func TestAlarmEventRefreshesAlarms(t *testing.T) {
	b, _ := newBroker(t, nil, nil)
	ctx := context.Background()
	d := newDevice("a")
	_, err := b.AddSpeaker(ctx, d)
	require.NoError(t, err)

	alarms := map[string]any{"7": map[string]any{"Enabled": true}}
	d.SetValue(speaker.PropAlarms, alarms)
	b.HandleEvent(ctx, speaker.Event{UID: "a", Category: speaker.CategoryAlarmClock})

	require.Equal(t, alarms, b.Registry().Get("a").Get(speaker.PropAlarms))
}

func TestTransportEventReachesSnippetWaiter(t *testing.T) {
	b, _ := newBroker(t, nil, nil)
	ctx := context.Background()
	_, err := b.AddSpeaker(ctx, newDevice("a"))
	require.NoError(t, err)

	// No override is running; the event only mirrors the transport state.
	b.HandleEvent(ctx, speaker.Event{UID: "a", Category: speaker.CategoryAVTransport, TransportState: speaker.TransportPlaying})
	require.True(t, b.Registry().Get("a").GetBool(speaker.PropPlay))
	require.False(t, b.Snippets().Running("a"))
}

func TestPollStatusOfflineAndBack(t *testing.T) {
	b, sink := newBroker(t, nil, nil)
	ctx := context.Background()
	d := newDevice("a")
	_, err := b.AddSpeaker(ctx, d)
	require.NoError(t, err)
	first := d.Leases()

	d.SetOffline(true)
	reachable, err := b.PollStatus(ctx, "a")
	require.NoError(t, err)
	require.False(t, reachable)
	require.Empty(t, b.Subscriptions("a").Active())
	for _, l := range first {
		require.True(t, l.Unsubscribed())
	}
	require.Equal(t, false, sink.merged("a")["status"])

	d.SetOffline(false)
	reachable, err = b.PollStatus(ctx, "a")
	require.NoError(t, err)
	require.True(t, reachable)
	require.Len(t, d.Leases(), 2*len(speaker.Categories))
	require.Equal(t, true, sink.merged("a")["status"])

	_, err = b.PollStatus(ctx, "ghost")
	require.ErrorIs(t, err, speaker.ErrSpeakerNotFound)
}

func TestRemoveSpeaker(t *testing.T) {
	b, _ := newBroker(t, nil, nil)
	ctx := context.Background()
	d := newDevice("a")
	_, err := b.AddSpeaker(ctx, d)
	require.NoError(t, err)

	require.NoError(t, b.RemoveSpeaker(ctx, "A"))
	require.Nil(t, b.Registry().Get("a"))
	require.Nil(t, b.Subscriptions("a"))
	require.Zero(t, b.Tasks().Len("a"))
	for _, l := range d.Leases() {
		require.True(t, l.Unsubscribed())
	}

	require.ErrorIs(t, b.RemoveSpeaker(ctx, "a"), speaker.ErrSpeakerNotFound)
}

func TestDiscoverAddsNewPlayers(t *testing.T) {
	disc := &mockDiscoverer{}
	disc.On("Discover", mock.Anything).Return([]discovery.Found{{UID: "RINCON_A", Host: "10.0.0.2"}, {UID: "RINCON_B", Host: "10.0.0.3"}}, nil)
	devices := map[string]*speakertest.Device{}
	factory := func(f discovery.Found) speaker.Device {
		d := newDevice(f.UID)
		devices[f.UID] = d
		return d
	}
	b, _ := newBroker(t, disc, factory)
	ctx := context.Background()

	added, err := b.Discover(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, added)
	require.NotNil(t, b.Registry().Get("rincon_a"))

	added, err = b.Discover(ctx)
	require.NoError(t, err)
	require.Zero(t, added)
	disc.AssertNumberOfCalls(t, "Discover", 2)
}

func TestDiscoverError(t *testing.T) {
	disc := &mockDiscoverer{}
	disc.On("Discover", mock.Anything).Return(nil, errors.New("no network"))
	b, _ := newBroker(t, disc, func(discovery.Found) speaker.Device { return nil })

	_, err := b.Discover(context.Background())
	require.Error(t, err)

	unconfigured, _ := newBroker(t, nil, nil)
	_, err = unconfigured.Discover(context.Background())
	require.Error(t, err)
}

func TestRunConsumesEvents(t *testing.T) {
	b, _ := newBroker(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	_, err := b.AddSpeaker(ctx, newDevice("a"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	b.Events() <- speaker.Event{UID: "a", Category: speaker.CategoryRenderingControl, Values: map[speaker.Property]any{speaker.PropMute: "1"}}
	require.Eventually(t, func() bool {
		return b.Registry().Get("a").GetBool(speaker.PropMute)
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
