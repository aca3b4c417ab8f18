// Package broker wires the speaker mirror to device events, subscriptions,
// periodic tasks, notifications and overrides.
package broker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/strefethen/sonos-broker-go/internal/discovery"
	"github.com/strefethen/sonos-broker-go/internal/metrics"
	"github.com/strefethen/sonos-broker-go/internal/notify"
	"github.com/strefethen/sonos-broker-go/internal/scheduler"
	"github.com/strefethen/sonos-broker-go/internal/snippet"
	"github.com/strefethen/sonos-broker-go/internal/speaker"
	"github.com/strefethen/sonos-broker-go/internal/subscription"
)

const discoveryTaskKey = "discovery"

// initialProperties are read from the device when a speaker is added or
// comes back online. Forwarded ones are read on the zone coordinator.
var initialProperties = append(speaker.MusicProperties(),
	speaker.PropVolume,
	speaker.PropBass,
	speaker.PropTreble,
	speaker.PropLoudness,
	speaker.PropNightMode,
	speaker.PropLED,
	speaker.PropBalance,
	speaker.PropAlarms,
	speaker.PropSonosPlaylists,
	speaker.PropWifiState,
)

// Discoverer finds players on the network.
type Discoverer interface {
	Discover(ctx context.Context) ([]discovery.Found, error)
}

// DeviceFactory builds the Device Gateway of a discovered player.
type DeviceFactory func(found discovery.Found) speaker.Device

// Options configures a Broker.
type Options struct {
	SubscriptionTimeout       time.Duration
	SubscriptionCheckInterval time.Duration
	StatusPollInterval        time.Duration
	FlushInterval             time.Duration
	DiscoveryInterval         time.Duration
	SnippetTimeout            time.Duration
	// EventBuffer is the capacity of the inbound event channel.
	EventBuffer int
	Logger      *log.Logger
}

// Broker owns the process-wide speaker state.
type Broker struct {
	registry   *speaker.Registry
	dispatcher *notify.Dispatcher
	snippets   *snippet.Controller
	tasks      *scheduler.Tasks
	discoverer Discoverer
	newDevice  DeviceFactory
	events     chan speaker.Event
	opts       Options
	logger     *log.Logger

	// ctx scopes the periodic tasks; cancelled by Shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	managers map[string]*subscription.Manager
}

// New creates a broker publishing to sink. discoverer and newDevice may be
// nil when speakers are added explicitly.
func New(sink notify.Sink, discoverer Discoverer, newDevice DeviceFactory, opts Options) *Broker {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.SubscriptionTimeout <= 0 {
		opts.SubscriptionTimeout = subscription.DefaultTimeout
	}
	if opts.SubscriptionCheckInterval <= 0 {
		opts.SubscriptionCheckInterval = 2 * time.Minute
	}
	if opts.StatusPollInterval <= 0 {
		opts.StatusPollInterval = time.Minute
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 200 * time.Millisecond
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}

	registry := speaker.NewRegistry(opts.Logger)
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		registry:   registry,
		dispatcher: notify.NewDispatcher(registry, sink, opts.Logger),
		snippets:   snippet.NewController(registry, opts.SnippetTimeout, opts.Logger),
		tasks:      scheduler.NewTasks(opts.Logger),
		discoverer: discoverer,
		newDevice:  newDevice,
		events:     make(chan speaker.Event, opts.EventBuffer),
		opts:       opts,
		logger:     opts.Logger,
		ctx:        ctx,
		cancel:     cancel,
		managers:   make(map[string]*subscription.Manager),
	}
}

func (b *Broker) Registry() *speaker.Registry    { return b.registry }
func (b *Broker) Dispatcher() *notify.Dispatcher { return b.dispatcher }
func (b *Broker) Snippets() *snippet.Controller  { return b.snippets }
func (b *Broker) Events() chan<- speaker.Event   { return b.events }
func (b *Broker) Tasks() *scheduler.Tasks        { return b.tasks }

// Subscriptions returns the subscription manager of uid, or nil.
func (b *Broker) Subscriptions(uid string) *subscription.Manager {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.managers[speaker.NormalizeUID(uid)]
}

// Start schedules the periodic discovery task and starts the task runner.
func (b *Broker) Start() {
	if b.discoverer != nil && b.newDevice != nil && b.opts.DiscoveryInterval > 0 {
		_, err := b.tasks.Every(discoveryTaskKey, b.opts.DiscoveryInterval, func() {
			if _, err := b.Discover(b.ctx); err != nil {
				b.logger.Printf("DISCOVERY: periodic run failed: %v", err)
			}
		})
		if err != nil {
			b.logger.Printf("DISCOVERY: schedule failed: %v", err)
		}
	}
	b.tasks.Start()
}

// AddSpeaker registers a device, mirrors its initial state, subscribes to
// its events and schedules its renewal and status poll. Adding a known
// device returns the existing speaker.
func (b *Broker) AddSpeaker(ctx context.Context, device speaker.Device) (*speaker.Speaker, error) {
	s, created := b.registry.Add(device)
	if !created {
		return s, nil
	}
	metrics.Speakers.Set(float64(b.registry.Len()))
	uid := s.UID()
	b.logger.Printf("MIRROR: added speaker %s", uid)

	b.refresh(ctx, s)

	manager := subscription.NewManager(device, b.events, subscription.Options{
		Timeout: b.opts.SubscriptionTimeout,
		Logger:  b.logger,
	})
	b.mu.Lock()
	b.managers[uid] = manager
	b.mu.Unlock()
	if s.IsReachable() {
		manager.Renew(ctx)
	}

	if _, err := b.tasks.Every(uid, b.opts.SubscriptionCheckInterval, func() {
		if s.IsReachable() {
			manager.Renew(b.ctx)
		}
	}); err != nil {
		return s, err
	}
	if _, err := b.tasks.Every(uid, b.opts.StatusPollInterval, func() {
		if _, err := b.PollStatus(b.ctx, uid); err != nil {
			b.logger.Printf("MIRROR: status poll %s: %v", uid, err)
		}
	}); err != nil {
		return s, err
	}

	b.dispatcher.FlushGroup(s)
	return s, nil
}

// refresh pings the speaker and, when reachable, reloads its identity,
// topology and initial properties, then schedules a full report of its zone.
func (b *Broker) refresh(ctx context.Context, s *speaker.Speaker) {
	if s.Ping(ctx) {
		if err := s.RefreshInfo(ctx); err != nil {
			b.logger.Printf("MIRROR: %v", err)
		}
		b.recompute(ctx)
		if err := s.Refresh(ctx, initialProperties...); err != nil {
			b.logger.Printf("MIRROR: initial refresh of %s: %v", s.UID(), err)
		}
	}
	b.dispatcher.MarkGroupDirty(s)
}

// Refresh reloads a speaker from its device and reports its zone.
func (b *Broker) Refresh(ctx context.Context, uid string) (*speaker.Speaker, error) {
	s, err := b.registry.Lookup(uid)
	if err != nil {
		return nil, err
	}
	b.refresh(ctx, s)
	b.dispatcher.FlushGroup(s)
	return s, nil
}

// recompute refreshes every zone and schedules a report of the changed ones.
func (b *Broker) recompute(ctx context.Context) {
	for _, uid := range b.registry.RecomputeAll(ctx) {
		if s := b.registry.Get(uid); s != nil {
			b.dispatcher.MarkGroupDirty(s)
		}
	}
}

// RemoveSpeaker unsubscribes and forgets a speaker.
func (b *Broker) RemoveSpeaker(ctx context.Context, uid string) error {
	uid = speaker.NormalizeUID(uid)
	s := b.registry.Get(uid)
	if s == nil {
		return speaker.ErrSpeakerNotFound
	}
	formerZone := append(s.ZoneMemberUIDs(), s.CoordinatorUID())

	b.tasks.Cancel(uid)
	b.mu.Lock()
	manager := b.managers[uid]
	delete(b.managers, uid)
	b.mu.Unlock()
	if manager != nil {
		manager.UnsubscribeAll(ctx)
	}
	b.snippets.Stop(uid)

	b.registry.Remove(uid)
	metrics.Speakers.Set(float64(b.registry.Len()))
	b.logger.Printf("MIRROR: removed speaker %s", uid)

	b.recompute(ctx)
	for _, other := range formerZone {
		if m := b.registry.Get(other); m != nil {
			b.dispatcher.MarkGroupDirty(m)
			b.dispatcher.FlushGroup(m)
		}
	}
	return nil
}

// PollStatus pings a speaker. Going offline resets its state and drops its
// subscriptions; coming back reloads it and subscribes again.
func (b *Broker) PollStatus(ctx context.Context, uid string) (bool, error) {
	s, err := b.registry.Lookup(uid)
	if err != nil {
		return false, err
	}
	was := s.IsReachable()
	reachable := s.Ping(ctx)
	manager := b.Subscriptions(uid)

	switch {
	case was && !reachable:
		b.logger.Printf("MIRROR: %s went offline", s.UID())
		if manager != nil {
			manager.UnsubscribeAll(ctx)
		}
		b.snippets.Stop(s.UID())
		b.recompute(ctx)
	case !was && reachable:
		b.logger.Printf("MIRROR: %s is back online", s.UID())
		b.refresh(ctx, s)
		if manager != nil {
			manager.Renew(ctx)
		}
	case reachable:
		if err := s.RefreshTrackPosition(ctx); err != nil {
			b.logger.Printf("MIRROR: %v", err)
		}
	}
	b.dispatcher.FlushGroup(s)
	return reachable, nil
}

// Discover runs discovery and adds every new player. It returns how many
// speakers were added.
func (b *Broker) Discover(ctx context.Context) (int, error) {
	if b.discoverer == nil || b.newDevice == nil {
		return 0, errors.New("discovery is not configured")
	}
	found, err := b.discoverer.Discover(ctx)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, f := range found {
		if b.registry.Get(f.UID) != nil {
			continue
		}
		if _, err := b.AddSpeaker(ctx, b.newDevice(f)); err != nil {
			b.logger.Printf("DISCOVERY: add %s: %v", f.UID, err)
			continue
		}
		added++
	}
	return added, nil
}

// Run consumes device events and flushes pending changes periodically
// until ctx is done.
func (b *Broker) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-b.events:
			b.HandleEvent(ctx, ev)
		case <-ticker.C:
			b.dispatcher.FlushAll()
		}
	}
}

// HandleEvent applies one device event and flushes the affected zone.
func (b *Broker) HandleEvent(ctx context.Context, ev speaker.Event) {
	metrics.EventsReceived.WithLabelValues(string(ev.Category)).Inc()
	s := b.registry.Get(ev.UID)
	if s == nil {
		b.logger.Printf("UPNP: %s event for unknown speaker %s", ev.Category, ev.UID)
		return
	}

	switch ev.Category {
	case speaker.CategoryZoneTopology:
		b.recompute(ctx)
	case speaker.CategoryAlarmClock:
		if err := s.RefreshAlarms(ctx); err != nil {
			b.logger.Printf("MIRROR: %v", err)
		}
	default:
		s.ApplyEvent(ctx, ev)
		if ev.TransportState != "" && s.IsCoordinator() {
			b.snippets.ObserveTransport(s.UID(), ev.TransportState)
		}
	}
	b.dispatcher.FlushGroup(s)
}

// Shutdown stops the periodic tasks and cancels every subscription.
func (b *Broker) Shutdown(ctx context.Context) error {
	b.cancel()
	err := b.tasks.Stop(ctx)

	b.mu.Lock()
	managers := make([]*subscription.Manager, 0, len(b.managers))
	for _, m := range b.managers {
		managers = append(managers, m)
	}
	b.mu.Unlock()
	for _, m := range managers {
		m.UnsubscribeAll(ctx)
	}
	return err
}
