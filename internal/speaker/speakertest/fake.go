// Package speakertest provides an in-memory speaker.Device for tests.
package speakertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strefethen/sonos-broker-go/internal/speaker"
)

// ErrUnreachable is returned by every call while a Device is offline.
var ErrUnreachable = errors.New("device unreachable")

// Call is one recorded gateway invocation.
type Call struct {
	Op    string
	Prop  speaker.Property
	Value any
}

// Device records calls and answers from in-memory state.
type Device struct {
	mu       sync.Mutex
	uid      string
	info     speaker.Info
	values   map[speaker.Property]any
	group    *speaker.Group
	groupErr error
	failOps  map[string]error
	offline  bool
	calls    []Call
	leases   []*Lease
	snapshot *speaker.Snapshot
}

func NewDevice(uid string) *Device {
	return &Device{
		uid:     uid,
		info:    speaker.Info{UID: uid, ZoneName: uid},
		values:  make(map[speaker.Property]any),
		failOps: make(map[string]error),
	}
}

func (d *Device) UID() string { return d.uid }

// SetInfo replaces the identity reported by Info.
func (d *Device) SetInfo(info speaker.Info) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info = info
}

// SetValue sets the value reported by GetProperty.
func (d *Device) SetValue(p speaker.Property, v any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[p] = v
}

// SetGroup sets the zone reported by Group.
func (d *Device) SetGroup(group *speaker.Group, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.group = group
	d.groupErr = err
}

// Fail makes every call named op return err. A nil err clears it.
func (d *Device) Fail(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failOps, op)
		return
	}
	d.failOps[op] = err
}

func (d *Device) SetOffline(offline bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.offline = offline
}

// Calls returns the recorded calls.
func (d *Device) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// Ops returns the recorded operation names.
func (d *Device) Ops() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ops := make([]string, len(d.calls))
	for i, c := range d.calls {
		ops[i] = c.Op
	}
	return ops
}

func (d *Device) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

// Leases returns every lease handed out by Subscribe.
func (d *Device) Leases() []*Lease {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Lease(nil), d.leases...)
}

func (d *Device) record(op string, p speaker.Property, v any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{Op: op, Prop: p, Value: v})
	if d.offline {
		return ErrUnreachable
	}
	return d.failOps[op]
}

func (d *Device) Info(ctx context.Context) (speaker.Info, error) {
	if err := d.record("info", 0, nil); err != nil {
		return speaker.Info{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info, nil
}

func (d *Device) Ping(ctx context.Context) error {
	return d.record("ping", 0, nil)
}

func (d *Device) GetProperty(ctx context.Context, p speaker.Property) (any, error) {
	if err := d.record("get", p, nil); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.values[p]
	if !ok {
		return nil, fmt.Errorf("no value for %s", p)
	}
	return v, nil
}

func (d *Device) SetProperty(ctx context.Context, p speaker.Property, value any) error {
	if err := d.record("set", p, value); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[p] = value
	return nil
}

func (d *Device) Group(ctx context.Context) (*speaker.Group, error) {
	if err := d.record("group", 0, nil); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.group, d.groupErr
}

func (d *Device) Subscribe(ctx context.Context, category speaker.Category, timeout time.Duration, sink chan<- speaker.Event) (speaker.Lease, error) {
	if err := d.record("subscribe", 0, category); err != nil {
		return nil, err
	}
	lease := &Lease{id: "uuid:" + uuid.NewString(), category: category, remaining: timeout}
	d.mu.Lock()
	d.leases = append(d.leases, lease)
	d.mu.Unlock()
	return lease, nil
}

func (d *Device) Snapshot(ctx context.Context) (*speaker.Snapshot, error) {
	if err := d.record("snapshot", 0, nil); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	snap := &speaker.Snapshot{TransportState: speaker.TransportPlaying, URI: "x-rincon-queue:" + d.uid, IsQueue: true}
	if v, ok := d.values[speaker.PropVolume].(int); ok {
		snap.Volume = v
	}
	d.snapshot = snap
	return snap, nil
}

func (d *Device) Restore(ctx context.Context, snap *speaker.Snapshot) error {
	return d.record("restore", 0, snap)
}

func (d *Device) PlayURI(ctx context.Context, uri string) error {
	return d.record("play_uri", 0, uri)
}

func (d *Device) Stop(ctx context.Context) error {
	return d.record("stop", 0, nil)
}

func (d *Device) RampVolume(ctx context.Context, volume int) error {
	return d.record("ramp_volume", 0, volume)
}

func (d *Device) Next(ctx context.Context) error {
	return d.record("next", 0, nil)
}

func (d *Device) Previous(ctx context.Context) error {
	return d.record("previous", 0, nil)
}

func (d *Device) Join(ctx context.Context, coordinatorUID string) error {
	return d.record("join", 0, coordinatorUID)
}

func (d *Device) Unjoin(ctx context.Context) error {
	return d.record("unjoin", 0, nil)
}

func (d *Device) LoadPlaylist(ctx context.Context, name string, clearQueue bool) error {
	return d.record("load_playlist", 0, name)
}

func (d *Device) ClearQueue(ctx context.Context) error {
	return d.record("clear_queue", 0, nil)
}

func (d *Device) AddToQueue(ctx context.Context, uri string) error {
	return d.record("add_to_queue", 0, uri)
}

// Lease is a subscription whose remaining time is set by the test.
type Lease struct {
	mu           sync.Mutex
	id           string
	category     speaker.Category
	remaining    time.Duration
	renewals     int
	unsubscribed bool
	unsubErr     error
}

func (l *Lease) ID() string { return l.id }

func (l *Lease) Category() speaker.Category { return l.category }

func (l *Lease) Renew(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.renewals++
	return nil
}

func (l *Lease) Unsubscribe(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unsubscribed = true
	l.remaining = 0
	return l.unsubErr
}

func (l *Lease) RemainingTime() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remaining
}

// Expire drops the remaining time to zero.
func (l *Lease) Expire() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remaining = 0
}

// FailUnsubscribe makes Unsubscribe return err.
func (l *Lease) FailUnsubscribe(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unsubErr = err
}

func (l *Lease) Unsubscribed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unsubscribed
}

// Zone builds a group with coordinator first.
func Zone(coordinator string, members ...string) *speaker.Group {
	g := &speaker.Group{ID: coordinator + ":1", Members: []speaker.GroupMember{{UID: coordinator, IsCoordinator: true}}}
	for _, m := range members {
		g.Members = append(g.Members, speaker.GroupMember{UID: m})
	}
	return g
}
