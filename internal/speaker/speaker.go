package speaker

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
)

const defaultTime = "00:00:00"

// SetOptions controls a property write.
type SetOptions struct {
	// Trigger actuates the change on the device before it is mirrored.
	Trigger bool
	// Group applies the same write to every other member of the zone.
	Group bool
}

// Payload is the set of changed properties of one speaker, keyed by wire name.
type Payload map[string]any

// Speaker mirrors the state of one physical device.
type Speaker struct {
	uid      string
	device   Device
	registry *Registry
	logger   *log.Logger

	mu          sync.Mutex
	values      [propertyCount]any
	dirty       DirtySet
	coordinator string
	members     []string
}

func newSpeaker(uid string, device Device, registry *Registry, logger *log.Logger) *Speaker {
	s := &Speaker{
		uid:         uid,
		device:      device,
		registry:    registry,
		logger:      logger,
		coordinator: uid,
	}
	for i := range s.values {
		s.values[i] = Property(i).zeroValue()
	}
	return s
}

func (s *Speaker) UID() string { return s.uid }

// Device returns the gateway this speaker actuates through.
func (s *Speaker) Device() Device { return s.device }

// Get returns the effective value of a property. Forwarded properties are
// read from the zone coordinator.
func (s *Speaker) Get(p Property) any {
	switch p {
	case PropIsCoordinator:
		return s.IsCoordinator()
	case PropAdditionalZoneMembers:
		return strings.Join(s.ZoneMemberUIDs(), ",")
	}
	if p.Forwarded() {
		if coord := s.coordinatorSpeaker(); coord != nil {
			return coord.localValue(p)
		}
	}
	return s.localValue(p)
}

// Values returns the effective value of every property.
func (s *Speaker) Values() Payload {
	out := make(Payload, propertyCount+1)
	for _, p := range AllProperties() {
		out[p.String()] = s.Get(p)
	}
	out["uid"] = s.uid
	return out
}

func (s *Speaker) GetInt(p Property) int {
	v, _ := s.Get(p).(int)
	return v
}

func (s *Speaker) GetBool(p Property) bool {
	v, _ := s.Get(p).(bool)
	return v
}

func (s *Speaker) GetString(p Property) string {
	v, _ := s.Get(p).(string)
	return v
}

func (s *Speaker) localValue(p Property) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valueLocked(p)
}

func (s *Speaker) valueLocked(p Property) any {
	v := s.values[p]
	if (p == PropTrackDuration || p == PropTrackPosition) && v == "" {
		return defaultTime
	}
	return v
}

// IsCoordinator reports whether the speaker coordinates its zone.
func (s *Speaker) IsCoordinator() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coordinator == "" || s.coordinator == s.uid
}

// CoordinatorUID returns the uid of the zone coordinator (the speaker itself when standalone).
func (s *Speaker) CoordinatorUID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.coordinator == "" {
		return s.uid
	}
	return s.coordinator
}

// Coordinator returns the zone coordinator, which may be the speaker itself.
func (s *Speaker) Coordinator() *Speaker {
	if coord := s.coordinatorSpeaker(); coord != nil {
		return coord
	}
	return s
}

// coordinatorSpeaker returns another speaker coordinating this one, or nil.
func (s *Speaker) coordinatorSpeaker() *Speaker {
	uid := s.CoordinatorUID()
	if uid == s.uid || s.registry == nil {
		return nil
	}
	return s.registry.Get(uid)
}

// Members returns the other speakers of the zone. Only a coordinator holds members.
func (s *Speaker) Members() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.members...)
}

// ZoneMemberUIDs returns every other speaker sharing the zone, coordinator included.
func (s *Speaker) ZoneMemberUIDs() []string {
	coord := s.coordinatorSpeaker()
	if coord == nil {
		return s.Members()
	}
	out := []string{coord.uid}
	for _, uid := range coord.Members() {
		if uid != s.uid {
			out = append(out, uid)
		}
	}
	return out
}

// Set writes a property. Writing the current effective value is a no-op.
func (s *Speaker) Set(ctx context.Context, p Property, value any, opts SetOptions) error {
	if !p.Valid() {
		return ErrUnknownProperty
	}
	desc := p.Descriptor()
	if desc.Access == AccessDerived {
		return ErrReadOnly
	}
	if opts.Trigger && desc.Access == AccessReadOnly {
		return ErrReadOnly
	}
	v, err := normalize(p, value)
	if err != nil {
		return err
	}

	switch p {
	case PropPlay, PropPause, PropStop:
		err = s.setTransport(ctx, p, v.(bool), opts.Trigger)
	case PropVolume:
		err = s.setVolume(ctx, v.(int), opts.Trigger)
	case PropMaxVolume:
		err = s.setMaxVolume(ctx, v.(int), opts.Trigger)
	case PropBalance:
		if n := v.(int); n < -100 || n > 100 {
			return ErrOutOfRange
		}
		err = s.set(ctx, p, v, opts.Trigger)
	case PropStatus:
		s.setStatus(v.(bool))
	case PropTrackURI:
		s.setTrackURI(v.(string))
	default:
		err = s.set(ctx, p, v, opts.Trigger)
	}
	if err != nil {
		return err
	}
	if opts.Group {
		return s.propagate(ctx, p, v, opts.Trigger)
	}
	return nil
}

// set is the generic write: compare, actuate, store, mark dirty.
func (s *Speaker) set(ctx context.Context, p Property, v any, trigger bool) error {
	if valuesEqual(s.Get(p), v) {
		return nil
	}
	if trigger {
		if err := s.actuate(ctx, p, v); err != nil {
			return err
		}
	}
	s.store(pv(p, v))
	return nil
}

// actuate performs the device side of a write, routing forwarded
// properties through the coordinator.
func (s *Speaker) actuate(ctx context.Context, p Property, v any) error {
	if p.Forwarded() {
		if coord := s.coordinatorSpeaker(); coord != nil {
			return coord.Set(ctx, p, v, SetOptions{Trigger: true})
		}
	}
	if p.Descriptor().Access != AccessActuated {
		return nil
	}
	if err := s.device.SetProperty(ctx, p, v); err != nil {
		return &ActionError{Op: "set " + p.String(), UID: s.uid, Err: err}
	}
	return nil
}

// store mirrors values and marks them dirty. When the speaker coordinates
// a zone, changed forwarded properties also become dirty on its members.
func (s *Speaker) store(values ...propertyValue) {
	var forwarded []Property
	s.mu.Lock()
	for _, item := range values {
		if valuesEqual(s.values[item.p], item.v) {
			continue
		}
		s.values[item.p] = item.v
		s.dirty.Add(item.p)
		if item.p.Forwarded() {
			forwarded = append(forwarded, item.p)
		}
	}
	isCoordinator := s.coordinator == "" || s.coordinator == s.uid
	members := append([]string(nil), s.members...)
	s.mu.Unlock()

	if !isCoordinator || len(forwarded) == 0 || s.registry == nil {
		return
	}
	for _, uid := range members {
		if m := s.registry.Get(uid); m != nil {
			m.MarkDirty(forwarded...)
		}
	}
}

type propertyValue struct {
	p Property
	v any
}

func pv(p Property, v any) propertyValue { return propertyValue{p: p, v: v} }

// propagate applies a write to the rest of the zone, after the speaker itself.
func (s *Speaker) propagate(ctx context.Context, p Property, v any, trigger bool) error {
	if s.registry == nil {
		return nil
	}
	var errs []error
	for _, uid := range s.ZoneMemberUIDs() {
		m := s.registry.Get(uid)
		if m == nil {
			continue
		}
		if err := m.Set(ctx, p, v, SetOptions{Trigger: trigger}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MarkDirty forces properties into the next flush without changing them.
func (s *Speaker) MarkDirty(props ...Property) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty.Add(props...)
}

// markZoneDirty marks properties dirty on the speaker and, when it
// coordinates a zone, on every member.
func (s *Speaker) markZoneDirty(props ...Property) {
	s.MarkDirty(props...)
	if s.registry == nil || !s.IsCoordinator() {
		return
	}
	for _, uid := range s.Members() {
		if m := s.registry.Get(uid); m != nil {
			m.MarkDirty(props...)
		}
	}
}

// MarkAllDirty schedules a full state report.
func (s *Speaker) MarkAllDirty() {
	s.MarkDirty(AllProperties()...)
}

// MarkMusicDirty schedules the zone playback/metadata properties.
func (s *Speaker) MarkMusicDirty() {
	s.MarkDirty(musicProperties...)
}

// Dirty returns the pending dirty properties.
func (s *Speaker) Dirty() []Property {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty.Properties()
}

func (s *Speaker) HasDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty.Len() > 0
}

// TakeDirty drains the dirty set and resolves the current effective values.
// It returns nil when nothing is dirty.
func (s *Speaker) TakeDirty() Payload {
	s.mu.Lock()
	props := s.dirty.Drain()
	if len(props) == 0 {
		s.mu.Unlock()
		return nil
	}
	isCoordinator := s.coordinator == "" || s.coordinator == s.uid
	out := make(Payload, len(props)+1)
	var deferred []Property
	for _, p := range props {
		switch {
		case p == PropIsCoordinator:
			out[p.String()] = isCoordinator
		case p == PropAdditionalZoneMembers, p.Forwarded() && !isCoordinator:
			deferred = append(deferred, p)
		default:
			out[p.String()] = s.valueLocked(p)
		}
	}
	s.mu.Unlock()

	for _, p := range deferred {
		out[p.String()] = s.Get(p)
	}
	out["uid"] = s.uid
	return out
}
