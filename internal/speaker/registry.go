package speaker

import (
	"context"
	"log"
	"slices"
	"sort"
	"strings"
	"sync"
)

// Registry holds every known speaker keyed by uid.
type Registry struct {
	mu       sync.RWMutex
	speakers map[string]*Speaker
	logger   *log.Logger
}

// NewRegistry creates an empty registry. A nil logger uses log.Default().
func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		speakers: make(map[string]*Speaker),
		logger:   logger,
	}
}

// NormalizeUID canonicalizes a speaker uid.
func NormalizeUID(uid string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(uid), "uuid:"))
}

// Add registers a device. If the uid is already known the existing speaker
// is returned and created is false.
func (r *Registry) Add(device Device) (s *Speaker, created bool) {
	uid := NormalizeUID(device.UID())
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.speakers[uid]; ok {
		return existing, false
	}
	s = newSpeaker(uid, device, r, r.logger)
	r.speakers[uid] = s
	return s, true
}

// Get returns the speaker for uid, or nil.
func (r *Registry) Get(uid string) *Speaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.speakers[NormalizeUID(uid)]
}

// Lookup is Get returning ErrSpeakerNotFound for unknown uids.
func (r *Registry) Lookup(uid string) (*Speaker, error) {
	if s := r.Get(uid); s != nil {
		return s, nil
	}
	return nil, ErrSpeakerNotFound
}

// Remove drops uid from the registry and detaches it from the zone it was
// part of. Speakers it coordinated become standalone until the next recompute.
func (r *Registry) Remove(uid string) *Speaker {
	uid = NormalizeUID(uid)
	r.mu.Lock()
	s := r.speakers[uid]
	delete(r.speakers, uid)
	r.mu.Unlock()
	if s == nil {
		return nil
	}
	for _, other := range r.List() {
		other.removeMember(uid)
		if other.CoordinatorUID() == uid {
			other.setTopology(other.uid, nil)
		}
	}
	return s
}

// List returns all speakers ordered by uid.
func (r *Registry) List() []*Speaker {
	r.mu.RLock()
	out := make([]*Speaker, 0, len(r.speakers))
	for _, s := range r.speakers {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].uid < out[j].uid })
	return out
}

// Members returns the member uids of the zone coordinated by uid.
func (r *Registry) Members(uid string) []string {
	if s := r.Get(uid); s != nil {
		return s.Members()
	}
	return nil
}

// Coordinator returns the coordinator of the zone uid belongs to.
func (r *Registry) Coordinator(uid string) *Speaker {
	if s := r.Get(uid); s != nil {
		return s.Coordinator()
	}
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.speakers)
}

// Recompute queries the zone of one speaker and updates its coordinator and
// members. A failed or inconsistent answer leaves the topology untouched.
// It reports whether anything changed.
func (r *Registry) Recompute(ctx context.Context, s *Speaker) (bool, error) {
	group, err := s.device.Group(ctx)
	if err != nil {
		return false, &ActionError{Op: "group", UID: s.uid, Err: err}
	}
	if group == nil || len(group.Members) == 0 {
		return false, nil
	}

	coordUID := ""
	for _, m := range group.Members {
		if m.IsCoordinator {
			coordUID = NormalizeUID(m.UID)
			break
		}
	}
	if coordUID == "" {
		r.logger.Printf("TOPOLOGY: zone of %s reports no coordinator, keeping current topology", s.uid)
		return false, nil
	}
	if r.Get(coordUID) == nil {
		r.logger.Printf("TOPOLOGY: coordinator %s of %s is unknown, keeping current topology", coordUID, s.uid)
		return false, nil
	}

	var members []string
	for _, m := range group.Members {
		uid := NormalizeUID(m.UID)
		if uid == coordUID {
			continue
		}
		if r.Get(uid) == nil {
			r.logger.Printf("TOPOLOGY: member %s of zone %s is unknown, keeping current topology", uid, coordUID)
			return false, nil
		}
		members = append(members, uid)
	}

	if coordUID != s.uid {
		members = nil
	}
	return s.setTopology(coordUID, members), nil
}

// RecomputeAll recomputes every speaker and returns the uids whose topology changed.
func (r *Registry) RecomputeAll(ctx context.Context) []string {
	var changed []string
	for _, s := range r.List() {
		if !s.IsReachable() {
			continue
		}
		ok, err := r.Recompute(ctx, s)
		if err != nil {
			r.logger.Printf("TOPOLOGY: recompute %s failed: %v", s.uid, err)
			continue
		}
		if ok {
			changed = append(changed, s.uid)
		}
	}
	return changed
}

// setTopology installs a new coordinator and member list and reports a change.
func (s *Speaker) setTopology(coordinator string, members []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	coordChanged := s.coordinator != coordinator
	membersChanged := !slices.Equal(s.members, members)
	if !coordChanged && !membersChanged {
		return false
	}
	s.coordinator = coordinator
	s.members = append([]string(nil), members...)
	s.dirty.Add(PropAdditionalZoneMembers)
	if coordChanged {
		s.dirty.Add(PropIsCoordinator)
		s.dirty.Add(musicProperties...)
	}
	return true
}

func (s *Speaker) removeMember(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.Index(s.members, uid)
	if idx < 0 {
		return
	}
	s.members = slices.Delete(s.members, idx, idx+1)
	s.dirty.Add(PropAdditionalZoneMembers)
}
