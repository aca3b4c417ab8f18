package notify

import (
	"encoding/json"
	"log"

	"github.com/strefethen/sonos-broker-go/internal/metrics"
	"github.com/strefethen/sonos-broker-go/internal/speaker"
)

// Dispatcher flushes speaker dirty sets to a Sink.
type Dispatcher struct {
	registry *speaker.Registry
	sink     Sink
	logger   *log.Logger
}

// NewDispatcher creates a dispatcher. A nil logger uses log.Default().
func NewDispatcher(registry *speaker.Registry, sink Sink, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{registry: registry, sink: sink, logger: logger}
}

// Flush sends the dirty properties of s, if any, and reports whether a payload went out.
func (d *Dispatcher) Flush(s *speaker.Speaker) bool {
	payload := s.TakeDirty()
	if payload == nil {
		return false
	}
	data, err := json.Marshal(payload)
	if err != nil {
		d.logger.Printf("NOTIFY: encode payload for %s: %v", s.UID(), err)
		return false
	}
	if err := d.sink.Deliver(data); err != nil {
		metrics.NotificationsDropped.WithLabelValues(d.sink.Name()).Inc()
		d.logger.Printf("NOTIFY: deliver %s (%d properties): %v", s.UID(), len(payload)-1, err)
		return true
	}
	metrics.NotificationsSent.WithLabelValues(d.sink.Name()).Inc()
	return true
}

// FlushGroup flushes s and then every other zone member with pending changes.
func (d *Dispatcher) FlushGroup(s *speaker.Speaker) int {
	sent := 0
	if d.Flush(s) {
		sent++
	}
	for _, uid := range s.ZoneMemberUIDs() {
		m := d.registry.Get(uid)
		if m == nil || !m.HasDirty() {
			continue
		}
		if d.Flush(m) {
			sent++
		}
	}
	return sent
}

// FlushAll flushes every registered speaker.
func (d *Dispatcher) FlushAll() int {
	sent := 0
	for _, s := range d.registry.List() {
		if d.Flush(s) {
			sent++
		}
	}
	return sent
}

// MarkAllDirty schedules a full report of s.
func (d *Dispatcher) MarkAllDirty(s *speaker.Speaker) {
	s.MarkAllDirty()
}

// MarkGroupDirty schedules a full report of s and every other zone member.
func (d *Dispatcher) MarkGroupDirty(s *speaker.Speaker) {
	s.MarkAllDirty()
	for _, uid := range s.ZoneMemberUIDs() {
		if m := d.registry.Get(uid); m != nil {
			m.MarkAllDirty()
		}
	}
}
