package speaker

import "context"

// ApplyEvent mirrors a decoded device event value-only.
//
// Forwarded properties reported by a zone member are ignored; the coordinator
// is the only source for them. Topology events are handled by the registry.
func (s *Speaker) ApplyEvent(ctx context.Context, ev Event) {
	if ev.Category == CategoryZoneTopology {
		return
	}
	isCoordinator := s.IsCoordinator()

	if ev.TransportState != "" && isCoordinator {
		var err error
		switch ev.TransportState {
		case TransportPlaying:
			err = s.Set(ctx, PropPlay, true, SetOptions{})
		case TransportPaused:
			err = s.Set(ctx, PropPause, true, SetOptions{})
		case TransportStopped:
			err = s.Set(ctx, PropStop, true, SetOptions{})
		}
		if err != nil {
			s.logger.Printf("MIRROR: %s transport state %q: %v", s.uid, ev.TransportState, err)
		}
	}

	for _, p := range AllProperties() {
		v, ok := ev.Values[p]
		if !ok {
			continue
		}
		if p.Forwarded() && !isCoordinator {
			continue
		}
		if p.Descriptor().Access == AccessDerived {
			continue
		}
		if err := s.Set(ctx, p, v, SetOptions{}); err != nil {
			s.logger.Printf("MIRROR: %s event value %s=%v rejected: %v", s.uid, p, v, err)
		}
	}
}
