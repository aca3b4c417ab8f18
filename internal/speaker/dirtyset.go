package speaker

// DirtySet is the set of properties changed since the last flush.
// It keeps insertion order so payloads are stable. Not safe for concurrent use.
type DirtySet struct {
	bits  uint64
	order []Property
}

// Add marks properties dirty. Adding an already dirty property is a no-op.
func (d *DirtySet) Add(props ...Property) {
	for _, p := range props {
		if !p.Valid() || d.bits&p.bit() != 0 {
			continue
		}
		d.bits |= p.bit()
		d.order = append(d.order, p)
	}
}

func (d *DirtySet) Contains(p Property) bool {
	return p.Valid() && d.bits&p.bit() != 0
}

func (d *DirtySet) Len() int {
	return len(d.order)
}

// Properties returns a copy of the dirty properties in insertion order.
func (d *DirtySet) Properties() []Property {
	return append([]Property(nil), d.order...)
}

// Drain returns the dirty properties and clears the set.
func (d *DirtySet) Drain() []Property {
	out := d.order
	d.bits = 0
	d.order = nil
	return out
}
