package recorder

// ring keeps the most recent items up to a fixed capacity.
type ring struct {
	items []Interval
	head  int
	full  bool
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{items: make([]Interval, capacity)}
}

func (r *ring) push(iv Interval) {
	r.items[r.head] = iv
	r.head = (r.head + 1) % len(r.items)
	if r.head == 0 {
		r.full = true
	}
}

func (r *ring) len() int {
	if r.full {
		return len(r.items)
	}
	return r.head
}

// all returns the items oldest first.
func (r *ring) all() []Interval {
	if !r.full {
		return append([]Interval(nil), r.items[:r.head]...)
	}
	ret := make([]Interval, 0, len(r.items))
	ret = append(ret, r.items[r.head:]...)
	return append(ret, r.items[:r.head]...)
}
