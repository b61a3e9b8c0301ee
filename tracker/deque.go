package tracker

import "portfolio-analytics/model"

// deque is the queue's bounded event buffer. Events enter at the back;
// a failed batch re-enters at the front. Whenever the buffer would
// exceed its cap, the oldest events (front) are dropped first, so a
// stalled writer degrades by forgetting history, never by growing
// without bound.
type deque struct {
	max   int
	items []model.Event
}

func newDeque(max int) *deque {
	if max <= 0 {
		max = 1
	}
	return &deque{max: max}
}

// PushBack appends one event, returning how many old events were
// dropped to stay within the cap.
func (d *deque) PushBack(ev model.Event) int {
	d.items = append(d.items, ev)
	return d.trim()
}

// PushFront re-prepends a batch in its original order, returning how
// many events were dropped to stay within the cap.
func (d *deque) PushFront(batch []model.Event) int {
	if len(batch) == 0 {
		return 0
	}
	d.items = append(append(make([]model.Event, 0, len(batch)+len(d.items)), batch...), d.items...)
	return d.trim()
}

// Drain removes and returns the entire buffer in order.
func (d *deque) Drain() []model.Event {
	out := d.items
	d.items = nil
	return out
}

func (d *deque) Len() int {
	return len(d.items)
}

// trim drops from the front (oldest first) until within the cap.
func (d *deque) trim() int {
	if len(d.items) <= d.max {
		return 0
	}
	dropped := len(d.items) - d.max
	d.items = append([]model.Event(nil), d.items[dropped:]...)
	return dropped
}
