package tracker

import (
	"strconv"
	"testing"

	"portfolio-analytics/model"
)

func ev(id int) model.Event {
	return model.Event{Kind: model.KindInteraction, Identifier: strconv.Itoa(id)}
}

func ids(events []model.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Identifier
	}
	return out
}

func TestDequeOrdering(t *testing.T) {
	d := newDeque(10)
	for i := 0; i < 3; i++ {
		d.PushBack(ev(i))
	}

	got := d.Drain()
	if len(got) != 3 {
		t.Fatalf("Drain() returned %d events, want 3", len(got))
	}
	for i, e := range got {
		if e.Identifier != strconv.Itoa(i) {
			t.Errorf("position %d = %s, want %d", i, e.Identifier, i)
		}
	}
	if d.Len() != 0 {
		t.Errorf("Len() after Drain = %d, want 0", d.Len())
	}
}

func TestDequePushFront_PreservesBatchOrder(t *testing.T) {
	d := newDeque(10)
	d.PushBack(ev(10))
	d.PushBack(ev(11))

	// A failed batch of older events goes back to the front, in order.
	d.PushFront([]model.Event{ev(0), ev(1), ev(2)})

	got := ids(d.Drain())
	want := []string{"0", "1", "2", "10", "11"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestDequeCap_DropsOldestOnPushBack(t *testing.T) {
	d := newDeque(3)
	var dropped int
	for i := 0; i < 5; i++ {
		dropped += d.PushBack(ev(i))
	}

	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	got := ids(d.Drain())
	want := []string{"2", "3", "4"}
	if len(got) != 3 {
		t.Fatalf("kept %d events, want 3", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("kept = %v, want newest %v", got, want)
		}
	}
}

func TestDequeCap_DropsOldestOnPushFront(t *testing.T) {
	d := newDeque(4)
	d.PushBack(ev(10))
	d.PushBack(ev(11))

	dropped := d.PushFront([]model.Event{ev(0), ev(1), ev(2)})
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}

	got := ids(d.Drain())
	want := []string{"1", "2", "10", "11"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("kept = %v, want %v", got, want)
		}
	}
}

func TestDequePushFront_Empty(t *testing.T) {
	d := newDeque(3)
	d.PushBack(ev(0))
	if dropped := d.PushFront(nil); dropped != 0 {
		t.Errorf("PushFront(nil) dropped %d", dropped)
	}
	if d.Len() != 1 {
		t.Errorf("Len() = %d, want 1", d.Len())
	}
}
