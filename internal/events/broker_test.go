package events

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/yairfalse/vahti/types"
)

func testSnapshot(id string) types.Snapshot {
	return types.Snapshot{
		ID:        id,
		Timestamp: time.Now(),
		Severity:  types.SeverityOK,
	}
}

func TestBroker_PublishAndSubscribe(t *testing.T) {
	b := NewBroker(zerolog.Nop(), nil)
	ch := b.Subscribe(10)
	defer b.Unsubscribe(ch)

	b.Publish(testSnapshot("snap-1"))

	select {
	case got := <-ch:
		if got.ID != "snap-1" {
			t.Fatalf("snapshot ID = %q, want %q", got.ID, "snap-1")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}

func TestBroker_FanOut(t *testing.T) {
	b := NewBroker(zerolog.Nop(), nil)
	first := b.Subscribe(1)
	second := b.Subscribe(1)
	defer b.Unsubscribe(first)
	defer b.Unsubscribe(second)

	b.Publish(testSnapshot("snap-1"))

	for _, ch := range []chan types.Snapshot{first, second} {
		select {
		case got := <-ch:
			if got.ID != "snap-1" {
				t.Fatalf("snapshot ID = %q, want %q", got.ID, "snap-1")
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func TestBroker_CachesLatest(t *testing.T) {
	b := NewBroker(zerolog.Nop(), nil)

	if got := b.Latest(); got != nil {
		t.Fatalf("Latest() before publish = %+v, want nil", got)
	}

	b.Publish(testSnapshot("snap-1"))
	b.Publish(testSnapshot("snap-2"))

	got := b.Latest()
	if got == nil {
		t.Fatal("Latest() = nil after publish")
	}
	if got.ID != "snap-2" {
		t.Errorf("Latest().ID = %q, want %q", got.ID, "snap-2")
	}

	got.ID = "mutated"
	if again := b.Latest(); again.ID != "snap-2" {
		t.Errorf("Latest() after caller mutation = %q, want %q", again.ID, "snap-2")
	}
}

func TestBroker_DropsWhenSlowSubscriber(t *testing.T) {
	var drops atomic.Int32
	b := NewBroker(zerolog.Nop(), func() { drops.Add(1) })
	ch := b.Subscribe(1)
	defer b.Unsubscribe(ch)

	b.Publish(testSnapshot("snap-1"))
	b.Publish(testSnapshot("snap-2"))

	if n := len(ch); n != 1 {
		t.Fatalf("buffer length after drop = %d, want 1", n)
	}
	if got := b.DroppedCount(); got != 1 {
		t.Errorf("DroppedCount() = %d, want 1", got)
	}
	if got := drops.Load(); got != 1 {
		t.Errorf("onDrop calls = %d, want 1", got)
	}
}

func TestBroker_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker(zerolog.Nop(), nil)
	ch := b.Subscribe(1)
	b.Unsubscribe(ch)

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel closed")
		}
	default:
		t.Fatal("expected channel to be closed and readable")
	}

	b.Unsubscribe(ch)

	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", got)
	}
}
