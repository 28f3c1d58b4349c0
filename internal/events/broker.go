// Package events fans out status snapshots to in-process subscribers.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/yairfalse/vahti/types"
)

const defaultBuffer = 8

// Broker delivers every published snapshot to all subscribers and caches
// the most recent one. Sends never block; slow subscribers lose
// snapshots rather than stalling the refresh loop.
type Broker struct {
	logger zerolog.Logger
	onDrop func()

	mu     sync.RWMutex
	subs   map[chan types.Snapshot]struct{}
	latest *types.Snapshot

	dropped atomic.Int64
}

// NewBroker creates a broker. onDrop is invoked once per dropped
// snapshot and may be nil.
func NewBroker(logger zerolog.Logger, onDrop func()) *Broker {
	if onDrop == nil {
		onDrop = func() {}
	}
	return &Broker{
		logger: logger,
		onDrop: onDrop,
		subs:   make(map[chan types.Snapshot]struct{}),
	}
}

// Subscribe registers a new subscriber channel with the given buffer.
func (b *Broker) Subscribe(buf int) chan types.Snapshot {
	if buf <= 0 {
		buf = defaultBuffer
	}
	ch := make(chan types.Snapshot, buf)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *Broker) Unsubscribe(ch chan types.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
}

// Publish caches snap as the latest snapshot and fans it out.
func (b *Broker) Publish(snap types.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cached := snap
	b.latest = &cached

	for ch := range b.subs {
		select {
		case ch <- snap:
		default:
			count := b.dropped.Add(1)
			b.onDrop()
			if count == 1 || count%100 == 0 {
				b.logger.Warn().
					Int64("total_dropped", count).
					Str("snapshot_id", snap.ID).
					Msg("dropped snapshot for slow subscriber")
			}
		}
	}
}

// Latest returns a copy of the most recently published snapshot, or nil
// before the first publish.
func (b *Broker) Latest() *types.Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.latest == nil {
		return nil
	}
	snap := *b.latest
	return &snap
}

// DroppedCount returns the total number of snapshots dropped on slow
// subscribers.
func (b *Broker) DroppedCount() int64 {
	return b.dropped.Load()
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
