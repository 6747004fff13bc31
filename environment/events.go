package environment

import (
	"sync"

	"github.com/suisim/sandbox/ptb"
)

// eventBuffer holds the session-wide event log plus the most recent
// PTB's events (spec.md §6: "all_events" / "last_tx_events").
type eventBuffer struct {
	mu      sync.Mutex
	all     []ptb.Event
	lastTx  []ptb.Event
	counter uint64
}

func newEventBuffer() *eventBuffer {
	return &eventBuffer{}
}

func (b *eventBuffer) record(txID string, events []ptb.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tagged := make([]ptb.Event, len(events))
	for i, e := range events {
		b.counter++
		e.Sequence = b.counter
		e.TxDigest = txID
		tagged[i] = e
	}
	b.all = append(b.all, tagged...)
	b.lastTx = tagged
}

func (b *eventBuffer) All() []ptb.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ptb.Event, len(b.all))
	copy(out, b.all)
	return out
}

func (b *eventBuffer) Last() []ptb.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ptb.Event, len(b.lastTx))
	copy(out, b.lastTx)
	return out
}

// reset clears both buffers, used when loading a persisted state file
// that predates the current session's events (spec.md §6).
func (b *eventBuffer) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = nil
	b.lastTx = nil
	b.counter = 0
}
