package runtime

import (
	"sync"

	"github.com/google/uuid"
)

// TokenGenerator produces subscription tokens.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 subscription tokens.
//
// UUIDv7 embeds a timestamp in the most significant bits, making tokens
// sortable by creation time, which is helpful when correlating
// subscription activity in traces.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Notifier routes table write notifications to read subscriptions.
//
// Writes call Notify with their write-set; every subscription whose
// read-set intersects it is signaled. Signals are delivered through a
// buffered channel of size 1 per subscription, so a burst of writes
// arriving before the subscriber re-fetches coalesces into one signal.
//
// Thread-safety: all methods may be called from any goroutine.
type Notifier struct {
	// Tokens generates subscription tokens. Defaults to UUIDv7Generator;
	// tests install a fixed generator for deterministic output.
	Tokens TokenGenerator

	mu   sync.Mutex
	subs map[*subscription]bool
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		Tokens: UUIDv7Generator{},
		subs:   make(map[*subscription]bool),
	}
}

// Notify signals every subscription watching any of the given tables.
// Table sets are order-insensitive; unknown tables are ignored.
func (n *Notifier) Notify(tables ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for sub := range n.subs {
		if !sub.watches(tables) {
			continue
		}
		// Non-blocking - buffer of 1 coalesces multiple signals.
		select {
		case sub.signal <- struct{}{}:
		default:
		}
	}
}

// subscription is one registered read-set watcher.
type subscription struct {
	token  string
	tables map[string]bool
	signal chan struct{}
}

func (s *subscription) watches(tables []string) bool {
	for _, t := range tables {
		if s.tables[t] {
			return true
		}
	}
	return false
}

// subscribe registers a watcher for the given read-set.
func (n *Notifier) subscribe(tables []string) *subscription {
	set := make(map[string]bool, len(tables))
	for _, t := range tables {
		set[t] = true
	}
	sub := &subscription{
		token:  n.Tokens.Generate(),
		tables: set,
		signal: make(chan struct{}, 1),
	}

	n.mu.Lock()
	n.subs[sub] = true
	n.mu.Unlock()
	return sub
}

// unsubscribe removes the watcher; further writes no longer signal it.
func (n *Notifier) unsubscribe(sub *subscription) {
	n.mu.Lock()
	delete(n.subs, sub)
	n.mu.Unlock()
}

// SubscriptionCount reports the number of active subscriptions.
func (n *Notifier) SubscriptionCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
