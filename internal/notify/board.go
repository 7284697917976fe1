package notify

import (
	"sort"
	"sync"
	"time"
)

const (
	defaultToastTTL   = 10 * time.Second
	defaultHistoryCap = 200
)

// Board keeps the notices currently visible to the user. Persistent notices
// stay until dismissed; the rest expire after the toast TTL.
type Board struct {
	mu      sync.Mutex
	active  map[string]Notice
	opened  map[Kind]int
	history []Notice

	toastTTL   time.Duration
	historyCap int
	now        func() time.Time
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{
		active:     make(map[string]Notice),
		opened:     make(map[Kind]int),
		toastTTL:   defaultToastTTL,
		historyCap: defaultHistoryCap,
		now:        time.Now,
	}
}

// Notify shows n, or replaces the active notice with the same ID.
func (b *Board) Notify(n Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if n.At.IsZero() {
		n.At = now
	}
	b.expireLocked(now)

	if _, ok := b.active[n.ID]; !ok {
		b.opened[n.Kind]++
	}
	b.active[n.ID] = n

	b.history = append(b.history, n)
	if len(b.history) > b.historyCap {
		b.history = b.history[len(b.history)-b.historyCap:]
	}
}

// Dismiss removes an active notice.
func (b *Board) Dismiss(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.active, id)
}

// Active returns the visible notices, oldest first.
func (b *Board) Active() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.expireLocked(b.now())
	out := make([]Notice, 0, len(b.active))
	for _, n := range b.active {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].At.Equal(out[j].At) {
			return out[i].ID < out[j].ID
		}
		return out[i].At.Before(out[j].At)
	})
	return out
}

// Opened returns how many times a notice of kind was newly shown, counting
// in-place updates of an active notice as a single showing.
func (b *Board) Opened(kind Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened[kind]
}

// History returns every published notice, including in-place updates.
func (b *Board) History() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Notice, len(b.history))
	copy(out, b.history)
	return out
}

func (b *Board) expireLocked(now time.Time) {
	for id, n := range b.active {
		if !n.Persistent && now.Sub(n.At) >= b.toastTTL {
			delete(b.active, id)
		}
	}
}
