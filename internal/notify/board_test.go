package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoard_UpdateInPlace(t *testing.T) {
	b := NewBoard()

	b.Notify(Notice{ID: "conn", Kind: KindDegraded, Persistent: true, Count: 1})
	b.Notify(Notice{ID: "conn", Kind: KindDegraded, Persistent: true, Count: 2})
	b.Notify(Notice{ID: "conn", Kind: KindDegraded, Persistent: true, Count: 3})

	active := b.Active()
	require.Len(t, active, 1)
	assert.Equal(t, 3, active[0].Count)
	assert.Equal(t, 1, b.Opened(KindDegraded))
	assert.Len(t, b.History(), 3)

	b.Dismiss("conn")
	assert.Empty(t, b.Active())

	b.Notify(Notice{ID: "conn", Kind: KindDegraded, Persistent: true, Count: 1})
	assert.Equal(t, 2, b.Opened(KindDegraded))
}

func TestBoard_ToastsExpire(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b := NewBoard()
	b.now = func() time.Time { return now }

	b.Notify(Notice{ID: "retry", Kind: KindRetrying})
	b.Notify(Notice{ID: "conn", Kind: KindDegraded, Persistent: true})
	assert.Len(t, b.Active(), 2)

	now = now.Add(defaultToastTTL)
	active := b.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "conn", active[0].ID)
}

func TestBoard_HistoryCapped(t *testing.T) {
	b := NewBoard()
	b.historyCap = 3
	for i := 0; i < 10; i++ {
		b.Notify(Notice{ID: "x", Kind: KindStale, Count: i})
	}
	h := b.History()
	require.Len(t, h, 3)
	assert.Equal(t, 9, h[2].Count)
}

func TestMulti(t *testing.T) {
	a, b := NewBoard(), NewBoard()
	m := Multi{a, b, Nop{}}

	m.Notify(Notice{ID: "n", Kind: KindRestored})
	assert.Len(t, a.Active(), 1)
	assert.Len(t, b.Active(), 1)

	m.Dismiss("n")
	assert.Empty(t, a.Active())
	assert.Empty(t, b.Active())
}
