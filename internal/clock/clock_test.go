package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManual_Advance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManual(start)

	assert.Equal(t, start, c.Now())
	assert.Equal(t, start.Add(time.Hour), c.Advance(time.Hour))
	assert.Equal(t, start.Add(time.Hour), c.Now())
}

func TestManual_NeverGoesBackwards(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManual(start)

	c.Advance(-time.Hour)
	assert.Equal(t, start, c.Now())

	c.Set(start.Add(-time.Minute))
	assert.Equal(t, start, c.Now())

	c.Set(start.Add(time.Minute))
	assert.Equal(t, start.Add(time.Minute), c.Now())
}

func TestManual_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	c := NewManual(time.Date(2026, 1, 1, 2, 0, 0, 0, loc))
	assert.Equal(t, time.UTC, c.Now().Location())
}

func TestSystem_Now(t *testing.T) {
	before := time.Now()
	now := System{}.Now()
	assert.False(t, now.Before(before.Add(-time.Second)))
	assert.Equal(t, time.UTC, now.Location())
}

func TestSequence_Next(t *testing.T) {
	s := NewSequence()
	assert.Equal(t, int64(0), s.Current())
	assert.Equal(t, int64(1), s.Next())
	assert.Equal(t, int64(2), s.Next())
	assert.Equal(t, int64(2), s.Current())

	resumed := NewSequenceAt(41)
	assert.Equal(t, int64(42), resumed.Next())
}

func TestSequence_ThreadSafe(t *testing.T) {
	s := NewSequence()
	const goroutines = 50
	const calls = 100

	var wg sync.WaitGroup
	seqs := make(chan int64, goroutines*calls)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				seqs <- s.Next()
			}
		}()
	}
	wg.Wait()
	close(seqs)

	seen := make(map[int64]bool)
	for v := range seqs {
		require.False(t, seen[v], "seq %d issued twice", v)
		seen[v] = true
	}
	assert.Len(t, seen, goroutines*calls)
}
