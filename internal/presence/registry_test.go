package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("c%03d", n)
	}
}

func TestJoinPlacesPeerInsideBounds(t *testing.T) {
	r := NewRegistry(Bounds{Width: 800, Height: 600})
	for i := 0; i < 100; i++ {
		p := r.Join()
		require.NotEmpty(t, p.ID)
		assert.GreaterOrEqual(t, p.X, 0.0)
		assert.Less(t, p.X, 800.0)
		assert.GreaterOrEqual(t, p.Y, 0.0)
		assert.Less(t, p.Y, 600.0)
	}
	assert.Equal(t, 100, r.Len())
}

func TestJoinUsesInjectedRandomness(t *testing.T) {
	r := NewRegistry(Bounds{Width: 10, Height: 20}, WithRand(func() float64 { return 0.5 }), WithIDGenerator(sequentialIDs()))
	p := r.Join()
	assert.Equal(t, Peer{ID: "c001", X: 5, Y: 10}, p)
}

func TestJoinSkipsTakenIDs(t *testing.T) {
	ids := []string{"dup", "dup", "fresh"}
	i := 0
	r := NewRegistry(Bounds{}, WithIDGenerator(func() string { id := ids[i]; i++; return id }))
	first := r.Join()
	second := r.Join()
	assert.Equal(t, "dup", first.ID)
	assert.Equal(t, "fresh", second.ID)
}

func TestDefaultBounds(t *testing.T) {
	r := NewRegistry(Bounds{})
	assert.Equal(t, Bounds{Width: DefaultWidth, Height: DefaultHeight}, r.Bounds())
}

func TestMoveRegisteredAndUnregistered(t *testing.T) {
	r := NewRegistry(Bounds{}, WithIDGenerator(sequentialIDs()))
	p := r.Join()

	moved, ok := r.Move(p.ID, 12.5, 40)
	require.True(t, ok)
	assert.Equal(t, Peer{ID: p.ID, X: 12.5, Y: 40}, moved)

	got, _ := r.Get(p.ID)
	assert.Equal(t, moved, got)

	_, ok = r.Move("ghost", 1, 1)
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestLeaveReportsRemovalOnce(t *testing.T) {
	r := NewRegistry(Bounds{}, WithIDGenerator(sequentialIDs()))
	p := r.Join()

	assert.True(t, r.Leave(p.ID))
	assert.False(t, r.Leave(p.ID))

	_, ok := r.Move(p.ID, 1, 1)
	assert.False(t, ok, "move after leave is a no-op")
	assert.Empty(t, r.Snapshot())
}

func TestSnapshotIsACopy(t *testing.T) {
	r := NewRegistry(Bounds{}, WithIDGenerator(sequentialIDs()))
	a := r.Join()
	b := r.Join()

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, a.ID, snap[0].ID)
	assert.Equal(t, b.ID, snap[1].ID)

	snap[0].X = -1
	got, _ := r.Get(a.ID)
	assert.NotEqual(t, -1.0, got.X)
}

func TestConcurrentJoinMoveLeave(t *testing.T) {
	r := NewRegistry(Bounds{})
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := r.Join()
			for j := 0; j < 50; j++ {
				r.Move(p.ID, float64(j), float64(j))
				_ = r.Snapshot()
			}
			if !r.Leave(p.ID) {
				t.Errorf("leave %s failed", p.ID)
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, r.Len())
}
