package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closer struct {
	name   string
	closed atomic.Bool
}

func (c *closer) Close() error {
	c.closed.Store(true)
	return nil
}

func TestKey(t *testing.T) {
	assert.Equal(t, "conv-1:files/a.pdf", Key("conv-1", "files/a.pdf"))
}

func TestStore_PutGet(t *testing.T) {
	s := New[string]()
	_, _, ok := s.Get("c", "r")
	assert.False(t, ok)

	s.Put("c", "r", "v")
	v, release, ok := s.Get("c", "r")
	require.True(t, ok)
	assert.Equal(t, "v", v)
	release()

	_, _, ok = s.Get("other", "r")
	assert.False(t, ok, "scopes are isolated")
	assert.Equal(t, 1, s.Len())
}

func TestStore_GetOrBuild_SingleDerivation(t *testing.T) {
	s := New[*closer]()
	var builds atomic.Int32

	var wg sync.WaitGroup
	results := make([]*closer, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, release, err := s.GetOrBuild("conv", "doc", func() (*closer, error) {
				builds.Add(1)
				time.Sleep(50 * time.Millisecond)
				return &closer{name: "idx"}, nil
			})
			if assert.NoError(t, err) {
				release()
			}
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestStore_GetOrBuild_ErrorNotCached(t *testing.T) {
	s := New[string]()
	boom := errors.New("boom")

	_, _, err := s.GetOrBuild("c", "r", func() (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.Len())

	_, _, err = s.GetOrBuild("c", "r", func() (string, error) { panic("kaput") })
	assert.ErrorContains(t, err, "kaput")

	v, release, err := s.GetOrBuild("c", "r", func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	release()
}

func TestStore_IdleExpiryRefreshedOnAccess(t *testing.T) {
	s := New[string](func(o *Options) { o.IdleTTL = 80 * time.Millisecond })
	s.Put("c", "r", "v")

	for i := 0; i < 3; i++ {
		time.Sleep(50 * time.Millisecond)
		_, release, ok := s.Get("c", "r")
		require.True(t, ok, "access %d should refresh the idle timer", i)
		release()
	}

	time.Sleep(150 * time.Millisecond)
	_, _, ok := s.Get("c", "r")
	assert.False(t, ok)
}

func TestStore_CapacityEvictsLRUAndCloses(t *testing.T) {
	s := New[*closer](func(o *Options) { o.Capacity = 2 })
	a, b, c := &closer{name: "a"}, &closer{name: "b"}, &closer{name: "c"}

	s.Put("s", "a", a)
	s.Put("s", "b", b)
	_, release, _ := s.Get("s", "a") // a is now most recently used
	release()
	s.Put("s", "c", c)

	assert.Equal(t, 2, s.Len())
	_, _, ok := s.Get("s", "b")
	assert.False(t, ok)
	assert.True(t, b.closed.Load())
	assert.False(t, a.closed.Load())
}

func TestStore_RemoveAndPurge(t *testing.T) {
	s := New[*closer]()
	a, b := &closer{}, &closer{}
	s.Put("s", "a", a)
	s.Put("s", "b", b)

	assert.True(t, s.Remove("s", "a"))
	assert.False(t, s.Remove("s", "a"))
	assert.True(t, a.closed.Load())

	s.Purge()
	assert.Equal(t, 0, s.Len())
	assert.True(t, b.closed.Load())
}

func TestStore_LeasedValueSurvivesEviction(t *testing.T) {
	s := New[*closer](func(o *Options) { o.Capacity = 1 })
	a := &closer{name: "a"}

	v, release, err := s.GetOrBuild("conv-a", "doc", func() (*closer, error) { return a, nil })
	require.NoError(t, err)
	require.Same(t, a, v)

	_, releaseB, err := s.GetOrBuild("conv-b", "doc", func() (*closer, error) { return &closer{name: "b"}, nil })
	require.NoError(t, err)
	defer releaseB()

	_, _, ok := s.Get("conv-a", "doc")
	assert.False(t, ok, "evicted for capacity")
	assert.False(t, a.closed.Load(), "still leased")

	release()
	assert.True(t, a.closed.Load())

	release()
	assert.True(t, a.closed.Load(), "double release is harmless")
}

func TestStore_PutClosesReplacedValue(t *testing.T) {
	s := New[*closer]()
	old, fresh := &closer{name: "old"}, &closer{name: "new"}

	s.Put("s", "r", old)
	_, release, ok := s.Get("s", "r")
	require.True(t, ok)

	s.Put("s", "r", fresh)
	assert.False(t, old.closed.Load(), "replaced value still leased")
	release()
	assert.True(t, old.closed.Load())

	v, release, ok := s.Get("s", "r")
	require.True(t, ok)
	assert.Same(t, fresh, v)
	release()
	assert.False(t, fresh.closed.Load())
}

func TestStore_GetAfterDropIsMiss(t *testing.T) {
	s := New[*closer]()
	a := &closer{}
	s.Put("s", "a", a)
	require.True(t, s.Remove("s", "a"))

	_, _, ok := s.Get("s", "a")
	assert.False(t, ok)
	assert.True(t, a.closed.Load())
}
