package render

import (
	"errors"
	"math/rand"
	"testing"

	"danmaku-overlay/internal/danmaku"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolLIFOReuse(t *testing.T) {
	p := NewPool(PoolOptions{BatchSize: 4})
	h1 := p.Acquire()
	h2 := p.Acquire()
	h3 := p.Acquire()
	assert.Equal(t, []int{0, 1, 2}, []int{h1.Index(), h2.Index(), h3.Index()})

	require.NoError(t, p.Release(h2))
	h4 := p.Acquire()
	assert.Equal(t, h2.Index(), h4.Index())
	assert.NotEqual(t, h2, h4)
	assert.Nil(t, p.Get(h2))
	assert.NotNil(t, p.Get(h4))
}

func TestPoolGrowsByBatch(t *testing.T) {
	p := NewPool(PoolOptions{BatchSize: 2})
	assert.Equal(t, 0, p.Cap())
	var handles []Handle
	for i := 0; i < 5; i++ {
		handles = append(handles, p.Acquire())
	}
	assert.Equal(t, 6, p.Cap())
	assert.Equal(t, 3, p.Grows())
	assert.Equal(t, 5, p.Len())

	// 扩容后之前的指针依旧有效
	first := p.Get(handles[0])
	first.X = 42
	for i := 0; i < 10; i++ {
		p.Acquire()
	}
	assert.Equal(t, float32(42), p.Get(handles[0]).X)
}

func TestPoolNoDoubleIssue(t *testing.T) {
	p := NewPool(PoolOptions{BatchSize: 8})
	rnd := rand.New(rand.NewSource(7))
	live := map[int]Handle{}
	var order []int
	for step := 0; step < 5000; step++ {
		if len(order) == 0 || rnd.Intn(3) > 0 {
			h := p.Acquire()
			_, dup := live[h.Index()]
			require.False(t, dup, "step %d: slot %d issued twice", step, h.Index())
			live[h.Index()] = h
			order = append(order, h.Index())
			continue
		}
		i := rnd.Intn(len(order))
		idx := order[i]
		order = append(order[:i], order[i+1:]...)
		require.NoError(t, p.Release(live[idx]))
		delete(live, idx)
	}
	assert.Equal(t, len(live), p.Len())
}

func TestPoolReleaseViolation(t *testing.T) {
	p := NewPool(PoolOptions{BatchSize: 4})
	h := p.Acquire()
	require.NoError(t, p.Release(h))

	var cv *danmaku.ContractViolation
	assert.True(t, errors.As(p.Release(h), &cv))
	assert.True(t, errors.As(p.Release(Handle{}), &cv))
	assert.True(t, errors.As(p.Release(Handle{index: 100, gen: 1}), &cv))

	// 槽位被重新使用后，旧 handle 依旧无效
	h2 := p.Acquire()
	assert.Equal(t, h.Index(), h2.Index())
	assert.True(t, errors.As(p.Release(h), &cv))
	assert.NotNil(t, p.Get(h2))
}

func TestPoolStrictPanics(t *testing.T) {
	p := NewPool(PoolOptions{BatchSize: 4, Strict: true})
	h := p.Acquire()
	require.NoError(t, p.Release(h))
	assert.Panics(t, func() { _ = p.Release(h) })
}

func TestPoolReleaseClearsAndCallsHook(t *testing.T) {
	var released []*danmaku.Comment
	p := NewPool(PoolOptions{BatchSize: 4, OnRelease: func(inst *Instance) {
		released = append(released, inst.Comment)
	}})
	c := danmaku.NewComment("x", 0, 1)
	h := p.Acquire()
	inst := p.Get(h)
	inst.Comment = c
	inst.X, inst.Y, inst.Extra = 1, 2, 3

	require.NoError(t, p.Release(h))
	assert.Equal(t, []*danmaku.Comment{c}, released)
	assert.Nil(t, inst.Comment)
	assert.Nil(t, inst.Draw)
	assert.Zero(t, inst.X)
	assert.Zero(t, inst.Extra)
}

func TestPoolLiveOrderAndReleaseAll(t *testing.T) {
	p := NewPool(PoolOptions{BatchSize: 2})
	var hs []Handle
	for i := 0; i < 5; i++ {
		h := p.Acquire()
		p.Get(h).Row = i
		hs = append(hs, h)
	}
	require.NoError(t, p.Release(hs[0]))
	require.NoError(t, p.Release(hs[3]))
	h := p.Acquire()
	p.Get(h).Row = 9

	var rows []int
	p.Live(func(_ Handle, inst *Instance) bool {
		rows = append(rows, inst.Row)
		return true
	})
	assert.Equal(t, []int{1, 2, 4, 9}, rows)

	assert.Equal(t, 4, p.ReleaseAll())
	assert.Equal(t, 0, p.Len())
	for _, h := range hs {
		assert.Nil(t, p.Get(h))
	}
	assert.Equal(t, 0, p.ReleaseAll())
}
