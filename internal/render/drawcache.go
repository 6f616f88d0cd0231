package render

import (
	"danmaku-overlay/internal/danmaku"
	"danmaku-overlay/internal/utils"
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
)

const drawCacheC = "draw_cache"

// parkedEntry 每次引用数归零都生成一个新的 entry
// active 为 false 时表示已被重新使用或已释放，回调不再处理
type parkedEntry struct {
	state  *DrawState
	active bool
}

// DrawCache 管理纹理的引用计数
// 引用数归零的纹理放入 ristretto 缓存，被淘汰或拒绝时才真正释放
type DrawCache struct {
	loader TextureLoader

	lock   sync.Mutex
	live   map[GlyphKey]*DrawState
	parked map[string]*parkedEntry
	idle   *ristretto.Cache[string, *parkedEntry]
	closed bool
}

type DrawCacheOptions struct {
	NumCounters int64
	MaxCost     int64 // 空闲纹理像素总数
}

func NewDrawCache(loader TextureLoader, opts DrawCacheOptions) (*DrawCache, error) {
	if opts.NumCounters <= 0 {
		opts.NumCounters = 1e5
	}
	if opts.MaxCost <= 0 {
		opts.MaxCost = 1 << 24
	}
	d := &DrawCache{
		loader: loader,
		live:   make(map[GlyphKey]*DrawState),
		parked: make(map[string]*parkedEntry),
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, *parkedEntry]{
		NumCounters: opts.NumCounters,
		MaxCost:     opts.MaxCost,
		BufferItems: 64,
		OnEvict: func(item *ristretto.Item[*parkedEntry]) {
			d.reclaim(item.Value)
		},
		OnReject: func(item *ristretto.Item[*parkedEntry]) {
			d.reclaim(item.Value)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create idle texture cache: %w", err)
	}
	d.idle = c
	return d, nil
}

// Acquire 获取纹理并增加引用，不存在时通过 loader 创建
func (d *DrawCache) Acquire(key GlyphKey) (*DrawState, error) {
	s, revived, err := d.acquire(key)
	if revived {
		// ristretto 的回调在其内部协程中执行并需要 d.lock，Del 不能在持锁时调用
		d.idle.Del(key.String())
	}
	return s, err
}

func (d *DrawCache) acquire(key GlyphKey) (*DrawState, bool, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if d.closed {
		return nil, false, fmt.Errorf("draw cache closed")
	}
	if s, ok := d.live[key]; ok {
		s.refs++
		return s, false, nil
	}
	k := key.String()
	if e, ok := d.parked[k]; ok && e.active {
		e.active = false
		delete(d.parked, k)
		e.state.refs = 1
		d.live[key] = e.state
		return e.state, true, nil
	}
	s, err := d.loader.Load(key)
	if err != nil {
		return nil, false, err
	}
	s.Key = key
	s.refs = 1
	d.live[key] = s
	return s, false, nil
}

// Release 减少引用，归零后放入空闲缓存
func (d *DrawCache) Release(s *DrawState) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	if s.refs <= 0 {
		return &danmaku.ContractViolation{Op: "DrawCache.Release", Reason: "reference count is already zero"}
	}
	s.refs--
	if s.refs > 0 {
		return nil
	}
	delete(d.live, s.Key)
	if d.closed {
		d.loader.Free(s)
		return nil
	}
	k := s.Key.String()
	if old, ok := d.parked[k]; ok && old.active {
		// 同一个 key 只保留最新的空闲纹理
		old.active = false
		d.loader.Free(old.state)
	}
	e := &parkedEntry{state: s, active: true}
	d.parked[k] = e
	if !d.idle.Set(k, e, s.cost()) {
		e.active = false
		delete(d.parked, k)
		d.loader.Free(s)
	}
	return nil
}

func (d *DrawCache) reclaim(e *parkedEntry) {
	if e == nil {
		return
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	if !e.active {
		return
	}
	e.active = false
	k := e.state.Key.String()
	if d.parked[k] == e {
		delete(d.parked, k)
	}
	d.loader.Free(e.state)
	utils.DebugLog(drawCacheC, "texture reclaimed", "width", e.state.Width, "height", e.state.Height)
}

// Wait 等待缓存内部缓冲区处理完成
func (d *DrawCache) Wait() {
	d.idle.Wait()
}

func (d *DrawCache) Live() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return len(d.live)
}

func (d *DrawCache) Parked() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return len(d.parked)
}

// Close 释放所有空闲纹理，仍被引用的纹理在最后一次 Release 时释放
func (d *DrawCache) Close() {
	d.lock.Lock()
	if d.closed {
		d.lock.Unlock()
		return
	}
	d.closed = true
	for k, e := range d.parked {
		if e.active {
			e.active = false
			d.loader.Free(e.state)
		}
		delete(d.parked, k)
	}
	d.lock.Unlock()
	d.idle.Close()
}
