package render

import (
	"danmaku-overlay/internal/danmaku"
	"danmaku-overlay/internal/utils"
	"fmt"
)

const poolC = "overlay_pool"

const nilIndex = -1

// Handle 指向池中实例，generation 不一致说明实例已被回收
type Handle struct {
	index int32
	gen   uint32
}

func (h Handle) Index() int {
	return int(h.index)
}

func (h Handle) Valid() bool {
	return h.gen != 0
}

// Instance 屏幕上的一条弹幕
type Instance struct {
	Draw    *DrawState
	Comment *danmaku.Comment
	X, Y    float32
	// 滚动弹幕未使用，顶部/底部弹幕为剩余显示时间 ms
	Extra float32
	Row   int

	gen      uint32
	live     bool
	next     int32 // 空闲链表
	prevLive int32
	nextLive int32
}

// Pool 弹幕实例对象池
// 实例按固定大小分块分配，扩容不移动已有实例，空闲链表后进先出
// 非线程安全，只能在渲染循环中使用
type Pool struct {
	chunks   [][]Instance
	batch    int
	freeHead int32

	// 存活实例按获取顺序组成双向链表
	liveHead, liveTail int32
	liveCount          int
	grows              int

	// 回收时释放纹理引用
	onRelease func(inst *Instance)
	strict    bool
}

type PoolOptions struct {
	BatchSize int
	// Strict 违反约定时 panic，否则返回 ContractViolation
	Strict    bool
	OnRelease func(inst *Instance)
}

func NewPool(opts PoolOptions) *Pool {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	return &Pool{
		batch:     opts.BatchSize,
		freeHead:  nilIndex,
		liveHead:  nilIndex,
		liveTail:  nilIndex,
		onRelease: opts.OnRelease,
		strict:    opts.Strict,
	}
}

func (p *Pool) at(i int32) *Instance {
	return &p.chunks[int(i)/p.batch][int(i)%p.batch]
}

func (p *Pool) grow() {
	base := len(p.chunks) * p.batch
	chunk := make([]Instance, p.batch)
	p.chunks = append(p.chunks, chunk)
	for i := p.batch - 1; i >= 0; i-- {
		chunk[i].gen = 1
		chunk[i].next = p.freeHead
		p.freeHead = int32(base + i)
	}
	p.grows++
	utils.DebugLog(poolC, "pool grown", "capacity", p.Cap())
}

// Acquire 取出空闲链表头部的实例，没有空闲实例时扩容一批，不会失败
func (p *Pool) Acquire() Handle {
	if p.freeHead == nilIndex {
		p.grow()
	}
	idx := p.freeHead
	inst := p.at(idx)
	p.freeHead = inst.next
	inst.next = nilIndex
	inst.live = true

	inst.prevLive = p.liveTail
	inst.nextLive = nilIndex
	if p.liveTail != nilIndex {
		p.at(p.liveTail).nextLive = idx
	} else {
		p.liveHead = idx
	}
	p.liveTail = idx
	p.liveCount++
	return Handle{index: idx, gen: inst.gen}
}

// Get 实例已回收时返回 nil
func (p *Pool) Get(h Handle) *Instance {
	if h.gen == 0 || h.index < 0 || int(h.index) >= p.Cap() {
		return nil
	}
	inst := p.at(h.index)
	if !inst.live || inst.gen != h.gen {
		return nil
	}
	return inst
}

// Release 归还实例，重复归还或使用过期 handle 属于程序错误
func (p *Pool) Release(h Handle) error {
	if h.gen == 0 || h.index < 0 || int(h.index) >= p.Cap() {
		return p.violation(fmt.Sprintf("handle %d out of range", h.index))
	}
	inst := p.at(h.index)
	if !inst.live {
		return p.violation(fmt.Sprintf("instance %d is not live", h.index))
	}
	if inst.gen != h.gen {
		return p.violation(fmt.Sprintf("stale handle %d (generation %d, current %d)", h.index, h.gen, inst.gen))
	}
	p.release(h.index, inst)
	return nil
}

func (p *Pool) release(idx int32, inst *Instance) {
	if p.onRelease != nil {
		p.onRelease(inst)
	}
	inst.Draw = nil
	inst.Comment = nil
	inst.X, inst.Y, inst.Extra = 0, 0, 0
	inst.Row = 0

	if inst.prevLive != nilIndex {
		p.at(inst.prevLive).nextLive = inst.nextLive
	} else {
		p.liveHead = inst.nextLive
	}
	if inst.nextLive != nilIndex {
		p.at(inst.nextLive).prevLive = inst.prevLive
	} else {
		p.liveTail = inst.prevLive
	}
	inst.prevLive, inst.nextLive = nilIndex, nilIndex

	inst.live = false
	inst.gen++
	if inst.gen == 0 {
		inst.gen = 1
	}
	inst.next = p.freeHead
	p.freeHead = idx
	p.liveCount--
}

// ReleaseAll 回收所有存活实例，用于跳转播放进度
func (p *Pool) ReleaseAll() int {
	var n int
	for idx := p.liveHead; idx != nilIndex; {
		inst := p.at(idx)
		next := inst.nextLive
		p.release(idx, inst)
		idx = next
		n++
	}
	return n
}

// Live 按获取顺序遍历存活实例，fn 中可以回收当前实例
func (p *Pool) Live(fn func(h Handle, inst *Instance) bool) {
	for idx := p.liveHead; idx != nilIndex; {
		inst := p.at(idx)
		next := inst.nextLive
		if !fn(Handle{index: idx, gen: inst.gen}, inst) {
			return
		}
		idx = next
	}
}

// Len 存活实例数
func (p *Pool) Len() int {
	return p.liveCount
}

func (p *Pool) Cap() int {
	return len(p.chunks) * p.batch
}

func (p *Pool) Grows() int {
	return p.grows
}

func (p *Pool) violation(reason string) error {
	err := &danmaku.ContractViolation{Op: "Pool.Release", Reason: reason}
	if p.strict {
		panic(err)
	}
	utils.ErrorLog(poolC, err.Error())
	return err
}
