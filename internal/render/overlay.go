package render

import (
	"danmaku-overlay/internal/config"
	"danmaku-overlay/internal/danmaku"
	"danmaku-overlay/internal/utils"
	"errors"
	"sync/atomic"
)

const overlayC = "overlay"

// Recorder 渲染统计，由 metrics 实现
type Recorder interface {
	RecordSpawned(n int)
	RecordExpired(n int)
	RecordSkipped(reason string)
	SetPoolStats(capacity, live int)
}

type nopRecorder struct{}

func (nopRecorder) RecordSpawned(int)     {}
func (nopRecorder) RecordExpired(int)     {}
func (nopRecorder) RecordSkipped(string)  {}
func (nopRecorder) SetPoolStats(_, _ int) {}

const (
	skipLimit = "live_limit"
	skipDraw  = "draw_failed"
)

type Options struct {
	Width, Height float32
	RowHeight     float32
	// 滚动弹幕穿过屏幕的时间 ms
	RollingDuration int64
	// 顶部/底部弹幕停留时间 ms
	StayDuration int64
	// 同屏最大数量，<=0 不限制
	MaxLive   int
	BatchSize int
	Strict    bool
}

func OptionsFromConfig(c *config.OverlayConfig) Options {
	return Options{
		Width:           c.Overlay.Width,
		Height:          c.Overlay.Height,
		RowHeight:       c.Overlay.RowHeight,
		RollingDuration: int64(c.Overlay.RollingDuration),
		StayDuration:    int64(c.Overlay.StayDuration),
		MaxLive:         c.Overlay.MaxLive,
		BatchSize:       c.Pool.BatchSize,
		Strict:          c.Pool.Strict || config.Debug,
	}
}

// MergePolicyFromConfig 未开启合并时返回 NoMerge
func MergePolicyFromConfig(c *config.OverlayConfig) danmaku.MergePolicy {
	if !c.Merge.Enable {
		return danmaku.NoMerge{}
	}
	return danmaku.SimilarityPolicy{WindowMills: c.Merge.WindowMills, MaxDistance: c.Merge.MaxDistance}
}

// Overlay 驱动弹幕从时间轴到屏幕实例的整个过程
// 除 Handoff 和规则引擎外，所有方法只能在同一个渲染线程调用
type Overlay struct {
	opts     Options
	pool     *Pool
	cache    *DrawCache
	timeline *danmaku.Timeline
	engine   *danmaku.RuleEngine
	merge    danmaku.MergePolicy
	handoff  *danmaku.Handoff
	recorder Recorder

	// 下一次 Advance 从 cursor 开始取弹幕
	cursor int64
	now    int64

	rows    map[danmaku.CommentType][]Handle
	visible []*Instance

	rulesDirty atomic.Bool
}

func NewOverlay(opts Options, cache *DrawCache, engine *danmaku.RuleEngine) *Overlay {
	if engine == nil {
		engine = danmaku.NewRuleEngine()
	}
	o := &Overlay{
		opts:     opts,
		cache:    cache,
		timeline: danmaku.NewTimeline(),
		engine:   engine,
		merge:    danmaku.NoMerge{},
		handoff:  danmaku.NewHandoff(64),
		recorder: nopRecorder{},
	}
	o.pool = NewPool(PoolOptions{
		BatchSize: opts.BatchSize,
		Strict:    opts.Strict,
		OnRelease: o.releaseDraw,
	})
	o.resetRows()
	engine.OnChange(func([]*danmaku.BlockRule) {
		o.rulesDirty.Store(true)
	})
	return o
}

func (o *Overlay) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	o.recorder = r
}

func (o *Overlay) SetMergePolicy(p danmaku.MergePolicy) {
	if p == nil {
		p = danmaku.NoMerge{}
	}
	o.merge = p
}

func (o *Overlay) Handoff() *danmaku.Handoff {
	return o.handoff
}

func (o *Overlay) Timeline() *danmaku.Timeline {
	return o.timeline
}

func (o *Overlay) Engine() *danmaku.RuleEngine {
	return o.engine
}

func (o *Overlay) Pool() *Pool {
	return o.pool
}

func (o *Overlay) Now() int64 {
	return o.now
}

func (o *Overlay) releaseDraw(inst *Instance) {
	if inst.Draw == nil {
		return
	}
	if err := o.cache.Release(inst.Draw); err != nil {
		utils.ErrorLog(overlayC, "release draw state failed", "error", err)
	}
}

func (o *Overlay) resetRows() {
	n := 1
	if o.opts.RowHeight > 0 && o.opts.Height > o.opts.RowHeight {
		n = int(o.opts.Height / o.opts.RowHeight)
	}
	o.rows = map[danmaku.CommentType][]Handle{
		danmaku.Rolling: make([]Handle, n),
		danmaku.Top:     make([]Handle, n),
		danmaku.Bottom:  make([]Handle, n),
	}
}

// AddSource 直接加入一个来源，等同于 Handoff 提交后在下一帧处理
func (o *Overlay) AddSource(src *danmaku.Source, comments []*danmaku.Comment) (int, error) {
	return o.accept(danmaku.Batch{Source: src, Comments: comments})
}

func (o *Overlay) accept(b danmaku.Batch) (int, error) {
	if b.Source == nil {
		return 0, errors.New("batch without source")
	}
	id := b.Source.ID
	if id < 0 || o.timeline.Source(id) == nil {
		var err error
		if id, err = o.timeline.AddSource(b.Source); err != nil {
			return 0, err
		}
	}
	blocked := o.engine.Apply(b.Comments)
	if err := o.timeline.AddComments(id, b.Comments); err != nil {
		return 0, err
	}
	merged := o.timeline.ApplyMerge(o.merge)
	utils.InfoLog(overlayC, "source accepted", "source", id, "title", b.Source.Title,
		"size", len(b.Comments), "blocked", blocked, "merged", merged)
	return id, nil
}

// SetDelay 修改来源延迟，回收该来源在屏幕上的实例，
// 再按新的时间重新生成显示窗口内已到期的弹幕，之后到期的由 Advance 生成
func (o *Overlay) SetDelay(sourceID int, delay int64) error {
	if src := o.timeline.Source(sourceID); src != nil && src.Delay == delay {
		return nil
	}
	if err := o.timeline.SetDelay(sourceID, delay); err != nil {
		return err
	}
	if n := o.releaseSource(sourceID); n > 0 {
		o.recorder.RecordExpired(n)
	}
	o.spawn(o.cursor-o.window(), o.cursor, func(c *danmaku.Comment) bool {
		return c.Source == sourceID
	})
	o.recorder.SetPoolStats(o.pool.Cap(), o.pool.Len())
	return nil
}

// SetShow 隐藏来源时立即回收它在屏幕上的实例
func (o *Overlay) SetShow(sourceID int, show bool) error {
	if err := o.timeline.SetShow(sourceID, show); err != nil {
		return err
	}
	if !show {
		o.releaseSource(sourceID)
	}
	return nil
}

func (o *Overlay) RemoveSource(sourceID int) bool {
	if !o.timeline.RemoveSource(sourceID) {
		return false
	}
	o.releaseSource(sourceID)
	return true
}

func (o *Overlay) releaseSource(sourceID int) int {
	var n int
	o.pool.Live(func(h Handle, inst *Instance) bool {
		if inst.Comment.Source == sourceID {
			_ = o.pool.Release(h)
			n++
		}
		return true
	})
	return n
}

// Seek 跳转进度，立即回收所有屏幕上的实例
func (o *Overlay) Seek(t int64) int {
	n := o.pool.ReleaseAll()
	o.resetRows()
	o.cursor = t
	o.now = t
	o.recorder.RecordExpired(n)
	o.recorder.SetPoolStats(o.pool.Cap(), o.pool.Len())
	utils.DebugLog(overlayC, "seek", "time", t, "released", n)
	return n
}

// Clear 清空屏幕，不影响进度
func (o *Overlay) Clear() int {
	n := o.pool.ReleaseAll()
	o.resetRows()
	return n
}

func (o *Overlay) Resize(width, height float32) {
	o.opts.Width, o.opts.Height = width, height
	o.Clear()
}

// Sync 处理 Handoff 中的新数据和规则变化，不推进时间
func (o *Overlay) Sync() {
	o.handoff.Drain(func(b danmaku.Batch) {
		if _, err := o.accept(b); err != nil {
			utils.ErrorLog(overlayC, "accept batch failed", "error", err)
		}
	})
	if o.rulesDirty.Swap(false) {
		o.reblock()
	}
}

// Advance 推进到 now：处理新数据，更新位置，回收过期实例，生成到期弹幕
func (o *Overlay) Advance(now int64) {
	o.Sync()
	if now < o.now {
		o.Seek(now)
	}
	o.now = now

	o.update(now)

	from := o.cursor
	// 跳过太久之前、已经不会显示的弹幕
	if window := o.window(); now-from > window {
		from = now - window
	}
	o.spawn(from, now+1, nil)
	o.cursor = now + 1
	o.recorder.SetPoolStats(o.pool.Cap(), o.pool.Len())
}

func (o *Overlay) window() int64 {
	if o.opts.RollingDuration > o.opts.StayDuration {
		return o.opts.RollingDuration
	}
	return o.opts.StayDuration
}

// VisibleInstancesAt 推进到 t 并按获取顺序返回屏幕上的实例
// 返回的切片在下一次调用前有效
func (o *Overlay) VisibleInstancesAt(t int64) []*Instance {
	o.Advance(t)
	o.visible = o.visible[:0]
	o.pool.Live(func(_ Handle, inst *Instance) bool {
		o.visible = append(o.visible, inst)
		return true
	})
	return o.visible
}

func (o *Overlay) reblock() {
	blocked := o.timeline.Reblock(o.engine)
	var released int
	o.pool.Live(func(h Handle, inst *Instance) bool {
		if inst.Comment.Blocked() {
			_ = o.pool.Release(h)
			released++
		}
		return true
	})
	utils.DebugLog(overlayC, "block rules reapplied", "blocked", blocked, "released", released)
}

func (o *Overlay) speed(width int) float32 {
	return (o.opts.Width + float32(width)) / float32(o.opts.RollingDuration)
}

// place 根据出现时间计算位置，返回 false 表示已经离开屏幕
func (o *Overlay) place(inst *Instance, now int64) bool {
	elapsed := float32(now - inst.Comment.Time)
	switch inst.Comment.Type {
	case danmaku.Top, danmaku.Bottom:
		inst.Extra = float32(o.opts.StayDuration) - elapsed
		return inst.Extra > 0
	default:
		inst.X = o.opts.Width - o.speed(inst.Draw.Width)*elapsed
		return inst.X+float32(inst.Draw.Width) >= 0
	}
}

func (o *Overlay) update(now int64) {
	var expired int
	o.pool.Live(func(h Handle, inst *Instance) bool {
		if !o.place(inst, now) {
			_ = o.pool.Release(h)
			expired++
		}
		return true
	})
	if expired > 0 {
		o.recorder.RecordExpired(expired)
	}
}

// spawn 生成 [from, to) 内的弹幕，match 为 nil 时不过滤
func (o *Overlay) spawn(from, to int64, match func(c *danmaku.Comment) bool) {
	var spawned int
	o.timeline.Range(from, to, func(c *danmaku.Comment) bool {
		if c.Blocked() || (match != nil && !match(c)) {
			return true
		}
		if o.opts.MaxLive > 0 && o.pool.Len() >= o.opts.MaxLive {
			o.recorder.RecordSkipped(skipLimit)
			return true
		}
		draw, err := o.cache.Acquire(KeyOf(c))
		if err != nil {
			utils.WarnLog(overlayC, "load texture failed", "text", c.Text, "error", err)
			o.recorder.RecordSkipped(skipDraw)
			return true
		}
		h := o.pool.Acquire()
		inst := o.pool.Get(h)
		inst.Draw = draw
		inst.Comment = c
		if !o.place(inst, o.now) {
			_ = o.pool.Release(h)
			return true
		}
		o.layout(h, inst)
		spawned++
		return true
	})
	if spawned > 0 {
		o.recorder.RecordSpawned(spawned)
	}
}

// layout 分配行，优先使用空闲行，都被占用时选择最早空出的一行
func (o *Overlay) layout(h Handle, inst *Instance) {
	t := inst.Comment.Type
	if t == danmaku.UnknownType {
		t = danmaku.Rolling
	}
	rows := o.rows[t]
	best, bestScore := 0, float32(0)
	for i, rh := range rows {
		occupant := o.pool.Get(rh)
		if occupant == nil {
			best = i
			break
		}
		var score float32
		if t == danmaku.Rolling {
			// 行尾弹幕已完全进入屏幕则可以放下新的弹幕
			tail := occupant.X + float32(occupant.Draw.Width)
			if tail < o.opts.Width {
				best = i
				break
			}
			score = -tail
		} else {
			score = -occupant.Extra
		}
		if i == 0 || score > bestScore {
			best, bestScore = i, score
		}
	}
	rows[best] = h
	inst.Row = best
	switch t {
	case danmaku.Top:
		inst.X = (o.opts.Width - float32(inst.Draw.Width)) / 2
		inst.Y = float32(best) * o.opts.RowHeight
	case danmaku.Bottom:
		inst.X = (o.opts.Width - float32(inst.Draw.Width)) / 2
		inst.Y = o.opts.Height - float32(best+1)*o.opts.RowHeight
	default:
		inst.Y = float32(best) * o.opts.RowHeight
	}
}
