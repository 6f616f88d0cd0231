package danmaku

import (
	"danmaku-overlay/internal/utils"
	"fmt"
	"sort"

	"github.com/google/btree"
)

const timelineC = "timeline"

// Timeline 所有来源弹幕按播放时间排序的索引
// 只能由渲染循环单线程访问，其他线程通过 Handoff 提交数据
type Timeline struct {
	index   *btree.BTreeG[*Comment]
	sources map[int]*Source
	// 每个来源拥有的全部弹幕，包括已被合并的
	owned map[int][]*Comment

	nextSourceID int
	seq          uint64
}

func commentLess(a, b *Comment) bool {
	if a.Time != b.Time {
		return a.Time < b.Time
	}
	return a.seq < b.seq
}

func NewTimeline() *Timeline {
	return &Timeline{
		index:        btree.NewG[*Comment](32, commentLess),
		sources:      make(map[int]*Source),
		owned:        make(map[int][]*Comment),
		nextSourceID: 1,
	}
}

// AddSource 来源 id<0 时分配新 id
func (t *Timeline) AddSource(src *Source) (int, error) {
	if src.ID < 0 {
		src.ID = t.nextSourceID
	}
	if _, ok := t.sources[src.ID]; ok {
		return 0, fmt.Errorf("source %d already exists", src.ID)
	}
	if src.ID >= t.nextSourceID {
		t.nextSourceID = src.ID + 1
	}
	t.sources[src.ID] = src
	return src.ID, nil
}

func (t *Timeline) Source(id int) *Source {
	return t.sources[id]
}

// Sources 按 id 排序
func (t *Timeline) Sources() []*Source {
	result := make([]*Source, 0, len(t.sources))
	for _, s := range t.sources {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

// RemoveSource 移除来源及其全部弹幕
func (t *Timeline) RemoveSource(id int) bool {
	if _, ok := t.sources[id]; !ok {
		return false
	}
	for _, c := range t.owned[id] {
		if !c.IsMerged() {
			t.index.Delete(c)
		}
	}
	delete(t.owned, id)
	delete(t.sources, id)
	return true
}

// AddComments 加入一批弹幕，时间按来源当前延迟计算
func (t *Timeline) AddComments(sourceID int, batch []*Comment) error {
	src, ok := t.sources[sourceID]
	if !ok {
		return fmt.Errorf("source %d not found", sourceID)
	}
	for _, c := range batch {
		c.Source = sourceID
		c.shift(src.Delay)
		t.seq++
		c.seq = t.seq
		if !c.IsMerged() {
			t.index.ReplaceOrInsert(c)
		}
	}
	t.owned[sourceID] = append(t.owned[sourceID], batch...)
	src.Count = len(t.owned[sourceID])
	utils.DebugLog(timelineC, "comments added", "source", sourceID, "size", len(batch), "total", t.index.Len())
	return nil
}

// SetDelay 修改来源延迟，立即重新计算该来源所有弹幕的播放时间
func (t *Timeline) SetDelay(sourceID int, delay int64) error {
	src, ok := t.sources[sourceID]
	if !ok {
		return fmt.Errorf("source %d not found", sourceID)
	}
	if src.Delay == delay {
		return nil
	}
	src.Delay = delay
	for _, c := range t.owned[sourceID] {
		if c.IsMerged() {
			c.shift(delay)
			continue
		}
		// 索引按时间排序，必须先删除再修改时间
		t.index.Delete(c)
		c.shift(delay)
		t.index.ReplaceOrInsert(c)
	}
	utils.DebugLog(timelineC, "source delay changed", "source", sourceID, "delay", delay)
	return nil
}

func (t *Timeline) SetShow(sourceID int, show bool) error {
	src, ok := t.sources[sourceID]
	if !ok {
		return fmt.Errorf("source %d not found", sourceID)
	}
	src.Show = show
	return nil
}

// MergeInto child 并入 parent 的合并列表并从时间索引移除
func (t *Timeline) MergeInto(parent, child *Comment) error {
	if parent == child {
		return fmt.Errorf("merge comment into itself")
	}
	if parent.IsMerged() || child.IsMerged() {
		return fmt.Errorf("comment is already merged")
	}
	if _, ok := t.index.Get(child); !ok {
		return fmt.Errorf("comment is not in timeline")
	}
	if _, ok := t.index.Get(parent); !ok {
		return fmt.Errorf("parent comment is not in timeline")
	}
	t.index.Delete(child)
	parent.Merge(child)
	return nil
}

// ApplyMerge 按策略在每个来源内部合并重复弹幕，返回被合并的数量
func (t *Timeline) ApplyMerge(policy MergePolicy) int {
	bySource := make(map[int][]*Comment, len(t.sources))
	t.index.Ascend(func(c *Comment) bool {
		bySource[c.Source] = append(bySource[c.Source], c)
		return true
	})
	var total int
	for id, list := range bySource {
		merged := MergeComments(list, policy)
		for _, c := range merged {
			t.index.Delete(c)
		}
		total += len(merged)
		utils.DebugLog(timelineC, "source merged", "source", id, "merged", len(merged))
	}
	return total
}

// Range 按时间顺序遍历 [from, to) 内可见来源的弹幕，fn 返回 false 时停止
func (t *Timeline) Range(from, to int64, fn func(c *Comment) bool) {
	lo := &Comment{Time: from}
	hi := &Comment{Time: to}
	t.index.AscendRange(lo, hi, func(c *Comment) bool {
		if src := t.sources[c.Source]; src != nil && !src.Show {
			return true
		}
		return fn(c)
	})
}

// Comments 某个来源在索引中的弹幕，按时间排序
func (t *Timeline) Comments(sourceID int) []*Comment {
	var result []*Comment
	t.index.Ascend(func(c *Comment) bool {
		if c.Source == sourceID {
			result = append(result, c)
		}
		return true
	})
	return result
}

// Owned 来源的全部弹幕，包括被合并的，按原始时间排序
func (t *Timeline) Owned(sourceID int) []*Comment {
	owned := t.owned[sourceID]
	result := make([]*Comment, len(owned))
	copy(result, owned)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OriginTime < result[j].OriginTime
	})
	return result
}

// Len 索引中的弹幕数量，不含被合并的
func (t *Timeline) Len() int {
	return t.index.Len()
}

// Reblock 规则变化后重新计算所有弹幕的屏蔽状态
func (t *Timeline) Reblock(engine *RuleEngine) int {
	var blocked int
	t.index.Ascend(func(c *Comment) bool {
		hit, id := engine.Evaluate(c)
		c.BlockBy = id
		if hit {
			blocked++
		}
		return true
	})
	return blocked
}
