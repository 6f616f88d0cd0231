package danmaku

import (
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// MergePolicy 决定两条弹幕是否视为重复
// Window 为向前查找的最大时间差 ms
type MergePolicy interface {
	ShouldMerge(primary, candidate *Comment) bool
	Window() int64
}

type NoMerge struct{}

func (NoMerge) ShouldMerge(_, _ *Comment) bool { return false }
func (NoMerge) Window() int64                  { return 0 }

// SlotPolicy 同类型同时间的弹幕即合并
type SlotPolicy struct{}

func (SlotPolicy) ShouldMerge(primary, candidate *Comment) bool { return primary.Equal(candidate) }
func (SlotPolicy) Window() int64                                { return 0 }

// SimilarityPolicy 时间窗口内、同类型且编辑距离不超过 MaxDistance 的弹幕合并
type SimilarityPolicy struct {
	WindowMills int64
	MaxDistance int
}

func (p SimilarityPolicy) Window() int64 {
	return p.WindowMills
}

func (p SimilarityPolicy) ShouldMerge(primary, candidate *Comment) bool {
	if primary.Type != candidate.Type {
		return false
	}
	d := candidate.Time - primary.Time
	if d < 0 {
		d = -d
	}
	if d > p.WindowMills {
		return false
	}
	if primary.Text == candidate.Text {
		return true
	}
	if p.MaxDistance <= 0 {
		return false
	}
	return fuzzy.LevenshteinDistance(primary.Text, candidate.Text) <= p.MaxDistance
}

// MergeComments 对按时间排序的弹幕执行合并，返回被合并掉的弹幕
// 每条弹幕只和窗口内尚未被合并的主弹幕比较，先出现的作为主弹幕，被屏蔽的弹幕不参与
func MergeComments(sorted []*Comment, policy MergePolicy) []*Comment {
	if policy == nil {
		return nil
	}
	if _, ok := policy.(NoMerge); ok {
		return nil
	}
	var merged []*Comment
	window := policy.Window()
	// 窗口内的主弹幕
	var primaries []*Comment
	for _, c := range sorted {
		if c.IsMerged() || c.Blocked() {
			continue
		}
		start := 0
		for start < len(primaries) && c.Time-primaries[start].Time > window {
			start++
		}
		primaries = primaries[start:]

		var target *Comment
		for _, p := range primaries {
			if policy.ShouldMerge(p, c) {
				target = p
				break
			}
		}
		if target != nil {
			target.Merge(c)
			merged = append(merged, c)
			continue
		}
		primaries = append(primaries, c)
	}
	return merged
}
