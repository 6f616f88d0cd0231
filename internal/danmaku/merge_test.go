package danmaku

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilarityPolicy(t *testing.T) {
	p := SimilarityPolicy{WindowMills: 1000, MaxDistance: 1}
	a := NewComment("哈哈哈", 0, 1)
	assert.True(t, p.ShouldMerge(a, NewComment("哈哈哈", 900, 1)))
	assert.True(t, p.ShouldMerge(a, NewComment("哈哈哈哈", 900, 1)))
	assert.False(t, p.ShouldMerge(a, NewComment("哈哈哈", 1100, 1)))
	assert.False(t, p.ShouldMerge(a, NewComment("哈哈哈", 10, TopMode)))
	assert.False(t, p.ShouldMerge(a, NewComment("完全不同", 10, 1)))
}

func TestMergeComments(t *testing.T) {
	list := []*Comment{
		NewComment("233", 0, 1),
		NewComment("233", 500, 1),
		NewComment("hello", 600, 1),
		NewComment("233", 1000, 1),
		NewComment("233", 3000, 1),
	}
	merged := MergeComments(list, SimilarityPolicy{WindowMills: 1000})
	require.Len(t, merged, 2)
	assert.Same(t, list[1], merged[0])
	assert.Same(t, list[3], merged[1])
	assert.Equal(t, 2, list[0].MergedCount())
	assert.False(t, list[4].IsMerged())
}

func TestMergeSkipsBlocked(t *testing.T) {
	a := NewComment("x", 0, 1)
	b := NewComment("x", 0, 1)
	a.BlockBy = 3
	assert.Empty(t, MergeComments([]*Comment{a, b}, SlotPolicy{}))
	assert.Empty(t, MergeComments([]*Comment{NewComment("x", 0, 1), NewComment("x", 0, 1)}, NoMerge{}))
}

func TestTimelineApplyMerge(t *testing.T) {
	tl := NewTimeline()
	s1, _ := tl.AddSource(NewSource("a"))
	s2, _ := tl.AddSource(NewSource("b"))
	require.NoError(t, tl.AddComments(s1, []*Comment{NewComment("x", 0, 1), NewComment("y", 0, 1)}))
	require.NoError(t, tl.AddComments(s2, []*Comment{NewComment("x", 0, 1)}))

	// 只在来源内部合并
	assert.Equal(t, 1, tl.ApplyMerge(SlotPolicy{}))
	assert.Equal(t, 2, tl.Len())
	assert.Len(t, tl.Comments(s1), 1)
	assert.Len(t, tl.Comments(s2), 1)
}
