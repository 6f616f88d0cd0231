package danmaku

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetType(t *testing.T) {
	tests := map[int]CommentType{1: Rolling, 2: Rolling, 3: Rolling, 4: Bottom, 5: Top, 6: Rolling, 0: Rolling}
	for mode, want := range tests {
		c := &Comment{}
		c.SetType(mode)
		assert.Equal(t, want, c.Type, "mode %d", mode)
	}
}

func TestCommentEqual(t *testing.T) {
	a := NewComment("a", 1000, 1)
	b := NewComment("different text", 1000, 1)
	c := NewComment("a", 1000, TopMode)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
}

func TestMergeTransfersChildren(t *testing.T) {
	parent := NewComment("p", 0, 1)
	child := NewComment("c", 10, 1)
	grandChild := NewComment("g", 20, 1)
	child.Merge(grandChild)

	parent.Merge(child)
	assert.Equal(t, 2, parent.MergedCount())
	assert.Same(t, parent, child.Parent())
	assert.Same(t, parent, grandChild.Parent())
	assert.Empty(t, child.Merged)

	// 已合并的弹幕不能再次合并
	other := NewComment("o", 0, 1)
	other.Merge(child)
	assert.Equal(t, 0, other.MergedCount())
}

func TestDandanAttribute(t *testing.T) {
	c := NewComment("hi", 12346, TopMode)
	c.Color = 255
	assert.Equal(t, "12.35,5,255,0", c.DandanAttribute())

	m := c.ToMap()
	assert.Equal(t, int64(12346), m["time"])
	assert.Equal(t, "0", m["date"])
}

func TestDisplayText(t *testing.T) {
	c := NewComment("看看", 0, 1)
	assert.Equal(t, "看看", c.DisplayText())
	c.Merge(NewComment("看看", 10, 1))
	assert.Equal(t, "看看 X2", c.DisplayText())
}
