package danmaku

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(tl *Timeline, from, to int64) []*Comment {
	var result []*Comment
	tl.Range(from, to, func(c *Comment) bool {
		result = append(result, c)
		return true
	})
	return result
}

func newTimelineWithSource(t *testing.T, times ...int64) (*Timeline, int, []*Comment) {
	t.Helper()
	tl := NewTimeline()
	id, err := tl.AddSource(NewSource("test"))
	require.NoError(t, err)
	batch := make([]*Comment, len(times))
	for i, tm := range times {
		batch[i] = NewComment("c", tm, NormalMode)
	}
	require.NoError(t, tl.AddComments(id, batch))
	return tl, id, batch
}

func TestTimelineOrder(t *testing.T) {
	tl, _, batch := newTimelineWithSource(t, 300, 100, 200, 100)
	got := collect(tl, 0, 1000)
	require.Len(t, got, 4)
	// 同一时间按加入顺序
	assert.Same(t, batch[1], got[0])
	assert.Same(t, batch[3], got[1])
	assert.Same(t, batch[2], got[2])
	assert.Same(t, batch[0], got[3])

	// [from, to)
	assert.Len(t, collect(tl, 100, 200), 2)
	assert.Len(t, collect(tl, 101, 300), 1)
}

func TestSetDelayShiftsAndReverts(t *testing.T) {
	tl, id, batch := newTimelineWithSource(t, 0, 1500, 3000)
	require.NoError(t, tl.MergeInto(batch[1], batch[2]))

	require.NoError(t, tl.SetDelay(id, -700))
	for _, c := range batch {
		assert.Equal(t, c.OriginTime-700, c.Time)
	}
	got := collect(tl, -1000, 10000)
	require.Len(t, got, 2)
	assert.Equal(t, int64(-700), got[0].Time)
	assert.Equal(t, int64(800), got[1].Time)

	require.NoError(t, tl.SetDelay(id, 0))
	for _, c := range batch {
		assert.Equal(t, c.OriginTime, c.Time)
	}
	assert.Len(t, collect(tl, 0, 1), 1)
}

func TestAddCommentsUsesCurrentDelay(t *testing.T) {
	tl, id, _ := newTimelineWithSource(t)
	require.NoError(t, tl.SetDelay(id, 500))
	c := NewComment("late", 100, NormalMode)
	require.NoError(t, tl.AddComments(id, []*Comment{c}))
	assert.Equal(t, int64(600), c.Time)
	assert.Equal(t, id, c.Source)
	assert.Equal(t, 1, tl.Source(id).Count)
}

func TestMergeIntoRemovesFromIndex(t *testing.T) {
	tl, _, batch := newTimelineWithSource(t, 100, 100)
	require.NoError(t, tl.MergeInto(batch[0], batch[1]))
	assert.Equal(t, 1, tl.Len())
	assert.Equal(t, 1, batch[0].MergedCount())
	assert.True(t, batch[1].IsMerged())

	assert.Error(t, tl.MergeInto(batch[0], batch[1]))
	assert.Error(t, tl.MergeInto(batch[0], batch[0]))
	assert.Error(t, tl.MergeInto(batch[0], NewComment("x", 0, 1)))
}

func TestHiddenSource(t *testing.T) {
	tl, id, _ := newTimelineWithSource(t, 100)
	other, err := tl.AddSource(NewSource("other"))
	require.NoError(t, err)
	require.NoError(t, tl.AddComments(other, []*Comment{NewComment("o", 150, 1)}))

	require.NoError(t, tl.SetShow(id, false))
	got := collect(tl, 0, 1000)
	require.Len(t, got, 1)
	assert.Equal(t, other, got[0].Source)
}

func TestRemoveSource(t *testing.T) {
	tl, id, _ := newTimelineWithSource(t, 1, 2, 3)
	assert.True(t, tl.RemoveSource(id))
	assert.Equal(t, 0, tl.Len())
	assert.False(t, tl.RemoveSource(id))
	assert.Error(t, tl.AddComments(id, nil))
}

func TestAddSourceDuplicate(t *testing.T) {
	tl := NewTimeline()
	s := NewSource("a")
	s.ID = 7
	id, err := tl.AddSource(s)
	require.NoError(t, err)
	assert.Equal(t, 7, id)
	_, err = tl.AddSource(&Source{ID: 7})
	assert.Error(t, err)

	next, err := tl.AddSource(NewSource("b"))
	require.NoError(t, err)
	assert.Equal(t, 8, next)
	assert.Len(t, tl.Sources(), 2)
}

func TestReblock(t *testing.T) {
	tl, _, _ := newTimelineWithSource(t, 1, 2)
	e := NewRuleEngine(mustRule(t, "c", FieldText, Equal, false))
	assert.Equal(t, 2, tl.Reblock(e))
}

func TestOwnedIncludesMerged(t *testing.T) {
	tl, id, batch := newTimelineWithSource(t, 300, 100, 100)
	require.NoError(t, tl.MergeInto(batch[1], batch[2]))
	owned := tl.Owned(id)
	require.Len(t, owned, 3)
	assert.Equal(t, []int64{100, 100, 300}, []int64{owned[0].OriginTime, owned[1].OriginTime, owned[2].OriginTime})
	assert.Len(t, tl.Comments(id), 2)
	assert.Empty(t, tl.Owned(id+1))
}
