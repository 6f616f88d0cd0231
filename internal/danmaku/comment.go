package danmaku

import (
	"strconv"
)

type CommentType int

const (
	Rolling CommentType = iota
	Top
	Bottom
	UnknownType
)

func (t CommentType) String() string {
	switch t {
	case Rolling:
		return "rolling"
	case Top:
		return "top"
	case Bottom:
		return "bottom"
	}
	return "unknown"
}

type FontSizeLevel int

const (
	NormalSize FontSizeLevel = iota
	SmallSize
	LargeSize
)

// 弹幕协议中的 mode 值
const (
	NormalMode = 1
	BottomMode = 4
	TopMode    = 5
)

const WhiteColor = 16777215

// NotBlocked BlockBy 未被任何规则屏蔽
const NotBlocked = -1

// Comment 一条解析后的弹幕
// 解析完成后只有屏蔽标记、时间和合并关系会变化
type Comment struct {
	Text     string
	Sender   string
	Color    int // 0xRRGGBB
	Type     CommentType
	FontSize FontSizeLevel
	Date     int64 // 发送时间 unix 秒

	// 播放时间 ms，Time 为加上来源延迟之后的时间
	Time       int64
	OriginTime int64

	Source  int
	BlockBy int

	// 被合并到当前弹幕的重复弹幕，只计数不单独显示
	Merged []*Comment
	parent *Comment

	seq uint64 // 进入时间轴的顺序
}

func NewComment(text string, originTime int64, mode int) *Comment {
	c := &Comment{
		Text:       text,
		Color:      WhiteColor,
		Time:       originTime,
		OriginTime: originTime,
		BlockBy:    NotBlocked,
		Source:     -1,
	}
	c.SetType(mode)
	return c
}

// SetType 1/2/3 滚动 4底部 5顶部，其他按滚动处理
func (c *Comment) SetType(mode int) {
	switch mode {
	case 1, 2, 3:
		c.Type = Rolling
	case BottomMode:
		c.Type = Bottom
	case TopMode:
		c.Type = Top
	default:
		c.Type = Rolling
	}
}

// Equal 同一类型同一时间即视为同一条，不比较文本
func (c *Comment) Equal(o *Comment) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.Type == o.Type && c.Time == o.Time
}

func (c *Comment) Blocked() bool {
	return c.BlockBy != NotBlocked
}

// Parent 被合并时返回主弹幕
func (c *Comment) Parent() *Comment {
	return c.parent
}

func (c *Comment) IsMerged() bool {
	return c.parent != nil
}

func (c *Comment) MergedCount() int {
	return len(c.Merged)
}

// Merge 将 child 移交给 c，child 自身已合并的弹幕一并转移
// 已加入时间轴的弹幕使用 Timeline.MergeInto，否则索引不会更新
func (c *Comment) Merge(child *Comment) {
	if child == c || child.parent != nil {
		return
	}
	c.Merged = append(c.Merged, child)
	child.parent = c
	if len(child.Merged) > 0 {
		for _, m := range child.Merged {
			m.parent = c
		}
		c.Merged = append(c.Merged, child.Merged...)
		child.Merged = nil
	}
}

// DisplayText 有合并弹幕时附加数量，如 "看看 X2"
func (c *Comment) DisplayText() string {
	if len(c.Merged) == 0 {
		return c.Text
	}
	return c.Text + " X" + strconv.Itoa(len(c.Merged)+1)
}

func (c *Comment) shift(delay int64) {
	c.Time = c.OriginTime + delay
}

// ToMap 导出给脚本或界面使用，时间使用原始时间
func (c *Comment) ToMap() map[string]any {
	return map[string]any{
		"text":     c.Text,
		"time":     c.OriginTime,
		"color":    c.Color,
		"fontsize": int(c.FontSize),
		"date":     strconv.FormatInt(c.Date, 10),
		"type":     int(c.Type),
	}
}

// DandanAttribute 生成 dandan api 的 p 字段: 时间(秒),模式,颜色,用户
func (c *Comment) DandanAttribute() string {
	mode := NormalMode
	switch c.Type {
	case Top:
		mode = TopMode
	case Bottom:
		mode = BottomMode
	}
	sender := c.Sender
	if sender == "" {
		sender = "0"
	}
	return strconv.FormatFloat(float64(c.OriginTime)/1000, 'f', 2, 64) + "," +
		strconv.Itoa(mode) + "," + strconv.Itoa(c.Color) + "," + sender
}
