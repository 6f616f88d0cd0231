package danmaku

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
)

type Field int

const (
	FieldText Field = iota
	FieldColor
	FieldSender
)

var fieldNames = []string{"text", "color", "sender"}

func (f Field) String() string {
	if int(f) < 0 || int(f) >= len(fieldNames) {
		return "unknown"
	}
	return fieldNames[f]
}

func ParseField(s string) (Field, error) {
	for i, v := range fieldNames {
		if strings.EqualFold(v, s) {
			return Field(i), nil
		}
	}
	return 0, fmt.Errorf("unknown block field: %s", s)
}

type Relation int

const (
	Contain Relation = iota
	Equal
	NotEqual
)

var relationNames = []string{"contain", "equal", "not-equal"}

func (r Relation) String() string {
	if int(r) < 0 || int(r) >= len(relationNames) {
		return "unknown"
	}
	return relationNames[r]
}

func ParseRelation(s string) (Relation, error) {
	for i, v := range relationNames {
		if strings.EqualFold(v, s) {
			return Relation(i), nil
		}
	}
	return 0, fmt.Errorf("unknown block relation: %s", s)
}

// BlockRule 弹幕屏蔽规则
// 除计数外构造后不再修改，需要修改时复制一份新的规则，副本与原规则共用计数
type BlockRule struct {
	ID           int
	Name         string
	Field        Field
	Relation     Relation
	Content      string
	IsRegExp     bool
	Enable       bool
	UsePreFilter bool

	count     *atomic.Int64
	re        *regexp.Regexp
	fullRe    *regexp.Regexp
	preFilter string
}

// NewBlockRule 正则无法编译时返回禁用状态的规则和 RuleConfigError，该规则永远不会命中
func NewBlockRule(content string, field Field, relation Relation, isRegExp bool) (*BlockRule, error) {
	r := &BlockRule{
		Content:  content,
		Field:    field,
		Relation: relation,
		IsRegExp: isRegExp,
		Enable:   true,
		count:    new(atomic.Int64),
	}
	if err := r.compile(); err != nil {
		r.Enable = false
		return r, err
	}
	return r, nil
}

func (r *BlockRule) compile() error {
	r.re, r.fullRe, r.preFilter = nil, nil, ""
	if !r.IsRegExp {
		r.preFilter = r.Content
		return nil
	}
	re, err := regexp.Compile(r.Content)
	if err != nil {
		return &RuleConfigError{Content: r.Content, Err: err}
	}
	full, err := regexp.Compile(`^(?:` + r.Content + `)$`)
	if err != nil {
		return &RuleConfigError{Content: r.Content, Err: err}
	}
	r.re, r.fullRe = re, full
	// 任何匹配结果都包含正则的字面量前缀
	r.preFilter, _ = re.LiteralPrefix()
	return nil
}

// Valid 正则规则编译失败时为 false
func (r *BlockRule) Valid() bool {
	return !r.IsRegExp || r.re != nil
}

func (r *BlockRule) BlockCount() int64 {
	if r.count == nil {
		return 0
	}
	return r.count.Load()
}

// RestoreCount 恢复持久化的命中次数，需在加入引擎前调用
func (r *BlockRule) RestoreCount(n int64) {
	r.ensureCounter()
	r.count.Store(n)
}

func (r *BlockRule) resetCount() {
	r.count.Store(0)
}

// ensureCounter 直接构造的规则在发布前补上计数
func (r *BlockRule) ensureCounter() {
	if r.count == nil {
		r.count = new(atomic.Int64)
	}
}

func (r *BlockRule) clone() *BlockRule {
	n := &BlockRule{
		ID:           r.ID,
		Name:         r.Name,
		Field:        r.Field,
		Relation:     r.Relation,
		Content:      r.Content,
		IsRegExp:     r.IsRegExp,
		Enable:       r.Enable,
		UsePreFilter: r.UsePreFilter,
		re:           r.re,
		fullRe:       r.fullRe,
		preFilter:    r.preFilter,
		count:        r.count,
	}
	return n
}

func (r *BlockRule) target(c *Comment) string {
	switch r.Field {
	case FieldColor:
		return strconv.Itoa(c.Color)
	case FieldSender:
		return c.Sender
	}
	return c.Text
}

func (r *BlockRule) equal(s string) bool {
	if r.IsRegExp {
		return r.fullRe.MatchString(s)
	}
	return s == r.Content
}

// Test 只判断是否命中，不修改计数
func (r *BlockRule) Test(c *Comment) bool {
	if !r.Enable || !r.Valid() {
		return false
	}
	s := r.target(c)
	// NotEqual 无法通过子串提前排除
	if r.UsePreFilter && r.Relation != NotEqual && r.preFilter != "" && !strings.Contains(s, r.preFilter) {
		return false
	}
	switch r.Relation {
	case Contain:
		if r.IsRegExp {
			return r.re.MatchString(s)
		}
		return strings.Contains(s, r.Content)
	case Equal:
		return r.equal(s)
	case NotEqual:
		return !r.equal(s)
	}
	return false
}
