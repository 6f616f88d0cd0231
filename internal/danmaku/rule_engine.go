package danmaku

import (
	"danmaku-overlay/internal/utils"
	"fmt"
	"sync"
	"sync/atomic"
)

const ruleEngineC = "rule_engine"

// RuleEngine 按用户定义的顺序执行屏蔽规则
// 规则列表写时复制，Evaluate 不加锁，总是看到某一个完整版本的列表
type RuleEngine struct {
	rules atomic.Pointer[[]*BlockRule]

	lock      sync.Mutex
	nextID    int
	observers []func([]*BlockRule)
}

func NewRuleEngine(rules ...*BlockRule) *RuleEngine {
	e := &RuleEngine{nextID: 1}
	empty := make([]*BlockRule, 0)
	e.rules.Store(&empty)
	if len(rules) > 0 {
		e.SetRules(rules)
	}
	return e
}

// Evaluate 第一条命中的规则生效，其计数加一，返回规则 id
func (e *RuleEngine) Evaluate(c *Comment) (bool, int) {
	for _, r := range *e.rules.Load() {
		if r.Test(c) {
			r.count.Add(1)
			return true, r.ID
		}
	}
	return false, NotBlocked
}

// Apply 为一批弹幕设置屏蔽标记，返回被屏蔽的数量
func (e *RuleEngine) Apply(batch []*Comment) int {
	var blocked int
	for _, c := range batch {
		hit, id := e.Evaluate(c)
		c.BlockBy = id
		if hit {
			blocked++
		}
	}
	utils.DebugLog(ruleEngineC, "block rules applied", "size", len(batch), "blocked", blocked)
	return blocked
}

// Rules 当前规则列表的快照
func (e *RuleEngine) Rules() []*BlockRule {
	current := *e.rules.Load()
	result := make([]*BlockRule, len(current))
	copy(result, current)
	return result
}

func (e *RuleEngine) Find(id int) *BlockRule {
	for _, r := range *e.rules.Load() {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// OnChange 规则列表替换后回调，回调中不能再修改规则
func (e *RuleEngine) OnChange(fn func([]*BlockRule)) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.observers = append(e.observers, fn)
}

// SetRules 整体替换规则列表，id<=0 的规则会分配新 id
func (e *RuleEngine) SetRules(rules []*BlockRule) {
	e.update(func(_ []*BlockRule) ([]*BlockRule, error) {
		next := make([]*BlockRule, 0, len(rules))
		for _, r := range rules {
			if r.ID >= e.nextID {
				e.nextID = r.ID + 1
			}
		}
		for _, r := range rules {
			r.ensureCounter()
			if r.ID <= 0 {
				r.ID = e.nextID
				e.nextID++
			}
			next = append(next, r)
		}
		return next, nil
	})
}

// Add 追加到末尾，返回分配的 id
func (e *RuleEngine) Add(r *BlockRule) int {
	_ = e.update(func(current []*BlockRule) ([]*BlockRule, error) {
		r.ensureCounter()
		if r.ID <= 0 {
			r.ID = e.nextID
		}
		if r.ID >= e.nextID {
			e.nextID = r.ID + 1
		}
		return append(current, r), nil
	})
	return r.ID
}

func (e *RuleEngine) Remove(id int) error {
	return e.update(func(current []*BlockRule) ([]*BlockRule, error) {
		i := indexOfRule(current, id)
		if i < 0 {
			return nil, fmt.Errorf("block rule %d not found", id)
		}
		return append(current[:i], current[i+1:]...), nil
	})
}

// Move 调整规则优先级，index 越小越先执行
func (e *RuleEngine) Move(id int, index int) error {
	return e.update(func(current []*BlockRule) ([]*BlockRule, error) {
		i := indexOfRule(current, id)
		if i < 0 {
			return nil, fmt.Errorf("block rule %d not found", id)
		}
		if index < 0 || index >= len(current) {
			return nil, fmt.Errorf("block rule index %d out of range", index)
		}
		r := current[i]
		current = append(current[:i], current[i+1:]...)
		current = append(current[:index], append([]*BlockRule{r}, current[index:]...)...)
		return current, nil
	})
}

func (e *RuleEngine) SetEnabled(id int, enable bool) error {
	return e.replace(id, func(r *BlockRule) error {
		if enable && !r.Valid() {
			return &RuleConfigError{Content: r.Content, Err: fmt.Errorf("rule %d has an invalid pattern", id)}
		}
		r.Enable = enable
		return nil
	})
}

func (e *RuleEngine) SetPreFilter(id int, preFilter bool) error {
	return e.replace(id, func(r *BlockRule) error {
		r.UsePreFilter = preFilter
		return nil
	})
}

// ResetCount 计数只会在这里清零
func (e *RuleEngine) ResetCount(id int) error {
	r := e.Find(id)
	if r == nil {
		return fmt.Errorf("block rule %d not found", id)
	}
	r.resetCount()
	return nil
}

func (e *RuleEngine) replace(id int, fn func(r *BlockRule) error) error {
	return e.update(func(current []*BlockRule) ([]*BlockRule, error) {
		i := indexOfRule(current, id)
		if i < 0 {
			return nil, fmt.Errorf("block rule %d not found", id)
		}
		n := current[i].clone()
		if err := fn(n); err != nil {
			return nil, err
		}
		current[i] = n
		return current, nil
	})
}

// update 在副本上修改后整体替换
func (e *RuleEngine) update(fn func(current []*BlockRule) ([]*BlockRule, error)) error {
	e.lock.Lock()
	old := *e.rules.Load()
	working := make([]*BlockRule, len(old))
	copy(working, old)
	next, err := fn(working)
	if err != nil {
		e.lock.Unlock()
		return err
	}
	e.rules.Store(&next)
	observers := make([]func([]*BlockRule), len(e.observers))
	copy(observers, e.observers)
	e.lock.Unlock()

	utils.DebugLog(ruleEngineC, "block rules updated", "size", len(next))
	snapshot := make([]*BlockRule, len(next))
	copy(snapshot, next)
	for _, fn := range observers {
		fn(snapshot)
	}
	return nil
}

func indexOfRule(rules []*BlockRule, id int) int {
	for i, r := range rules {
		if r.ID == id {
			return i
		}
	}
	return -1
}
