package danmaku

import (
	"fmt"
)

// ParseError 时间轴或弹幕数据格式错误
type ParseError struct {
	Input  string
	Offset int // 出错位置，-1 表示未知
	Reason string
}

func (e *ParseError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("parse %q at %d: %s", e.Input, e.Offset, e.Reason)
	}
	return fmt.Sprintf("parse %q: %s", e.Input, e.Reason)
}

// RuleConfigError 屏蔽规则在构造时无法使用，比如正则错误
type RuleConfigError struct {
	Content string
	Err     error
}

func (e *RuleConfigError) Error() string {
	return fmt.Sprintf("block rule %q: %v", e.Content, e.Err)
}

func (e *RuleConfigError) Unwrap() error {
	return e.Err
}

// ContractViolation 调用方违反了对象池等组件的使用约定，属于程序错误
type ContractViolation struct {
	Op     string
	Reason string
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("contract violation in %s: %s", e.Op, e.Reason)
}
