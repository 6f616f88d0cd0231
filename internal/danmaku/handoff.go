package danmaku

import (
	"context"
)

// Batch 后台任务解析完成的一组弹幕
type Batch struct {
	Source   *Source
	Comments []*Comment
}

// Handoff 抓取/解析线程把数据交给渲染循环，渲染循环在自己的线程里 Drain
type Handoff struct {
	ch chan Batch
}

func NewHandoff(size int) *Handoff {
	if size <= 0 {
		size = 16
	}
	return &Handoff{ch: make(chan Batch, size)}
}

// Submit 队列满时阻塞，直到有空间或 ctx 结束
func (h *Handoff) Submit(ctx context.Context, b Batch) error {
	select {
	case h.ch <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain 不阻塞，取出当前所有待处理的数据
func (h *Handoff) Drain(fn func(b Batch)) int {
	var n int
	for {
		select {
		case b := <-h.ch:
			fn(b)
			n++
		default:
			return n
		}
	}
}

func (h *Handoff) Pending() int {
	return len(h.ch)
}
