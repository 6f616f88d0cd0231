package fetch

import (
	"context"
	"danmaku-overlay/internal/danmaku"
	"danmaku-overlay/internal/utils"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Loader 并发下载多个来源，结果通过 Handoff 交给渲染循环
type Loader struct {
	fetcher   *Fetcher
	handoff   *danmaku.Handoff
	maxWorker int
}

type Result struct {
	Loaded   int
	Failed   int
	Comments int
}

func NewLoader(fetcher *Fetcher, handoff *danmaku.Handoff, maxWorker int) *Loader {
	if maxWorker <= 0 {
		maxWorker = 1
	}
	return &Loader{fetcher: fetcher, handoff: handoff, maxWorker: maxWorker}
}

// LoadAll 单个来源失败只记录日志，只有提交到 Handoff 失败（ctx 结束）才返回错误
func (l *Loader) LoadAll(ctx context.Context, reqs []Request) (Result, error) {
	var loaded, failed, comments atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.maxWorker)
	for _, r := range reqs {
		r := r
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			src, list, err := l.fetcher.FetchComments(gctx, r)
			if err != nil {
				failed.Add(1)
				utils.ErrorLog(fetchC, "load source failed", "title", r.Title, "error", err)
				return nil
			}
			if err = l.handoff.Submit(gctx, danmaku.Batch{Source: src, Comments: list}); err != nil {
				return err
			}
			loaded.Add(1)
			comments.Add(int64(len(list)))
			utils.InfoLog(fetchC, "source loaded", "title", r.Title, "size", len(list))
			return nil
		})
	}
	err := g.Wait()
	return Result{Loaded: int(loaded.Load()), Failed: int(failed.Load()), Comments: int(comments.Load())}, err
}
