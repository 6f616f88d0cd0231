package overlay

import (
	"context"
	"danmaku-overlay/internal/danmaku"
	"danmaku-overlay/internal/fetch"
	"danmaku-overlay/internal/metrics"
	"danmaku-overlay/internal/render"
	"danmaku-overlay/internal/store"
	"danmaku-overlay/internal/utils"
	"errors"
	"sync"
)

const serviceC = "overlay_service"

// Service 服务端模式下充当渲染循环，所有对 Overlay 的访问都持有 lock
type Service struct {
	lock    sync.Mutex
	overlay *render.Overlay

	loader  *fetch.Loader
	rules   store.RuleStore
	sources store.SourceStore
	metrics *metrics.Collector

	// 按标题记录来源的加载方式，用于保存和重新加载
	reqLock  sync.Mutex
	requests map[string]fetch.Request

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Options struct {
	Loader  *fetch.Loader
	Rules   store.RuleStore
	Sources store.SourceStore
	Metrics *metrics.Collector
}

func NewService(o *render.Overlay, opts Options) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		overlay:  o,
		loader:   opts.Loader,
		rules:    opts.Rules,
		sources:  opts.Sources,
		metrics:  opts.Metrics,
		requests: make(map[string]fetch.Request),
		ctx:      ctx,
		cancel:   cancel,
	}
	if s.metrics != nil {
		o.SetRecorder(s.metrics)
		s.metrics.SetRuleCount(len(o.Engine().Rules()))
		o.Engine().OnChange(func(rules []*danmaku.BlockRule) {
			s.metrics.SetRuleCount(len(rules))
		})
	}
	return s
}

// Restore 读取保存的规则，并在后台重新加载保存的来源
func (s *Service) Restore() error {
	var errs []error
	if s.rules != nil {
		rules, err := s.rules.LoadRules()
		if err != nil {
			// 无法使用的规则以禁用状态保留
			errs = append(errs, err)
		}
		if len(rules) > 0 {
			s.overlay.Engine().SetRules(rules)
			utils.InfoLog(serviceC, "block rules restored", "size", len(rules))
		}
	}
	if s.sources != nil {
		records, err := s.sources.LoadSources()
		if err != nil {
			errs = append(errs, err)
		}
		if len(records) > 0 {
			reqs := make([]fetch.Request, 0, len(records))
			for _, r := range records {
				reqs = append(reqs, fetch.Request{
					Title:    r.Title,
					URLs:     r.URLs,
					Format:   r.Format,
					Delay:    r.Delay,
					Timeline: r.Timeline,
					Hidden:   !r.Show,
				})
			}
			s.LoadAsync(reqs)
		}
	}
	return errors.Join(errs...)
}

// Load 下载来源并等待全部提交给渲染循环
func (s *Service) Load(ctx context.Context, reqs []fetch.Request) (fetch.Result, error) {
	if s.loader == nil {
		return fetch.Result{}, errors.New("source loader is not configured")
	}
	s.reqLock.Lock()
	for _, r := range reqs {
		s.requests[r.Title] = r
	}
	s.reqLock.Unlock()

	res, err := s.loader.LoadAll(ctx, reqs)
	if s.metrics != nil {
		s.metrics.RecordLoad(res.Loaded, res.Failed, res.Comments)
	}
	return res, err
}

func (s *Service) LoadAsync(reqs []fetch.Request) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := s.Load(s.ctx, reqs)
		if err != nil {
			utils.ErrorLog(serviceC, "load sources failed", "error", err)
			return
		}
		utils.InfoLog(serviceC, "sources loaded", "loaded", res.Loaded, "failed", res.Failed, "comments", res.Comments)
	}()
}

// do 在渲染循环中执行 fn，先处理待接收的数据
func (s *Service) do(fn func(o *render.Overlay) error) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.overlay.Sync()
	return fn(s.overlay)
}

func (s *Service) saveRules() {
	if s.rules == nil {
		return
	}
	if err := s.rules.SaveRules(s.overlay.Engine().Rules()); err != nil {
		utils.ErrorLog(serviceC, "save block rules failed", "error", err)
	}
}

// sourceRecords 只保存通过地址加载的来源
func (s *Service) sourceRecords() []store.SourceRecord {
	s.reqLock.Lock()
	defer s.reqLock.Unlock()
	var records []store.SourceRecord
	_ = s.do(func(o *render.Overlay) error {
		for _, src := range o.Timeline().Sources() {
			req, ok := s.requests[src.Title]
			if !ok {
				continue
			}
			records = append(records, store.SourceRecord{
				Title:    src.Title,
				URLs:     req.URLs,
				Format:   req.Format,
				Delay:    src.Delay,
				Timeline: src.TimelineStr(),
				Show:     src.Show,
			})
		}
		return nil
	})
	return records
}

// Close 停止后台加载并保存规则和来源
func (s *Service) Close() error {
	s.cancel()
	s.wg.Wait()
	var errs []error
	if s.rules != nil {
		errs = append(errs, s.rules.SaveRules(s.overlay.Engine().Rules()))
	}
	if s.sources != nil {
		if records := s.sourceRecords(); len(records) > 0 {
			errs = append(errs, s.sources.SaveSources(records))
		}
	}
	return errors.Join(errs...)
}
