package fetch

import (
	"compress/gzip"
	"compress/zlib"
	"context"
	"danmaku-overlay/internal/config"
	"danmaku-overlay/internal/danmaku"
	"danmaku-overlay/internal/parser"
	"danmaku-overlay/internal/utils"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"
)

const fetchC = "fetch"

const defaultUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36"

// Request 一个弹幕来源，可以由多个分段地址组成
type Request struct {
	Title string
	URLs  []string
	// 为空时按 content-type 判断
	Format   string
	Delay    int64
	Timeline string
	Hidden   bool
	Header   map[string]string
}

type Options struct {
	Timeout time.Duration
	// 每秒请求数，<=0 不限制
	Rate float64
	UA   string
}

// Fetcher 下载并解码弹幕数据，所有请求共享同一个限速器
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	ua      string
}

func NewFetcher(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UA == "" {
		opts.UA = defaultUA
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), 1)
	}
	return &Fetcher{
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: limiter,
		ua:      opts.UA,
	}
}

func OptionsFromConfig(c *config.OverlayConfig) Options {
	return Options{
		Timeout: time.Duration(c.Fetch.Timeout) * time.Second,
		Rate:    c.Fetch.Rate,
		UA:      c.Fetch.UA,
	}
}

// Fetch 返回解压后的内容和 content-type
func (f *Fetcher) Fetch(ctx context.Context, url string, header map[string]string) ([]byte, string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("rate limiter: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request err: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)
	// 手动设置后 http.Transport 不再自动解压
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer utils.SafeClose(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("request %s not ok: %s", url, resp.Status)
	}

	body, err := decode(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", url, err)
	}
	utils.DebugLog(fetchC, "fetched", "url", url, "size", len(body), "encoding", resp.Header.Get("Content-Encoding"))
	return body, resp.Header.Get("Content-Type"), nil
}

func decode(encoding string, r io.Reader) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip":
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer utils.SafeClose(gr)
		return io.ReadAll(gr)
	case "br":
		return io.ReadAll(brotli.NewReader(r))
	case "deflate":
		// http 的 deflate 是 zlib 格式
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer utils.SafeClose(zr)
		return io.ReadAll(zr)
	case "", "identity":
		return io.ReadAll(r)
	}
	return nil, fmt.Errorf("unsupported content encoding: %s", encoding)
}

// FetchComments 依次下载所有分段并解析成一个来源
func (f *Fetcher) FetchComments(ctx context.Context, r Request) (*danmaku.Source, []*danmaku.Comment, error) {
	if len(r.URLs) == 0 {
		return nil, nil, fmt.Errorf("source %s has no url", r.Title)
	}
	var explicit parser.Parser
	if r.Format != "" {
		p, err := parser.ForFormat(r.Format)
		if err != nil {
			return nil, nil, err
		}
		explicit = p
	}

	var comments []*danmaku.Comment
	for _, url := range r.URLs {
		body, contentType, err := f.Fetch(ctx, url, r.Header)
		if err != nil {
			return nil, nil, err
		}
		p := explicit
		if p == nil {
			p = parser.Detect(contentType, body)
		} else if p.Format() != parser.DandanFormat && strings.Contains(contentType, "json") {
			// 没有权限时 bilibili 返回 200 和 json 错误信息
			return nil, nil, fmt.Errorf("unexpected json response from %s: %s", url, truncate(body, 200))
		}
		list, err := p.Parse(body)
		if err != nil {
			return nil, nil, fmt.Errorf("parse %s: %w", url, err)
		}
		comments = append(comments, list...)
	}

	src := danmaku.NewSource(r.Title)
	src.Desc = r.URLs[0]
	src.Delay = r.Delay
	src.Show = !r.Hidden
	if r.Timeline != "" {
		if err := src.SetTimeline(r.Timeline); err != nil {
			return nil, nil, err
		}
	}
	return src, comments, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
