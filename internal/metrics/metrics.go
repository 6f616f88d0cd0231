package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector 弹幕渲染和加载的 prometheus 指标，实现 render.Recorder
type Collector struct {
	spawned   prometheus.Counter
	expired   prometheus.Counter
	skipped   *prometheus.CounterVec
	poolCap   prometheus.Gauge
	poolLive  prometheus.Gauge
	sources   *prometheus.CounterVec
	comments  prometheus.Counter
	ruleCount prometheus.Gauge
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		spawned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "danmaku_overlay_spawned_total",
			Help: "上屏的弹幕数量",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "danmaku_overlay_expired_total",
			Help: "离开屏幕或因跳转被回收的弹幕数量",
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "danmaku_overlay_skipped_total",
			Help: "到期但没有上屏的弹幕数量",
		}, []string{"reason"}),
		poolCap: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "danmaku_overlay_pool_capacity",
			Help: "对象池容量",
		}),
		poolLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "danmaku_overlay_pool_live",
			Help: "屏幕上的弹幕实例数量",
		}),
		sources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "danmaku_overlay_source_load_total",
			Help: "来源加载次数",
		}, []string{"result"}),
		comments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "danmaku_overlay_comments_loaded_total",
			Help: "加载的弹幕数量",
		}),
		ruleCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "danmaku_overlay_block_rules",
			Help: "屏蔽规则数量",
		}),
	}
	reg.MustRegister(
		c.spawned,
		c.expired,
		c.skipped,
		c.poolCap,
		c.poolLive,
		c.sources,
		c.comments,
		c.ruleCount,
	)
	return c
}

func (c *Collector) RecordSpawned(n int) {
	c.spawned.Add(float64(n))
}

func (c *Collector) RecordExpired(n int) {
	c.expired.Add(float64(n))
}

func (c *Collector) RecordSkipped(reason string) {
	c.skipped.WithLabelValues(reason).Inc()
}

func (c *Collector) SetPoolStats(capacity, live int) {
	c.poolCap.Set(float64(capacity))
	c.poolLive.Set(float64(live))
}

// RecordLoad 记录一次批量加载的结果
func (c *Collector) RecordLoad(loaded, failed, comments int) {
	c.sources.WithLabelValues("success").Add(float64(loaded))
	c.sources.WithLabelValues("failure").Add(float64(failed))
	c.comments.Add(float64(comments))
}

func (c *Collector) SetRuleCount(n int) {
	c.ruleCount.Set(float64(n))
}

// Handler prometheus 抓取接口
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
