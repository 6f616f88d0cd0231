package render

// ReplayStats 回放统计
type ReplayStats struct {
	Frames   int
	Spawned  int
	Expired  int
	Skipped  map[string]int
	PeakLive int
	PoolCap  int
	Grows    int
}

func (s *ReplayStats) RecordSpawned(n int) { s.Spawned += n }
func (s *ReplayStats) RecordExpired(n int) { s.Expired += n }
func (s *ReplayStats) RecordSkipped(reason string) {
	if s.Skipped == nil {
		s.Skipped = make(map[string]int)
	}
	s.Skipped[reason]++
}
func (s *ReplayStats) SetPoolStats(capacity, live int) {
	s.PoolCap = capacity
	s.PeakLive = max(s.PeakLive, live)
}

// Replay 以 step 为帧间隔从 start 播放到 end，结束后清空屏幕
// 回放期间替换 Recorder，结束后恢复
func Replay(o *Overlay, start, end, step int64) *ReplayStats {
	if step <= 0 {
		step = 16
	}
	stats := &ReplayStats{}
	prev := o.recorder
	o.SetRecorder(stats)
	defer o.SetRecorder(prev)

	o.Seek(start)
	for t := start; t <= end; t += step {
		o.Advance(t)
		stats.Frames++
	}
	stats.RecordExpired(o.Clear())
	stats.Grows = o.pool.Grows()
	return stats
}

// EndTime 所有可见弹幕显示结束的时间
func (o *Overlay) EndTime() int64 {
	var last int64
	for _, src := range o.timeline.Sources() {
		for _, c := range o.timeline.Comments(src.ID) {
			last = max(last, c.Time)
		}
	}
	return last + o.window()
}
