package danmaku

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment 时间轴中的一段，Start 开始时间(秒)，Count 持续时间(秒)
type Segment struct {
	Start int
	Count int
}

// Source 弹幕来源，同一来源的弹幕共享延迟和显示开关
type Source struct {
	ID         int
	Title      string
	Desc       string
	ScriptID   string
	ScriptData string

	Delay    int64 // ms，可以为负
	Count    int
	Duration int // 秒
	Show     bool

	timeline []Segment
}

func NewSource(title string) *Source {
	return &Source{ID: -1, Title: title, Show: true}
}

// SetTimeline 解析失败时保留原时间轴
func (s *Source) SetTimeline(str string) error {
	segments, err := ParseTimeline(str)
	if err != nil {
		return err
	}
	s.timeline = segments
	return nil
}

func (s *Source) Timeline() []Segment {
	result := make([]Segment, len(s.timeline))
	copy(result, s.timeline)
	return result
}

func (s *Source) TimelineStr() string {
	return FormatTimeline(s.timeline)
}

// DurationStr mm:ss
func (s *Source) DurationStr() string {
	minute := s.Duration / 60
	sec := s.Duration - minute*60
	return fmt.Sprintf("%02d:%02d", minute, sec)
}

func (s *Source) ToMap() map[string]any {
	return map[string]any{
		"title":    s.Title,
		"desc":     s.Desc,
		"data":     s.ScriptData,
		"duration": s.Duration,
		"delay":    s.Delay,
	}
}

// ParseTimeline 格式: start:count[,start:count]...
// 各段按 start 严格递增且不重叠，空字符串表示没有时间轴
func ParseTimeline(str string) ([]Segment, error) {
	if str == "" {
		return []Segment{}, nil
	}
	parts := strings.Split(str, ",")
	result := make([]Segment, 0, len(parts))
	offset := 0
	for _, part := range parts {
		pos := strings.IndexByte(part, ':')
		if pos < 0 {
			return nil, &ParseError{Input: str, Offset: offset, Reason: "missing ':'"}
		}
		start, err := parseTimelineNumber(part[:pos])
		if err != nil {
			return nil, &ParseError{Input: str, Offset: offset, Reason: "invalid start: " + err.Error()}
		}
		count, err := parseTimelineNumber(part[pos+1:])
		if err != nil {
			return nil, &ParseError{Input: str, Offset: offset + pos + 1, Reason: "invalid count: " + err.Error()}
		}
		if n := len(result); n > 0 {
			last := result[n-1]
			if start <= last.Start || last.Start+last.Count > start {
				return nil, &ParseError{Input: str, Offset: offset, Reason: "segments overlap or are out of order"}
			}
		}
		result = append(result, Segment{Start: start, Count: count})
		offset += len(part) + 1
	}
	return result, nil
}

// 只接受不带符号和前导零的十进制数，保证可以原样序列化回去
func parseTimelineNumber(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("leading zero in %q", s)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("not a number: %q", s)
		}
	}
	return strconv.Atoi(s)
}

func FormatTimeline(segments []Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(seg.Start))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(seg.Count))
	}
	return b.String()
}
