package parser

import (
	"danmaku-overlay/internal/danmaku"
	"danmaku-overlay/internal/utils"

	"google.golang.org/protobuf/encoding/protowire"
)

// bilibili DmSegMobileReply/DanmakuElem 字段号
const (
	segElemsField = 1

	elemProgress = 2 // ms
	elemMode     = 3
	elemFontSize = 4
	elemColor    = 5
	elemMidHash  = 6
	elemContent  = 7
	elemCtime    = 8
)

// SegmentParser 解析 bilibili seg.so 分段弹幕
// 没有生成的 pb 类型，直接按字段号读取
type SegmentParser struct{}

func (p *SegmentParser) Format() string {
	return BilibiliSegFormat
}

func (p *SegmentParser) Parse(data []byte) ([]*danmaku.Comment, error) {
	var result []*danmaku.Comment
	var skipped int
	for pos := 0; pos < len(data); {
		num, typ, n := protowire.ConsumeTag(data[pos:])
		if n < 0 {
			return nil, segmentError(pos, n)
		}
		pos += n
		if num != segElemsField || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, data[pos:])
			if n < 0 {
				return nil, segmentError(pos, n)
			}
			pos += n
			continue
		}
		elem, n := protowire.ConsumeBytes(data[pos:])
		if n < 0 {
			return nil, segmentError(pos, n)
		}
		c, err := parseElem(elem, pos+n-len(elem))
		if err != nil {
			return nil, err
		}
		pos += n
		if c.Text == "" {
			skipped++
			continue
		}
		result = append(result, c)
	}
	if skipped > 0 {
		utils.DebugLog(parserC, "empty segment danmaku skipped", "skipped", skipped)
	}
	return result, nil
}

func parseElem(data []byte, base int) (*danmaku.Comment, error) {
	var progress, mode, fontSize, color, ctime uint64
	var text, sender string
	for pos := 0; pos < len(data); {
		num, typ, n := protowire.ConsumeTag(data[pos:])
		if n < 0 {
			return nil, segmentError(base+pos, n)
		}
		pos += n
		switch {
		case typ == protowire.VarintType && (num == elemProgress || num == elemMode ||
			num == elemFontSize || num == elemColor || num == elemCtime):
			v, n := protowire.ConsumeVarint(data[pos:])
			if n < 0 {
				return nil, segmentError(base+pos, n)
			}
			pos += n
			switch num {
			case elemProgress:
				progress = v
			case elemMode:
				mode = v
			case elemFontSize:
				fontSize = v
			case elemColor:
				color = v
			case elemCtime:
				ctime = v
			}
		case typ == protowire.BytesType && (num == elemMidHash || num == elemContent):
			v, n := protowire.ConsumeString(data[pos:])
			if n < 0 {
				return nil, segmentError(base+pos, n)
			}
			pos += n
			if num == elemContent {
				text = v
			} else {
				sender = v
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, data[pos:])
			if n < 0 {
				return nil, segmentError(base+pos, n)
			}
			pos += n
		}
	}
	// progress 为 int32
	c := danmaku.NewComment(text, int64(int32(progress)), int(int32(mode)))
	if c.OriginTime < 0 {
		c.Time, c.OriginTime = 0, 0
	}
	c.FontSize = fontSizeLevel(int(int32(fontSize)))
	c.Color = int(uint32(color) & 0xffffff)
	c.Date = int64(ctime)
	c.Sender = sender
	return c, nil
}

func segmentError(offset, n int) error {
	return &danmaku.ParseError{Input: "bilibili segment", Offset: offset, Reason: protowire.ParseError(n).Error()}
}
