package parser

import (
	"danmaku-overlay/internal/danmaku"
	"danmaku-overlay/internal/utils"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// DandanComments 弹弹play /api/v2/comment 返回结构
type DandanComments struct {
	Count    int             `json:"count"`
	Comments []DandanComment `json:"comments"`
}

type DandanComment struct {
	CId int64 `json:"cid"`
	// 时间(秒),模式,颜色,用户
	P string `json:"p"`
	M string `json:"m"`
}

type DandanParser struct{}

func (p *DandanParser) Format() string {
	return DandanFormat
}

func (p *DandanParser) Parse(data []byte) ([]*danmaku.Comment, error) {
	var body DandanComments
	if err := json.Unmarshal(data, &body); err != nil {
		offset := -1
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &syntaxErr):
			offset = int(syntaxErr.Offset)
		case errors.As(err, &typeErr):
			offset = int(typeErr.Offset)
		}
		return nil, &danmaku.ParseError{Input: "dandan json", Offset: offset, Reason: err.Error()}
	}
	result := make([]*danmaku.Comment, 0, len(body.Comments))
	var skipped int
	for _, v := range body.Comments {
		c, err := parseDandanAttributes(v.P, v.M)
		if err != nil {
			skipped++
			utils.DebugLog(parserC, "skip dandan danmaku", "cid", v.CId, "p", v.P, "error", err)
			continue
		}
		result = append(result, c)
	}
	if skipped > 0 {
		utils.WarnLog(parserC, "dandan danmaku skipped", "skipped", skipped, "parsed", len(result))
	}
	return result, nil
}

func parseDandanAttributes(attr, content string) (*danmaku.Comment, error) {
	fields := strings.Split(attr, ",")
	if len(fields) < 3 {
		return nil, errors.New("p attribute needs at least 3 fields")
	}
	sec, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil || sec < 0 || math.IsInf(sec, 0) || math.IsNaN(sec) {
		return nil, errors.New("invalid time")
	}
	mode, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return nil, errors.New("invalid mode")
	}
	color, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
	if err != nil {
		return nil, errors.New("invalid color")
	}
	c := danmaku.NewComment(content, int64(math.Round(sec*1000)), mode)
	c.Color = int(color & 0xffffff)
	if len(fields) > 3 {
		c.Sender = strings.TrimSpace(fields[3])
	}
	return c, nil
}

// MarshalDandan 导出为弹弹play 格式，cid 按顺序编号
func MarshalDandan(comments []*danmaku.Comment) ([]byte, error) {
	body := DandanComments{
		Count:    len(comments),
		Comments: make([]DandanComment, 0, len(comments)),
	}
	for i, c := range comments {
		body.Comments = append(body.Comments, DandanComment{
			CId: int64(i + 1),
			P:   c.DandanAttribute(),
			M:   c.Text,
		})
	}
	return json.Marshal(body)
}
