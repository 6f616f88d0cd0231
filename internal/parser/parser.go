package parser

import (
	"bytes"
	"danmaku-overlay/internal/danmaku"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const parserC = "parser"

const (
	XMLFormat         = "xml"
	DandanFormat      = "dandan"
	BilibiliSegFormat = "bilibili-seg"
)

// Parser 把一种弹幕格式解析为 Comment
// 单条数据格式错误时跳过并记录日志，整体结构错误时返回 *danmaku.ParseError
type Parser interface {
	Format() string
	Parse(data []byte) ([]*danmaku.Comment, error)
}

var parsers = map[string]Parser{
	XMLFormat:         &XMLParser{},
	DandanFormat:      &DandanParser{},
	BilibiliSegFormat: &SegmentParser{},
}

func ForFormat(format string) (Parser, error) {
	if p, ok := parsers[strings.ToLower(format)]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("unsupported danmaku format: %s", format)
}

func Formats() []string {
	return []string{XMLFormat, DandanFormat, BilibiliSegFormat}
}

// Detect 根据 content-type 判断格式，无法判断时检查数据开头
func Detect(contentType string, data []byte) Parser {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "xml"):
		return parsers[XMLFormat]
	case strings.Contains(ct, "json"):
		return parsers[DandanFormat]
	case strings.Contains(ct, "protobuf"), strings.Contains(ct, "octet-stream"):
		return parsers[BilibiliSegFormat]
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n\ufeff")
	switch {
	case bytes.HasPrefix(trimmed, []byte("<")):
		return parsers[XMLFormat]
	case bytes.HasPrefix(trimmed, []byte("{")):
		return parsers[DandanFormat]
	}
	return parsers[BilibiliSegFormat]
}

// ParseFile 按扩展名选择格式，未知扩展名时检查内容
func ParseFile(path string) (*danmaku.Source, []*danmaku.Comment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var p Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		p = parsers[XMLFormat]
	case ".json":
		p = parsers[DandanFormat]
	case ".so", ".pb", ".seg":
		p = parsers[BilibiliSegFormat]
	default:
		p = Detect("", data)
	}
	comments, err := p.Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	src := danmaku.NewSource(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	src.Desc = path
	return src, comments, nil
}

// fontSizeLevel 弹幕协议字号 25 为普通
func fontSizeLevel(size int) danmaku.FontSizeLevel {
	switch {
	case size <= 0 || size == 25:
		return danmaku.NormalSize
	case size < 25:
		return danmaku.SmallSize
	default:
		return danmaku.LargeSize
	}
}

func fontSizeValue(level danmaku.FontSizeLevel) int {
	switch level {
	case danmaku.SmallSize:
		return 18
	case danmaku.LargeSize:
		return 36
	}
	return 25
}

// modeValue 把弹幕类型还原成协议中的 mode
func modeValue(t danmaku.CommentType) int {
	switch t {
	case danmaku.Top:
		return danmaku.TopMode
	case danmaku.Bottom:
		return danmaku.BottomMode
	}
	return danmaku.NormalMode
}
