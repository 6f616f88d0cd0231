package library

import (
	"danmaku-overlay/internal/utils"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

type EpType int

const (
	UnknownEp EpType = iota
	EP
	SP
	OP
	ED
	Trailer
	MAD
	OtherEp
)

var epTypeNames = []string{"", "EP", "SP", "OP", "ED", "Trailer", "MAD", "Other"}

func (t EpType) String() string {
	if int(t) < 0 || int(t) >= len(epTypeNames) {
		return ""
	}
	return epTypeNames[t]
}

// Episode 一集本地视频，LocalFile 在同一部作品内唯一
type Episode struct {
	LocalFile string
	Name      string
	Index     float64
	Type      EpType
	// unix 秒，0 表示没有记录
	FinishTime   int64
	LastPlayTime int64
}

// Less 先按类型再按集数排序
func (e Episode) Less(o Episode) bool {
	if e.Type != o.Type {
		return e.Type < o.Type
	}
	return e.Index < o.Index
}

// Equal 类型和集数相同即视为同一集
func (e Episode) Equal(o Episode) bool {
	return e.Type == o.Type && e.Index == o.Index
}

// Label 如 "EP5"、"SP1.5"，集数为 0 时只有类型
func (e Episode) Label() string {
	if e.Index == 0 {
		return e.Type.String()
	}
	return e.Type.String() + strconv.FormatFloat(e.Index, 'f', -1, 64)
}

func (e Episode) ToMap() map[string]any {
	return map[string]any{
		"localFile":    e.LocalFile,
		"name":         e.Name,
		"index":        e.Index,
		"type":         int(e.Type),
		"finishTime":   strconv.FormatInt(e.FinishTime, 10),
		"lastPlayTime": strconv.FormatInt(e.LastPlayTime, 10),
	}
}

var (
	seriesRegex    = regexp.MustCompile(`(?i)(.*?)[\s._-]*S(\d{1,3})E(\d{1,4}(?:\.\d)?)`)
	epNumberRegex  = regexp.MustCompile(`(?i)(?:第\s*(\d{1,4}(?:\.\d)?)\s*[话話集]|\[(\d{1,4}(?:\.\d)?)]|\bEP?\s*(\d{1,4}(?:\.\d)?)\b)`)
	specialsRegex  = regexp.MustCompile(`(?i)特别篇|\bSP\s*\d*\b|\bOVA\b|\bOAD\b`)
	openingRegex   = regexp.MustCompile(`(?i)\bNC\s*OP\b|\bOP\s*\d*\b`)
	endingRegex    = regexp.MustCompile(`(?i)\bNC\s*ED\b|\bED\s*\d*\b`)
	trailerRegex   = regexp.MustCompile(`PV|专访|预告|花絮|彩蛋|(?i:\btrailer\b)|\bCM\b`)
	markRegex      = regexp.MustCompile(`[\p{P}\p{S}]`)
	seasonRegex    = regexp.MustCompile(`第\s*(\d{1,2}|` + chineseNumber + `)\s*季`)
	chineseNumbers = strings.Split(chineseNumber, "|")
)

const chineseNumber = "十一|十二|十三|十四|十五|十六|十七|十八|十九|二十|一|二|三|四|五|六|七|八|九|十"

// EpisodeFromFile 从文件名猜测集数和类型，识别不出集数时 Index 为 0
func EpisodeFromFile(path string) Episode {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	ep := Episode{LocalFile: path, Name: name, Type: EP}
	switch {
	case trailerRegex.MatchString(name):
		ep.Type = Trailer
	case specialsRegex.MatchString(name):
		ep.Type = SP
	case openingRegex.MatchString(name):
		ep.Type = OP
	case endingRegex.MatchString(name):
		ep.Type = ED
	}
	if m := seriesRegex.FindStringSubmatch(name); m != nil {
		ep.Index, _ = strconv.ParseFloat(m[3], 64)
		return ep
	}
	if m := epNumberRegex.FindStringSubmatch(name); m != nil {
		for _, v := range m[1:] {
			if v != "" {
				ep.Index, _ = strconv.ParseFloat(v, 64)
				break
			}
		}
	}
	return ep
}

// MatchSeason 匹配标题中的季信息，没有时返回 -1
func MatchSeason(title string) int {
	if m := seriesRegex.FindStringSubmatch(title); m != nil {
		s, _ := strconv.Atoi(m[2])
		return s
	}
	m := seasonRegex.FindStringSubmatch(title)
	if len(m) <= 1 {
		return -1
	}
	if s, err := strconv.Atoi(m[1]); err == nil {
		return s
	}
	return seasonOfChinese(m[1])
}

func seasonOfChinese(n string) int {
	for i, v := range []string{"一", "二", "三", "四", "五", "六", "七", "八", "九", "十"} {
		if v == n {
			return i + 1
		}
	}
	for i, v := range chineseNumbers[:10] {
		if v == n {
			return i + 11
		}
	}
	return -1
}

// ClearTitle 去掉 html 标签和标点，用于比较标题
func ClearTitle(title string) string {
	title = utils.StripHTMLTags(title)
	return markRegex.ReplaceAllLiteralString(title, "")
}
