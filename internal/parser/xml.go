package parser

import (
	"bytes"
	"danmaku-overlay/internal/danmaku"
	"danmaku-overlay/internal/utils"
	"encoding/xml"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
)

// DataXML bilibili/弹弹play 通用的 xml 弹幕文件
type DataXML struct {
	XMLName        xml.Name         `xml:"i"`
	ChatServer     string           `xml:"chatserver"`
	ChatID         string           `xml:"chatid"`
	Mission        int              `xml:"mission"`
	MaxLimit       int              `xml:"maxlimit"`
	Source         string           `xml:"source"`
	SourceProvider string           `xml:"sourceprovider"`
	DataSize       int              `xml:"datasize"`
	Danmaku        []DataXMLDanmaku `xml:"d"`
}

type DataXMLDanmaku struct {
	// p属性
	Attributes string `xml:"p,attr"`
	Content    string `xml:",chardata"`
}

type XMLParser struct{}

func (p *XMLParser) Format() string {
	return XMLFormat
}

// Parse 逐个读取 <d> 节点，xml 结构错误时返回带偏移量的 ParseError
func (p *XMLParser) Parse(data []byte) ([]*danmaku.Comment, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var result []*danmaku.Comment
	var skipped int
	for {
		offset := dec.InputOffset()
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &danmaku.ParseError{Input: "xml", Offset: int(offset), Reason: err.Error()}
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "d" {
			continue
		}
		var d DataXMLDanmaku
		if err = dec.DecodeElement(&d, &start); err != nil {
			return nil, &danmaku.ParseError{Input: "xml", Offset: int(offset), Reason: err.Error()}
		}
		c, err := parseXMLAttributes(d.Attributes, d.Content)
		if err != nil {
			skipped++
			utils.DebugLog(parserC, "skip xml danmaku", "p", d.Attributes, "error", err)
			continue
		}
		result = append(result, c)
	}
	if skipped > 0 {
		utils.WarnLog(parserC, "xml danmaku skipped", "skipped", skipped, "parsed", len(result))
	}
	return result, nil
}

// parseXMLAttributes p="时间(秒),模式,字号,颜色,发送时间,弹幕池,用户,id"，至少需要前四项
func parseXMLAttributes(attr, content string) (*danmaku.Comment, error) {
	fields := strings.Split(attr, ",")
	if len(fields) < 4 {
		return nil, errors.New("p attribute needs at least 4 fields")
	}
	sec, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil || sec < 0 || math.IsInf(sec, 0) || math.IsNaN(sec) {
		return nil, errors.New("invalid time")
	}
	mode, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return nil, errors.New("invalid mode")
	}
	size, err := strconv.Atoi(strings.TrimSpace(fields[2]))
	if err != nil {
		return nil, errors.New("invalid font size")
	}
	color, err := strconv.ParseInt(strings.TrimSpace(fields[3]), 10, 64)
	if err != nil {
		return nil, errors.New("invalid color")
	}
	c := danmaku.NewComment(content, int64(math.Round(sec*1000)), mode)
	c.FontSize = fontSizeLevel(size)
	c.Color = int(color & 0xffffff)
	if len(fields) > 4 {
		c.Date, _ = strconv.ParseInt(strings.TrimSpace(fields[4]), 10, 64)
	}
	if len(fields) > 6 {
		c.Sender = strings.TrimSpace(fields[6])
	}
	return c, nil
}

// MarshalXML 导出为 xml 文件，时间使用原始时间
func MarshalXML(comments []*danmaku.Comment, provider string, indent bool) ([]byte, error) {
	data := DataXML{
		ChatServer:     "chat.bilibili.com",
		MaxLimit:       len(comments),
		Source:         "k-v",
		SourceProvider: provider,
		DataSize:       len(comments),
		Danmaku:        make([]DataXMLDanmaku, 0, len(comments)),
	}
	// <d p="2.603,1,25,16777215,1700000000,0,sender,0">看看</d>
	for _, c := range comments {
		attr := []string{
			strconv.FormatFloat(float64(c.OriginTime)/1000, 'f', 3, 64),
			strconv.Itoa(modeValue(c.Type)),
			strconv.Itoa(fontSizeValue(c.FontSize)),
			strconv.Itoa(c.Color),
			strconv.FormatInt(c.Date, 10),
			"0",
			c.Sender,
			"0",
		}
		data.Danmaku = append(data.Danmaku, DataXMLDanmaku{
			Attributes: strings.Join(attr, ","),
			Content:    c.Text,
		})
	}
	var body []byte
	var err error
	if indent {
		body, err = xml.MarshalIndent(data, "", "    ")
	} else {
		body, err = xml.Marshal(data)
	}
	if err != nil {
		return nil, err
	}
	// xml.Marshal 不会自动添加声明头
	return append([]byte(xml.Header), body...), nil
}
