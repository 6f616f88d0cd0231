package parser

import (
	"danmaku-overlay/internal/danmaku"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<i>
    <chatserver>chat.bilibili.com</chatserver>
    <chatid>1</chatid>
    <d p="2.603,1,25,16777215,1700000000,0,abc123,1">看看</d>
    <d p="10.5,5,18,255,1700000001,0,def456,2">top</d>
    <d p="bad">skipped</d>
    <d p="12,4,36,65280">bottom</d>
</i>`

func TestXMLParse(t *testing.T) {
	comments, err := (&XMLParser{}).Parse([]byte(sampleXML))
	require.NoError(t, err)
	require.Len(t, comments, 3)

	c := comments[0]
	assert.Equal(t, "看看", c.Text)
	assert.Equal(t, int64(2603), c.OriginTime)
	assert.Equal(t, danmaku.Rolling, c.Type)
	assert.Equal(t, danmaku.NormalSize, c.FontSize)
	assert.Equal(t, danmaku.WhiteColor, c.Color)
	assert.Equal(t, int64(1700000000), c.Date)
	assert.Equal(t, "abc123", c.Sender)

	assert.Equal(t, danmaku.Top, comments[1].Type)
	assert.Equal(t, danmaku.SmallSize, comments[1].FontSize)
	assert.Equal(t, 255, comments[1].Color)

	assert.Equal(t, danmaku.Bottom, comments[2].Type)
	assert.Equal(t, danmaku.LargeSize, comments[2].FontSize)
	assert.Equal(t, int64(12000), comments[2].Time)
	assert.Empty(t, comments[2].Sender)
}

func TestXMLParseBroken(t *testing.T) {
	_, err := (&XMLParser{}).Parse([]byte(`<i><d p="1,1,25,1">a</x></i>`))
	var pe *danmaku.ParseError
	require.True(t, errors.As(err, &pe))
	assert.GreaterOrEqual(t, pe.Offset, 0)
}

func TestXMLRoundTrip(t *testing.T) {
	src, err := (&XMLParser{}).Parse([]byte(sampleXML))
	require.NoError(t, err)
	out, err := MarshalXML(src, "test", true)
	require.NoError(t, err)

	back, err := (&XMLParser{}).Parse(out)
	require.NoError(t, err)
	require.Len(t, back, len(src))
	for i := range src {
		assert.Equal(t, src[i].Text, back[i].Text)
		assert.Equal(t, src[i].OriginTime, back[i].OriginTime)
		assert.Equal(t, src[i].Type, back[i].Type)
		assert.Equal(t, src[i].FontSize, back[i].FontSize)
		assert.Equal(t, src[i].Color, back[i].Color)
		assert.Equal(t, src[i].Sender, back[i].Sender)
	}
}

func TestDandanParse(t *testing.T) {
	data := `{"count":3,"comments":[
		{"cid":1,"p":"1.50,1,16777215,[bilibili]uid1","m":"hello"},
		{"cid":2,"p":"x,1,1,u","m":"bad"},
		{"cid":3,"p":"3.00,5,255","m":"top"}]}`
	comments, err := (&DandanParser{}).Parse([]byte(data))
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, int64(1500), comments[0].Time)
	assert.Equal(t, "[bilibili]uid1", comments[0].Sender)
	assert.Equal(t, danmaku.Top, comments[1].Type)
	assert.Equal(t, 255, comments[1].Color)
}

func TestDandanParseError(t *testing.T) {
	_, err := (&DandanParser{}).Parse([]byte(`{"comments":[{"cid":1,}]}`))
	var pe *danmaku.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Greater(t, pe.Offset, 0)
}

func TestDandanRoundTrip(t *testing.T) {
	c := danmaku.NewComment("弹幕", 12340, danmaku.BottomMode)
	c.Color = 123
	c.Sender = "u1"
	out, err := MarshalDandan([]*danmaku.Comment{c})
	require.NoError(t, err)
	back, err := (&DandanParser{}).Parse(out)
	require.NoError(t, err)
	require.Len(t, back, 1)
	assert.Equal(t, c.Text, back[0].Text)
	assert.Equal(t, c.OriginTime, back[0].OriginTime)
	assert.Equal(t, danmaku.Bottom, back[0].Type)
	assert.Equal(t, 123, back[0].Color)
	assert.Equal(t, "u1", back[0].Sender)
}

func appendElem(b []byte, progress, mode, size, color int, hash, content string, ctime int64) []byte {
	var e []byte
	e = protowire.AppendTag(e, 1, protowire.VarintType)
	e = protowire.AppendVarint(e, 99)
	e = protowire.AppendTag(e, elemProgress, protowire.VarintType)
	e = protowire.AppendVarint(e, uint64(progress))
	e = protowire.AppendTag(e, elemMode, protowire.VarintType)
	e = protowire.AppendVarint(e, uint64(mode))
	e = protowire.AppendTag(e, elemFontSize, protowire.VarintType)
	e = protowire.AppendVarint(e, uint64(size))
	e = protowire.AppendTag(e, elemColor, protowire.VarintType)
	e = protowire.AppendVarint(e, uint64(color))
	e = protowire.AppendTag(e, elemMidHash, protowire.BytesType)
	e = protowire.AppendString(e, hash)
	e = protowire.AppendTag(e, elemContent, protowire.BytesType)
	e = protowire.AppendString(e, content)
	e = protowire.AppendTag(e, elemCtime, protowire.VarintType)
	e = protowire.AppendVarint(e, uint64(ctime))
	// 未知字段
	e = protowire.AppendTag(e, 12, protowire.BytesType)
	e = protowire.AppendString(e, "id-str")

	b = protowire.AppendTag(b, segElemsField, protowire.BytesType)
	return protowire.AppendBytes(b, e)
}

func TestSegmentParse(t *testing.T) {
	var data []byte
	data = appendElem(data, 1500, 1, 25, danmaku.WhiteColor, "h1", "first", 1700000000)
	data = appendElem(data, 2500, 5, 18, 0xff0000, "h2", "second", 1700000001)
	data = appendElem(data, 3000, 1, 25, 0, "h3", "", 0)
	// DmSegMobileReply 的其他字段
	data = protowire.AppendTag(data, 2, protowire.VarintType)
	data = protowire.AppendVarint(data, 1)

	comments, err := (&SegmentParser{}).Parse(data)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "first", comments[0].Text)
	assert.Equal(t, int64(1500), comments[0].Time)
	assert.Equal(t, "h1", comments[0].Sender)
	assert.Equal(t, int64(1700000000), comments[0].Date)
	assert.Equal(t, danmaku.Top, comments[1].Type)
	assert.Equal(t, danmaku.SmallSize, comments[1].FontSize)
	assert.Equal(t, 0xff0000, comments[1].Color)
}

func TestSegmentParseTruncated(t *testing.T) {
	data := appendElem(nil, 1500, 1, 25, 0, "h", "text", 0)
	_, err := (&SegmentParser{}).Parse(data[:len(data)-3])
	var pe *danmaku.ParseError
	require.True(t, errors.As(err, &pe))
	assert.GreaterOrEqual(t, pe.Offset, 0)
}

func TestDetect(t *testing.T) {
	assert.Equal(t, XMLFormat, Detect("text/xml; charset=utf-8", nil).Format())
	assert.Equal(t, DandanFormat, Detect("application/json", nil).Format())
	assert.Equal(t, BilibiliSegFormat, Detect("application/octet-stream", nil).Format())
	assert.Equal(t, XMLFormat, Detect("", []byte("\n  <i></i>")).Format())
	assert.Equal(t, DandanFormat, Detect("", []byte(`{"count":0}`)).Format())
	assert.Equal(t, BilibiliSegFormat, Detect("", []byte{0x0a, 0x00}).Format())

	p, err := ForFormat("XML")
	require.NoError(t, err)
	assert.Equal(t, XMLFormat, p.Format())
	_, err = ForFormat("ass")
	assert.Error(t, err)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ep01.xml")
	require.NoError(t, os.WriteFile(path, []byte(sampleXML), 0644))
	src, comments, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ep01", src.Title)
	assert.Equal(t, -1, src.ID)
	assert.Len(t, comments, 3)

	_, _, err = ParseFile(filepath.Join(t.TempDir(), "missing.xml"))
	assert.Error(t, err)
}
