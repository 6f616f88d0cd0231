package render

import (
	"danmaku-overlay/internal/danmaku"
	"strconv"
)

// GlyphKey 相同文本、颜色、字号的弹幕共用一份纹理
type GlyphKey struct {
	Text     string
	Color    int
	FontSize danmaku.FontSizeLevel
}

func KeyOf(c *danmaku.Comment) GlyphKey {
	return GlyphKey{Text: c.DisplayText(), Color: c.Color, FontSize: c.FontSize}
}

func (k GlyphKey) String() string {
	return strconv.Itoa(int(k.FontSize)) + "\x00" + strconv.Itoa(k.Color) + "\x00" + k.Text
}

// DrawState 纹理绘制信息，refs 为正在使用它的实例数
type DrawState struct {
	Key     GlyphKey
	Width   int
	Height  int
	Texture uint32
	// 纹理图集中的归一化坐标
	L, R, T, B float32

	refs int
}

func (d *DrawState) Refs() int {
	return d.refs
}

func (d *DrawState) cost() int64 {
	c := int64(d.Width) * int64(d.Height)
	if c <= 0 {
		return 1
	}
	return c
}

// TextureLoader 光栅化文本并上传纹理，由渲染端实现
type TextureLoader interface {
	Load(key GlyphKey) (*DrawState, error)
	Free(d *DrawState)
}
