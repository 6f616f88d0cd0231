package render

import (
	"danmaku-overlay/internal/danmaku"
	"sync"

	"github.com/mattn/go-runewidth"
)

// MeasureLoader 不上传真实纹理，只按字符宽度估算尺寸并分配纹理编号
// 用于命令行回放、服务端模式和测试
type MeasureLoader struct {
	// 各字号单个半角字符的像素宽度，高度取两倍
	FontPx map[danmaku.FontSizeLevel]int

	lock     sync.Mutex
	next     uint32
	loaded   int
	freed    int
	textures map[uint32]bool
}

func NewMeasureLoader() *MeasureLoader {
	return &MeasureLoader{
		FontPx: map[danmaku.FontSizeLevel]int{
			danmaku.NormalSize: 13,
			danmaku.SmallSize:  10,
			danmaku.LargeSize:  18,
		},
		textures: make(map[uint32]bool),
	}
}

func (m *MeasureLoader) Load(key GlyphKey) (*DrawState, error) {
	px, ok := m.FontPx[key.FontSize]
	if !ok {
		px = m.FontPx[danmaku.NormalSize]
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.next++
	m.loaded++
	m.textures[m.next] = true
	return &DrawState{
		Width:   runewidth.StringWidth(key.Text) * px,
		Height:  px * 2,
		Texture: m.next,
		R:       1,
		B:       1,
	}, nil
}

func (m *MeasureLoader) Free(d *DrawState) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.textures[d.Texture] {
		delete(m.textures, d.Texture)
		m.freed++
	}
}

// Stats 已加载、已释放和当前存活的纹理数量
func (m *MeasureLoader) Stats() (loaded, freed, alive int) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.loaded, m.freed, len(m.textures)
}
