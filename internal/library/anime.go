package library

import (
	"danmaku-overlay/internal/utils"
	"slices"
	"strings"
	"sync"
	"time"
)

const libraryC = "library"

// Staff 保持录入顺序
type Staff struct {
	Role string
	Name string
}

// Anime 一部作品及其本地剧集，剧集按 (类型, 集数) 有序
type Anime struct {
	Name       string
	Desc       string
	AirDate    string
	ScriptID   string
	ScriptData map[string]any
	AddTime    int64

	lock   sync.RWMutex
	eps    []Episode
	staffs []Staff
}

func NewAnime(name string) *Anime {
	return &Anime{Name: name, AddTime: time.Now().Unix()}
}

// SetDesc 简介可能来自网页，去掉 html 标签
func (a *Anime) SetDesc(desc string) {
	a.Desc = strings.TrimSpace(utils.StripHTMLTags(desc))
}

// AddEp 同一文件已存在时只更新集数、类型和名称，否则有序插入
func (a *Anime) AddEp(ep Episode) bool {
	if ep.LocalFile == "" {
		return false
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	for i := range a.eps {
		if a.eps[i].LocalFile == ep.LocalFile {
			old := a.eps[i]
			old.Index, old.Type, old.Name = ep.Index, ep.Type, ep.Name
			a.eps = slices.Delete(a.eps, i, i+1)
			a.insert(old)
			return false
		}
	}
	a.insert(ep)
	utils.DebugLog(libraryC, "episode added", "anime", a.Name, "file", ep.LocalFile)
	return true
}

func (a *Anime) insert(ep Episode) {
	i := 0
	for i < len(a.eps) && a.eps[i].Less(ep) {
		i++
	}
	a.eps = slices.Insert(a.eps, i, ep)
}

func (a *Anime) RemoveEp(path string) bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	for i := range a.eps {
		if a.eps[i].LocalFile == path {
			a.eps = slices.Delete(a.eps, i, i+1)
			return true
		}
	}
	return false
}

// RemoveEpByIndex 删除所有类型和集数相同的剧集
func (a *Anime) RemoveEpByIndex(t EpType, index float64) int {
	a.lock.Lock()
	defer a.lock.Unlock()
	target := Episode{Type: t, Index: index}
	n := len(a.eps)
	a.eps = slices.DeleteFunc(a.eps, func(e Episode) bool {
		return e.Equal(target)
	})
	return n - len(a.eps)
}

// UpdateEpTime 看完时记录完成时间，否则记录最后播放时间
func (a *Anime) UpdateEpTime(path string, t int64, finished bool) bool {
	return a.update(path, func(e *Episode) {
		if finished {
			e.FinishTime = t
		} else {
			e.LastPlayTime = t
		}
	})
}

// UpdateEpInfo 用 ep 覆盖 path 对应剧集的名称、集数和类型
func (a *Anime) UpdateEpInfo(path string, ep Episode) bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	for i := range a.eps {
		if a.eps[i].LocalFile != path {
			continue
		}
		e := a.eps[i]
		e.Name, e.Index, e.Type = ep.Name, ep.Index, ep.Type
		a.eps = slices.Delete(a.eps, i, i+1)
		a.insert(e)
		return true
	}
	return false
}

// UpdateEpPath 新路径已被其他剧集使用时不修改
func (a *Anime) UpdateEpPath(path, newPath string) bool {
	if newPath == "" || path == newPath {
		return false
	}
	a.lock.RLock()
	for _, e := range a.eps {
		if e.LocalFile == newPath {
			a.lock.RUnlock()
			return false
		}
	}
	a.lock.RUnlock()
	return a.update(path, func(e *Episode) {
		e.LocalFile = newPath
	})
}

func (a *Anime) update(path string, fn func(e *Episode)) bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	for i := range a.eps {
		if a.eps[i].LocalFile == path {
			fn(&a.eps[i])
			return true
		}
	}
	return false
}

// Episodes 返回副本
func (a *Anime) Episodes() []Episode {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return slices.Clone(a.eps)
}

func (a *Anime) EpCount() int {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return len(a.eps)
}

// SetStaffs 格式 "职位:名字;职位:名字"，名字中可以包含冒号
func (a *Anime) SetStaffs(s string) {
	var staffs []Staff
	for _, item := range strings.Split(s, ";") {
		role, name, ok := strings.Cut(item, ":")
		if !ok {
			continue
		}
		role, name = strings.TrimSpace(role), strings.TrimSpace(name)
		if role == "" {
			continue
		}
		staffs = append(staffs, Staff{Role: role, Name: name})
	}
	a.lock.Lock()
	a.staffs = staffs
	a.lock.Unlock()
}

func (a *Anime) Staffs() []Staff {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return slices.Clone(a.staffs)
}

func (a *Anime) StaffString() string {
	a.lock.RLock()
	defer a.lock.RUnlock()
	items := make([]string, 0, len(a.staffs))
	for _, s := range a.staffs {
		items = append(items, s.Role+":"+s.Name)
	}
	return strings.Join(items, ";")
}

func (a *Anime) ToMap() map[string]any {
	eps := a.Episodes()
	epMaps := make([]map[string]any, 0, len(eps))
	for _, e := range eps {
		epMaps = append(epMaps, e.ToMap())
	}
	staffs := a.Staffs()
	staffMaps := make([]map[string]string, 0, len(staffs))
	for _, s := range staffs {
		staffMaps = append(staffMaps, map[string]string{"role": s.Role, "name": s.Name})
	}
	return map[string]any{
		"name":     a.Name,
		"desc":     a.Desc,
		"airDate":  a.AirDate,
		"scriptId": a.ScriptID,
		"addTime":  a.AddTime,
		"eps":      epMaps,
		"staff":    staffMaps,
	}
}
