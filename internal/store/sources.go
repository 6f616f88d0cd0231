package store

import (
	"danmaku-overlay/internal/utils"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
)

// SourceRecord 重启后重新加载来源所需的信息，不保存弹幕本身
type SourceRecord struct {
	Title    string
	URLs     []string
	Format   string
	Delay    int64
	Timeline string
	Show     bool
}

type GobSourceStore struct {
	Path string
}

func NewGobSourceStore(path string) *GobSourceStore {
	return &GobSourceStore{Path: path}
}

// LoadSources 文件不存在时返回空列表
func (s *GobSourceStore) LoadSources() ([]SourceRecord, error) {
	file, err := os.Open(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer utils.SafeClose(file)

	var records []SourceRecord
	if err := gob.NewDecoder(file).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode sources: %w", err)
	}
	return records, nil
}

func (s *GobSourceStore) SaveSources(records []SourceRecord) error {
	err := writeFile(s.Path, func(f *os.File) error {
		return gob.NewEncoder(f).Encode(records)
	})
	if err != nil {
		return fmt.Errorf("failed to save sources: %w", err)
	}
	utils.InfoLog(storeC, "sources saved", "file", s.Path, "size", len(records))
	return nil
}
