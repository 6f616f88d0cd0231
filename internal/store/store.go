package store

import (
	"danmaku-overlay/internal/danmaku"
	"fmt"
	"os"
	"path/filepath"
)

const storeC = "store"

type RuleStore interface {
	LoadRules() ([]*danmaku.BlockRule, error)
	SaveRules(rules []*danmaku.BlockRule) error
}

type SourceStore interface {
	LoadSources() ([]SourceRecord, error)
	SaveSources(records []SourceRecord) error
}

// writeFile 先写临时文件再替换，避免写到一半时退出损坏原文件
func writeFile(path string, write func(f *os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create dir of %s: %w", path, err)
	}
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err = write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err = f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
