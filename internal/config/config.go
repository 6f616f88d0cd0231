package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	Debug    = false
	ConfPath = ""
	Version  = "dev"
)

var (
	overlayConfig *OverlayConfig
	configLock    sync.Mutex
)

// Init 按路径加载配置，路径为空时按默认位置查找，都找不到则使用默认值
func Init(path string, debug bool) error {
	configLock.Lock()
	defer configLock.Unlock()

	Debug = debug
	conf := Default()
	file, p, err := loadConfigFile(path)
	if err != nil {
		return err
	}
	if file != nil {
		if err := yaml.Unmarshal(file, conf); err != nil {
			return fmt.Errorf("parse config %s: %w", p, err)
		}
		ConfPath = p
	}
	conf.normalize()
	overlayConfig = conf
	return nil
}

func GetConfig() *OverlayConfig {
	configLock.Lock()
	defer configLock.Unlock()
	if overlayConfig == nil {
		overlayConfig = Default()
	}
	return overlayConfig
}

// Set 直接替换全局配置，主要用于测试
func Set(c *OverlayConfig) {
	configLock.Lock()
	defer configLock.Unlock()
	c.normalize()
	overlayConfig = c
}

func loadConfigFile(path string) ([]byte, string, error) {
	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("read config %s: %w", path, err)
		}
		return file, path, nil
	}
	home, _ := os.UserHomeDir()
	if home != "" {
		// load from user home .config/danmaku-overlay/config.yaml
		p := filepath.Join(home, ".config", "danmaku-overlay", "config.yaml")
		if file, _ := os.ReadFile(p); file != nil {
			return file, p, nil
		}
	}
	execPath, _ := os.Executable()
	if execPath != "" {
		p := filepath.Join(filepath.Dir(execPath), "config.yaml")
		if file, _ := os.ReadFile(p); file != nil {
			return file, p, nil
		}
	}
	return nil, "", nil
}

type OverlayConfig struct {
	Pool struct {
		BatchSize int  `yaml:"batch-size"`
		Strict    bool `yaml:"strict"` // 违反池约定时直接 panic
	} `yaml:"pool"`
	Overlay struct {
		Width  float32 `yaml:"width"`
		Height float32 `yaml:"height"`
		// 滚动弹幕完整穿过屏幕的时间 ms
		RollingDuration int `yaml:"rolling-duration"`
		// 顶部/底部弹幕停留时间 ms
		StayDuration int     `yaml:"stay-duration"`
		MaxLive      int     `yaml:"max-live"`
		RowHeight    float32 `yaml:"row-height"`
	} `yaml:"overlay"`
	Merge struct {
		Enable      bool  `yaml:"enable"`
		WindowMills int64 `yaml:"window-mills"`
		MaxDistance int   `yaml:"max-distance"`
	} `yaml:"merge"`
	DrawCache struct {
		MaxCost     int64 `yaml:"max-cost"` // 空闲纹理像素总数上限
		NumCounters int64 `yaml:"num-counters"`
	} `yaml:"draw-cache"`
	Fetch struct {
		MaxWorker int     `yaml:"max-worker"`
		Timeout   int64   `yaml:"timeout"` // in seconds
		Rate      float64 `yaml:"rate"`    // req/sec，<=0 不限制
		UA        string  `yaml:"ua"`
	} `yaml:"fetch"`
	Server struct {
		Port    int   `yaml:"port"`
		Timeout int64 `yaml:"timeout"`
	} `yaml:"server"`
	Store struct {
		RulePath   string `yaml:"rule-path"`
		SourcePath string `yaml:"source-path"`
	} `yaml:"store"`
}

const (
	defaultBatchSize       = 64
	defaultRollingDuration = 10000
	defaultStayDuration    = 5000
	defaultMaxWorker       = 4
	defaultTimeoutInSecond = 30
)

func Default() *OverlayConfig {
	c := &OverlayConfig{}
	c.Pool.BatchSize = defaultBatchSize
	c.Overlay.Width = 1920
	c.Overlay.Height = 1080
	c.Overlay.RollingDuration = defaultRollingDuration
	c.Overlay.StayDuration = defaultStayDuration
	c.Overlay.MaxLive = 400
	c.Overlay.RowHeight = 36
	c.Merge.WindowMills = 15000
	c.Merge.MaxDistance = 2
	c.DrawCache.MaxCost = 1 << 24
	c.DrawCache.NumCounters = 1e5
	c.Fetch.MaxWorker = defaultMaxWorker
	c.Fetch.Timeout = defaultTimeoutInSecond
	c.Server.Port = 8089
	c.Server.Timeout = 60
	return c
}

// StorePaths 未配置时保存在 ~/.config/danmaku-overlay 下
func (c *OverlayConfig) StorePaths() (rules string, sources string) {
	rules, sources = c.Store.RulePath, c.Store.SourcePath
	if rules != "" && sources != "" {
		return
	}
	dir := "."
	if home, _ := os.UserHomeDir(); home != "" {
		dir = filepath.Join(home, ".config", "danmaku-overlay")
	}
	if rules == "" {
		rules = filepath.Join(dir, "rules.yaml")
	}
	if sources == "" {
		sources = filepath.Join(dir, "sources.gob")
	}
	return
}

func (c *OverlayConfig) normalize() {
	if c.Pool.BatchSize <= 0 {
		c.Pool.BatchSize = defaultBatchSize
	}
	if c.Overlay.RollingDuration <= 0 {
		c.Overlay.RollingDuration = defaultRollingDuration
	}
	if c.Overlay.StayDuration <= 0 {
		c.Overlay.StayDuration = defaultStayDuration
	}
	if c.Overlay.RowHeight <= 0 {
		c.Overlay.RowHeight = 36
	}
	if c.Fetch.MaxWorker <= 0 {
		c.Fetch.MaxWorker = defaultMaxWorker
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = defaultTimeoutInSecond
	}
	if c.Server.Timeout <= 0 {
		c.Server.Timeout = 60
	}
	if c.DrawCache.NumCounters <= 0 {
		c.DrawCache.NumCounters = 1e5
	}
	if c.DrawCache.MaxCost <= 0 {
		c.DrawCache.MaxCost = 1 << 24
	}
}
