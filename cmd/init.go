package cmd

import (
	"danmaku-overlay/cmd/flags"
	"danmaku-overlay/internal/config"
	"danmaku-overlay/internal/danmaku"
	"danmaku-overlay/internal/render"
	"danmaku-overlay/internal/utils"
	"fmt"
	"os"
)

func Init() {
	// init config
	if err := config.Init(flags.ConfigPath, flags.Debug); err != nil {
		_, _ = fmt.Fprintf(os.Stdout, "initialize info: %v\n", err)
	}
	// init logger
	utils.InitLogger(flags.Debug)
}

// newOverlay 按配置创建 Overlay，返回的 release 用于释放纹理缓存
func newOverlay(engine *danmaku.RuleEngine) (*render.Overlay, *render.MeasureLoader, func(), error) {
	conf := config.GetConfig()
	loader := render.NewMeasureLoader()
	cache, err := render.NewDrawCache(loader, render.DrawCacheOptions{
		NumCounters: conf.DrawCache.NumCounters,
		MaxCost:     conf.DrawCache.MaxCost,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	o := render.NewOverlay(render.OptionsFromConfig(conf), cache, engine)
	o.SetMergePolicy(render.MergePolicyFromConfig(conf))
	return o, loader, cache.Close, nil
}
