package cmd

import (
	"danmaku-overlay/cmd/flags"
	"danmaku-overlay/internal/danmaku"
	"danmaku-overlay/internal/library"
	"danmaku-overlay/internal/parser"
	"danmaku-overlay/internal/render"
	"danmaku-overlay/internal/store"
	"danmaku-overlay/internal/utils"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func replayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "play a danmaku file through the overlay and print statistics",
		Args:  cobra.ExactArgs(1),
	}
	format := flags.FProperty[string]{Flag: "format", Register: &flags.FormatCompletion{}}
	cmd.Flags().StringVar(&format.Value, format.Flag, "", "danmaku file format, detected from the file when empty")
	format.RegisterCompletion(cmd)
	var (
		rulePath string
		delay    int64
		fps      int
	)
	cmd.Flags().StringVar(&rulePath, "rules", "", "block rules file (yaml)")
	cmd.Flags().Int64Var(&delay, "delay", 0, "source delay in ms")
	cmd.Flags().IntVar(&fps, "fps", 60, "frames per second")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		Init()
		src, comments, err := parseReplayFile(args[0], format.Value)
		if err != nil {
			return err
		}
		src.Delay = delay
		ep := library.EpisodeFromFile(args[0])
		season := library.MatchSeason(ep.Name)

		engine := danmaku.NewRuleEngine()
		if rulePath != "" {
			rules, err := store.NewYAMLRuleStore(rulePath).LoadRules()
			if err != nil {
				utils.WarnLog(replayCmdC, "some block rules are invalid", "error", err)
			}
			engine.SetRules(rules)
		}

		o, loader, release, err := newOverlay(engine)
		if err != nil {
			return err
		}
		defer release()
		if _, err = o.AddSource(src, comments); err != nil {
			return err
		}

		if fps <= 0 {
			fps = 60
		}
		start := time.Now()
		stats := render.Replay(o, 0, o.EndTime(), int64(1000/fps))
		utils.DebugLog(replayCmdC, "replay done", "cost_ms", time.Since(start).Milliseconds())

		loaded, freed, alive := loader.Stats()
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "source:    %s (%s comments)\n", src.Title, humanize.Comma(int64(len(comments))))
		// 文件名中识别出集数或特殊类型时才输出
		if ep.Index > 0 || ep.Type != library.EP {
			label := ep.Label()
			if season >= 0 {
				label = fmt.Sprintf("S%d %s", season, label)
			}
			_, _ = fmt.Fprintf(out, "episode:   %s (%s)\n", label, library.ClearTitle(ep.Name))
		}
		_, _ = fmt.Fprintf(out, "duration:  %s, %s frames\n",
			(time.Duration(o.EndTime()) * time.Millisecond).String(), humanize.Comma(int64(stats.Frames)))
		_, _ = fmt.Fprintf(out, "blocked:   %s\n", humanize.Comma(int64(countBlocked(comments))))
		_, _ = fmt.Fprintf(out, "spawned:   %s, expired: %s, peak live: %d\n",
			humanize.Comma(int64(stats.Spawned)), humanize.Comma(int64(stats.Expired)), stats.PeakLive)
		_, _ = fmt.Fprintf(out, "pool:      capacity %d, grown %d times\n", stats.PoolCap, stats.Grows)
		_, _ = fmt.Fprintf(out, "textures:  loaded %s, freed %s, alive %d\n",
			humanize.Comma(int64(loaded)), humanize.Comma(int64(freed)), alive)
		reasons := make([]string, 0, len(stats.Skipped))
		for r := range stats.Skipped {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			_, _ = fmt.Fprintf(out, "skipped:   %s %s\n", r, humanize.Comma(int64(stats.Skipped[r])))
		}
		return nil
	}

	return cmd
}

const replayCmdC = "replay_cmd"

func parseReplayFile(path, format string) (*danmaku.Source, []*danmaku.Comment, error) {
	if format == "" {
		return parser.ParseFile(path)
	}
	p, err := parser.ForFormat(format)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	comments, err := p.Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	src := danmaku.NewSource(filepath.Base(path))
	src.Desc = path
	return src, comments, nil
}

func countBlocked(comments []*danmaku.Comment) int {
	var n int
	for _, c := range comments {
		if c.Blocked() {
			n++
		}
	}
	return n
}

func init() {
	rootCmd.AddCommand(replayCmd())
}
