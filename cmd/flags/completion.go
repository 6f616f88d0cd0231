package flags

import (
	"danmaku-overlay/internal/parser"
	"strings"

	"github.com/spf13/cobra"
)

var (
	Debug      bool
	ConfigPath string
)

type FProperty[T any] struct {
	Value    T
	Flag     string
	Register FPropertyRegister
	Options  []string
}

type FPropertyRegister interface {
	complete(toComplete string) []string
}

func (f *FProperty[T]) RegisterCompletion(cmd *cobra.Command) {
	if len(f.Options) > 0 {
		_ = cmd.RegisterFlagCompletionFunc(f.Flag, func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			return f.Options, cobra.ShellCompDirectiveNoFileComp
		})
		return
	}
	if f.Register != nil && f.Flag != "" {
		_ = cmd.RegisterFlagCompletionFunc(f.Flag, func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			return f.Register.complete(toComplete), cobra.ShellCompDirectiveNoFileComp
		})
	}
}

// FormatCompletion 补全弹幕文件格式
type FormatCompletion struct{}

func (p *FormatCompletion) complete(toComplete string) []string {
	var result []string
	for _, v := range parser.Formats() {
		if strings.HasPrefix(v, strings.ToLower(toComplete)) {
			result = append(result, v)
		}
	}
	return result
}
