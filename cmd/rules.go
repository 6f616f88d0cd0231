package cmd

import (
	"danmaku-overlay/internal/store"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "block rule tools",
	}
	check := &cobra.Command{
		Use:   "check <file>",
		Short: "validate a block rules file",
		Args:  cobra.ExactArgs(1),
	}
	check.RunE = func(cmd *cobra.Command, args []string) error {
		Init()
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		rules, parseErr := store.ParseRules(data)
		out := cmd.OutOrStdout()
		for i, r := range rules {
			state := "enabled"
			if !r.Enable {
				state = "disabled"
			}
			_, _ = fmt.Fprintf(out, "%3d  %-8s %-8s %-10s %q\n", i, state, r.Field, r.Relation, r.Content)
		}
		if parseErr != nil {
			_, _ = fmt.Fprintln(out, parseErr)
			return errors.New("rules file has invalid entries")
		}
		_, _ = fmt.Fprintf(out, "%d rules ok\n", len(rules))
		return nil
	}
	cmd.AddCommand(check)
	return cmd
}

func init() {
	rootCmd.AddCommand(rulesCmd())
}
