package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"weibolab/lib/telemetry"
)

var verbose *bool

var rootCmd = &cobra.Command{
	Use:   "weibolab",
	Short: "weibolab scrapes weibo topic and AI-search pages and builds the lab viewer bundle.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*verbose)
	},
}

func init() {
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
