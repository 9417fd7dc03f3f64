package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"weibolab/lib/util/serviceutil"
	"weibolab/services/archive"
	"weibolab/services/bundle"
)

var (
	archiveQuery          *string
	archiveCookieFile     *string
	archiveOut            *string
	archiveDownloadAssets *bool
)

func init() {
	archiveQuery = archiveCmd.Flags().String("topic", "", "Topic to archive the AI-search answer for.")
	archiveCookieFile = archiveCmd.Flags().String("cookie-file", "weibo_cookie.txt", "File holding the s.weibo.com cookie.")
	archiveOut = archiveCmd.Flags().String("out", "out/archive", "Directory to write the archive to.")
	archiveDownloadAssets = archiveCmd.Flags().Bool("download-assets", true, "Download avatars and images of linked posts.")
	archiveCmd.MarkFlagRequired("topic")
	rootCmd.AddCommand(archiveCmd)
}

var archiveCmd = &cobra.Command{
	Use:   "archive --topic <query>",
	Short: "Archives the AI-search answer and every post it links to.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client := newClient(*archiveCookieFile)
		q := bundle.NormTopic(*archiveQuery)

		summary, err := archive.Run(ctx, client, archive.Options{
			Query:          q,
			OutDir:         *archiveOut,
			DownloadAssets: *archiveDownloadAssets,
		})
		if err != nil {
			serviceutil.Fatal("failed to archive ai-search answer", err)
		}
		fmt.Printf("[OK] archived %d linked posts (%d links) into %s\n",
			summary.MidCount, summary.LinkListCount, *archiveOut)
	},
}
