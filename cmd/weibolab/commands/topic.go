package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"weibolab/lib/util/serviceutil"
	"weibolab/services/bundle"
	"weibolab/services/topic"
)

var (
	topicQuery      *string
	topicPage       *int
	topicCookieFile *string
	topicOut        *string
)

func init() {
	topicQuery = topicCmd.Flags().String("topic", "", "Topic to search, with or without the surrounding #.")
	topicPage = topicCmd.Flags().Int("page", 1, "Search result page to scrape.")
	topicCookieFile = topicCmd.Flags().String("cookie-file", "weibo_cookie.txt", "File holding the s.weibo.com cookie.")
	topicOut = topicCmd.Flags().String("out", "out/topic", "Directory to write the post reports to.")
	topicCmd.MarkFlagRequired("topic")
	rootCmd.AddCommand(topicCmd)
}

var topicCmd = &cobra.Command{
	Use:   "topic --topic <query> [--page <n>]",
	Short: "Scrapes one topic search result page and writes the post reports.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client := newClient(*topicCookieFile)
		q := bundle.NormTopic(*topicQuery)

		rows, err := topic.ScrapePage(ctx, client, q, *topicPage)
		if err != nil {
			serviceutil.Fatal("failed to scrape topic page", err)
		}
		if err := os.MkdirAll(*topicOut, 0755); err != nil {
			serviceutil.Fatal("failed to create output directory", err)
		}
		if err := topic.WriteOutputs(ctx, client, rows, *topicOut); err != nil {
			serviceutil.Fatal("failed to write post reports", err)
		}
		fmt.Printf("[OK] scraped %d posts from page %d into %s\n", len(rows), *topicPage, *topicOut)
	},
}
