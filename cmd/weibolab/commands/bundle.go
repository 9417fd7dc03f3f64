package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"weibolab/cmd/weibolab/utils"
	"weibolab/lib/media"
	"weibolab/lib/util/serviceutil"
	"weibolab/services/archive"
	"weibolab/services/bundle"
	"weibolab/services/topic"
)

var (
	bundleTopic      *string
	bundleCookieFile *string
	bundleOut        *string
	bundleMaterial   *string
	bundleRefresh    *bool
	bundlePages      *int
	bundlePageDelay  *time.Duration
	bundleNoDownload *bool
	bundleStrict     *bool
)

func init() {
	bundleTopic = bundleCmd.Flags().String("topic", "", "Topic to bundle, with or without the surrounding #.")
	bundleCookieFile = bundleCmd.Flags().String("cookie-file", "weibo_cookie.txt", "File holding the s.weibo.com cookie.")
	bundleOut = bundleCmd.Flags().String("out", "out", "Directory holding scraper outputs and the bundle files.")
	bundleMaterial = bundleCmd.Flags().String("material", "", "Optional front-end material JSON providing the intro text.")
	bundleRefresh = bundleCmd.Flags().Bool("refresh", false, "Re-scrape the topic pages and the AI-search archive first.")
	bundlePages = bundleCmd.Flags().Int("pages", 3, "Topic pages to scrape when refreshing.")
	bundlePageDelay = bundleCmd.Flags().Duration("page-delay", 2*time.Second, "Pause between topic page fetches when refreshing.")
	bundleNoDownload = bundleCmd.Flags().Bool("no-download-missing-assets", false, "Never download media, only map references onto existing local files.")
	bundleStrict = bundleCmd.Flags().Bool("strict-local", false, "Exit with status 2 when any media reference stays unresolved.")
	bundleCmd.MarkFlagRequired("topic")
	rootCmd.AddCommand(bundleCmd)
}

var bundleCmd = &cobra.Command{
	Use:   "bundle --topic <query> [--refresh]",
	Short: "Merges the scraper outputs into the viewer bundle and localizes its media.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		topicDir := filepath.Join(*bundleOut, "topic")
		archiveDir := filepath.Join(*bundleOut, "archive")
		mediaDir := filepath.Join(*bundleOut, "media_files")
		q := bundle.NormTopic(*bundleTopic)

		if *bundleRefresh {
			client := newClient(*bundleCookieFile)
			if _, err := topic.Refresh(ctx, client, q, *bundlePages, *bundlePageDelay, topicDir); err != nil {
				serviceutil.Fatal("failed to refresh topic pages", err)
			}
			if _, err := archive.Run(ctx, client, archive.Options{
				Query:          q,
				OutDir:         archiveDir,
				DownloadAssets: true,
			}); err != nil {
				slog.Warn("ai-search archive failed, continuing with existing inputs", "err", err)
				fmt.Printf("[WARN] ai-search archive failed: %v\n", err)
			}
		}

		in := bundle.LoadInputs(bundle.DefaultPaths(topicDir, archiveDir, *bundleMaterial))
		resolver := media.NewResolver(mediaDir)
		b := bundle.Build(ctx, in, bundle.Options{Topic: *bundleTopic, Resolver: resolver})
		manifest := bundle.Localize(ctx, b, resolver, !*bundleNoDownload)

		bundlePath := filepath.Join(*bundleOut, bundle.BundleFile)
		manifestPath := filepath.Join(*bundleOut, bundle.ManifestFile)
		if err := bundle.WriteBundle(bundlePath, b); err != nil {
			serviceutil.Fatal("failed to write bundle", err)
		}
		if err := bundle.WriteManifest(manifestPath, manifest); err != nil {
			serviceutil.Fatal("failed to write media manifest", err)
		}

		t := utils.NewTable()
		t.AppendHeader(table.Row{"metric", "value"})
		t.AppendRows([]table.Row{
			{"posts", strconv.Itoa(manifest.Stats.Posts)},
			{"unresolved assets", strconv.Itoa(manifest.Stats.UnresolvedAssets)},
			{"gallery images", strconv.Itoa(len(b.Smart.Gallery))},
			{"video map entries", strconv.Itoa(len(b.VideoMap))},
		})
		t.Render()

		fmt.Printf("[OK] bundle written to %s\n", bundlePath)
		if manifest.Stats.UnresolvedAssets > 0 {
			fmt.Printf("[WARN] %d media references stayed remote, see %s\n",
				manifest.Stats.UnresolvedAssets, manifestPath)
			if *bundleStrict {
				fmt.Println("[ERROR] strict-local build is incomplete")
				os.Exit(2)
			}
		}
	},
}
