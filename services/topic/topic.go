package topic

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
	"weibolab/lib/scrapers/weibo"
	"weibolab/lib/textutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("services/topic")

const (
	PostsJSONFile = "s_weibo_page1_posts.json"
	PostsCSVFile  = "s_weibo_page1_posts.csv"
	AvatarsDir    = "avatars"
)

var ErrNotLoggedIn = fmt.Errorf("cookie is not logged in for s.weibo.com")

// ScrapePage fetches one topic search page and returns its post rows,
// deduplicated by post id in page order.
func ScrapePage(ctx context.Context, client *weibo.Client, q string, page int) ([]weibo.PostRow, error) {
	ctx, span := tracer.Start(ctx, "ScrapePage")
	defer span.End()
	span.SetAttributes(attribute.String("q", q), attribute.Int("page", page))

	pageHTML, err := client.FetchSearchPage(ctx, q, page)
	if err != nil {
		return nil, err
	}
	if !weibo.LoggedIn(pageHTML) {
		return nil, ErrNotLoggedIn
	}
	return MergeRows(weibo.ParsePostCards(pageHTML)), nil
}

// MergeRows deduplicates rows by post id; the first occurrence wins and
// input order is preserved, so earlier pages take precedence when
// paginated fetches overlap.
func MergeRows(rows []weibo.PostRow) []weibo.PostRow {
	seen := map[string]bool{}
	var out []weibo.PostRow
	for _, row := range rows {
		if row.PostID == "" || seen[row.PostID] {
			continue
		}
		seen[row.PostID] = true
		out = append(out, row)
	}
	return out
}

// Refresh scrapes pages 1..pages of a topic, skipping pages that fail
// to fetch, and writes the merged rows (plus downloaded avatars) to
// outdir.
func Refresh(ctx context.Context, client *weibo.Client, q string, pages int, pageDelay time.Duration, outdir string) ([]weibo.PostRow, error) {
	ctx, span := tracer.Start(ctx, "Refresh")
	defer span.End()

	var all []weibo.PostRow
	successPages := 0
	for page := 1; page <= pages; page++ {
		rows, err := ScrapePage(ctx, client, q, page)
		if err != nil {
			slog.Warn("topic page fetch failed, skipped", "page", page, "err", err)
			continue
		}
		successPages++
		all = append(all, rows...)
		if pageDelay > 0 && page < pages {
			time.Sleep(pageDelay)
		}
	}

	merged := MergeRows(all)
	if err := WriteOutputs(ctx, client, merged, outdir); err != nil {
		return merged, err
	}
	slog.Info("topic pages fetched", "ok", successPages, "requested", pages)
	slog.Info("topic posts merged", "count", len(merged))
	return merged, nil
}

// WriteOutputs downloads row avatars and writes the JSON and CSV
// reports. Avatar download failures leave the local field empty.
func WriteOutputs(ctx context.Context, client *weibo.Client, rows []weibo.PostRow, outdir string) error {
	avatarsDir := filepath.Join(outdir, AvatarsDir)
	if err := os.MkdirAll(avatarsDir, 0755); err != nil {
		return err
	}

	for i := range rows {
		rows[i].AuthorAvatarLocal = downloadAvatar(ctx, client, rows[i], avatarsDir)
	}

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(outdir, PostsJSONFile), append(data, '\n'), 0644); err != nil {
		return err
	}
	return writeCSV(filepath.Join(outdir, PostsCSVFile), rows)
}

func downloadAvatar(ctx context.Context, client *weibo.Client, row weibo.PostRow, avatarsDir string) string {
	if row.AuthorAvatarURL == "" {
		return ""
	}

	ext := ".jpg"
	if parsed, err := url.Parse(row.AuthorAvatarURL); err == nil {
		if pathExt := filepath.Ext(parsed.Path); pathExt != "" && len(pathExt) <= 5 {
			ext = pathExt
		}
	}
	name := textutil.SafeFileName(row.AuthorName, 80)
	if name == "" {
		name = "unknown"
	}
	dest := filepath.Join(avatarsDir, fmt.Sprintf("%s_%s%s", name, row.PostID, ext))

	res, err := client.Http.R().SetContext(ctx).Get(row.AuthorAvatarURL)
	if err != nil || res.IsError() {
		return ""
	}
	if err := os.WriteFile(dest, res.Body(), 0644); err != nil {
		return ""
	}
	return dest
}

var csvFields = []string{
	"post_id",
	"post_url",
	"author_name",
	"author_url",
	"author_avatar_url",
	"author_avatar_local",
	"content_text",
	"created_at",
	"source",
	"reposts_count",
	"comments_count",
	"attitudes_count",
}

func writeCSV(path string, rows []weibo.PostRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvFields); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.PostID,
			r.PostURL,
			r.AuthorName,
			r.AuthorURL,
			r.AuthorAvatarURL,
			r.AuthorAvatarLocal,
			r.ContentText,
			r.CreatedAt,
			r.Source,
			strconv.Itoa(r.RepostsCount),
			strconv.Itoa(r.CommentsCount),
			strconv.Itoa(r.AttitudesCount),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
