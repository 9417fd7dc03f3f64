package archive

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"weibolab/lib/scrapers/weibo"
	"weibolab/lib/textutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("services/archive")

// filenames of the archive layout; the bundle builder reads these back
const (
	SummaryFile     = "zhisou_archive_summary.json"
	LinkedPostsFile = "linked_posts.json"
	LinkedPostsCSV  = "linked_posts.csv"
	HTMLDirName     = "linked_pages_html"
	MediaDirName    = "media_files"
	RawDirName      = "raw"
	WisRawFile      = "aisearch_wis_show.json"
)

var ErrNotLoggedIn = fmt.Errorf("cookie is not logged in for s.weibo.com")

type Options struct {
	Query          string
	OutDir         string
	DownloadAssets bool
}

// Run archives the AI-search answer for a query: the summary pages, the
// streamed answer payload, every linked post's search page HTML, and
// optionally their avatar/media files. Individual post failures are
// recorded and skipped, only login/IO problems abort the run.
func Run(ctx context.Context, client *weibo.Client, opts Options) (Summary, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()
	span.SetAttributes(attribute.String("query", opts.Query))

	rawDir := filepath.Join(opts.OutDir, RawDirName)
	if err := os.MkdirAll(rawDir, 0755); err != nil {
		return Summary{}, err
	}

	searchURL := weibo.SearchURL(opts.Query, 1)
	aiSearchURL := weibo.AISearchURL(opts.Query)

	searchHTML, err := client.FetchSearchPage(ctx, opts.Query, 1)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch search page: %w", err)
	}
	if !weibo.LoggedIn(searchHTML) {
		return Summary{}, ErrNotLoggedIn
	}
	aiSearchHTML, err := client.FetchAISearchPage(ctx, opts.Query)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch aisearch page: %w", err)
	}

	if err := os.WriteFile(filepath.Join(rawDir, "s_weibo_search_page1.html"), []byte(searchHTML), 0644); err != nil {
		return Summary{}, err
	}
	if err := os.WriteFile(filepath.Join(rawDir, "s_weibo_aisearch.html"), []byte(aiSearchHTML), 0644); err != nil {
		return Summary{}, err
	}

	cardAI := weibo.ParseAISearchCard(searchHTML)

	wis, wisRaw, err := client.FetchWisShow(ctx, opts.Query)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch wis show: %w", err)
	}
	if err := os.WriteFile(filepath.Join(rawDir, WisRawFile), wisRaw, 0644); err != nil {
		return Summary{}, err
	}

	thinkText, answerText := weibo.SplitThink(wis.Msg)

	mids := uniqueMids(wis.LinkList)
	rows := archiveLinkedPosts(ctx, client, mids, opts)

	summary := Summary{
		Query:          opts.Query,
		CreatedAtEpoch: time.Now().Unix(),
		SearchURL:      searchURL,
		AISearchURL:    aiSearchURL,
		CardAISearch:   cardAI,
		WisStatus:      wis.Status,
		WisStatusStage: wis.StatusStage,
		WisModel:       wis.Model,
		WisPageID:      wis.PageID,
		WisShortURL:    wis.ShortURL,
		ThinkText:      thinkText,
		AnswerText:     answerText,
		RawMsgMarkdown: wis.Msg,
		LinkListCount:  len(wis.LinkList),
		MidCount:       len(mids),
		Links:          sourceLinks(wis.LinkList),
	}

	if err := writeJSON(filepath.Join(opts.OutDir, SummaryFile), summary); err != nil {
		return Summary{}, err
	}
	if err := writeJSON(filepath.Join(opts.OutDir, LinkedPostsFile), rows); err != nil {
		return Summary{}, err
	}
	if err := writeLinkedPostsCSV(filepath.Join(opts.OutDir, LinkedPostsCSV), rows); err != nil {
		return Summary{}, err
	}

	okCount := 0
	for _, r := range rows {
		if r.FetchOK {
			okCount++
		}
	}
	slog.Info("archive finished",
		"query", opts.Query,
		"links", len(wis.LinkList),
		"unique_mids", len(mids),
		"parsed", fmt.Sprintf("%d/%d", okCount, len(rows)),
	)
	return summary, nil
}

func uniqueMids(linkList []string) []string {
	seen := map[string]bool{}
	var mids []string
	for _, link := range linkList {
		mid := weibo.MidFromScheme(link)
		if mid == "" || seen[mid] {
			continue
		}
		seen[mid] = true
		mids = append(mids, mid)
	}
	sort.Strings(mids)
	return mids
}

func sourceLinks(linkList []string) []SourceLink {
	var out []SourceLink
	for _, link := range linkList {
		mid := weibo.MidFromScheme(link)
		searchURL := ""
		if mid != "" {
			searchURL = weibo.SearchURL(mid, 1)
		}
		out = append(out, SourceLink{Scheme: link, Mid: mid, SearchURL: searchURL})
	}
	return out
}

func archiveLinkedPosts(ctx context.Context, client *weibo.Client, mids []string, opts Options) []LinkedPostRow {
	htmlDir := filepath.Join(opts.OutDir, HTMLDirName)
	assetsDir := filepath.Join(opts.OutDir, MediaDirName)
	os.MkdirAll(htmlDir, 0755)
	os.MkdirAll(assetsDir, 0755)

	var rows []LinkedPostRow
	for i, mid := range mids {
		searchURL := weibo.SearchURL(mid, 1)

		pageHTML, err := client.FetchSearchPage(ctx, mid, 1)
		if err != nil {
			rows = append(rows, LinkedPostRow{
				PostRow:   weibo.PostRow{PostID: mid},
				SearchURL: searchURL,
				Error:     err.Error(),
			})
			continue
		}
		if err := os.WriteFile(filepath.Join(htmlDir, mid+".html"), []byte(pageHTML), 0644); err != nil {
			slog.Warn("failed to snapshot linked page", "mid", mid, "err", err)
		}

		card, found := weibo.ParseCard(pageHTML, mid)
		if !found {
			rows = append(rows, LinkedPostRow{
				PostRow:   weibo.PostRow{PostID: mid},
				SearchURL: searchURL,
			})
			continue
		}

		row := LinkedPostRow{
			PostRow:         card,
			SearchURL:       searchURL,
			FetchOK:         true,
			MediaImageLocal: []string{},
		}

		if opts.DownloadAssets {
			if card.AuthorAvatarURL != "" {
				name := fmt.Sprintf(
					"%s_%s_avatar%s",
					textutil.SafeFileName(orUnknown(card.AuthorName), 90),
					mid,
					urlExt(card.AuthorAvatarURL),
				)
				dest := filepath.Join(assetsDir, name)
				referer := firstNonEmpty(card.AuthorURL, searchURL)
				if downloadFile(ctx, client, card.AuthorAvatarURL, dest, referer) {
					row.AuthorAvatarLocal = dest
				}
			}
			for idx, imgURL := range card.MediaImageURLs {
				dest := filepath.Join(assetsDir, fmt.Sprintf("%s_img_%d%s", mid, idx+1, urlExt(imgURL)))
				referer := firstNonEmpty(card.PostURL, searchURL)
				if downloadFile(ctx, client, imgURL, dest, referer) {
					row.MediaImageLocal = append(row.MediaImageLocal, dest)
				}
			}
		}

		rows = append(rows, row)
		if (i+1)%10 == 0 {
			slog.Info("linked posts archived", "done", i+1, "total", len(mids))
		}
	}
	return rows
}

// downloadFile saves one remote asset; HTML and tiny payloads are
// rejected so login walls never get cached as images.
func downloadFile(ctx context.Context, client *weibo.Client, rawURL, dest, referer string) bool {
	res, err := client.Http.R().
		SetContext(ctx).
		SetHeader("Accept", "image/*,*/*;q=0.8").
		SetHeader("Referer", referer).
		Get(rawURL)
	if err != nil || res.IsError() {
		return false
	}
	ctype := strings.ToLower(res.Header().Get("Content-Type"))
	body := res.Body()
	if !strings.Contains(ctype, "image") || len(body) < 300 {
		return false
	}
	if err := os.WriteFile(dest, body, 0644); err != nil {
		return false
	}
	return true
}

func urlExt(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ".jpg"
	}
	ext := filepath.Ext(parsed.Path)
	if ext == "" {
		return ".jpg"
	}
	return ext
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

var csvFields = []string{
	"post_id",
	"fetch_ok",
	"search_url",
	"post_url",
	"author_name",
	"author_url",
	"author_avatar_url",
	"author_avatar_local",
	"created_at",
	"source",
	"content_text",
	"reposts_count",
	"comments_count",
	"attitudes_count",
	"media_image_urls",
	"media_image_local",
}

func writeLinkedPostsCSV(path string, rows []LinkedPostRow) error {
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
		urls, _ := json.Marshal(orEmpty(r.MediaImageURLs))
		locals, _ := json.Marshal(orEmpty(r.MediaImageLocal))
		record := []string{
			r.PostID,
			strconv.FormatBool(r.FetchOK),
			r.SearchURL,
			r.PostURL,
			r.AuthorName,
			r.AuthorURL,
			r.AuthorAvatarURL,
			r.AuthorAvatarLocal,
			r.CreatedAt,
			r.Source,
			r.ContentText,
			strconv.Itoa(r.RepostsCount),
			strconv.Itoa(r.CommentsCount),
			strconv.Itoa(r.AttitudesCount),
			string(urls),
			string(locals),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
