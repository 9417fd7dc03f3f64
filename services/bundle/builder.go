package bundle

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"weibolab/lib/media"
	"weibolab/lib/scrapers/weibo"
	"weibolab/lib/textutil"
	"weibolab/services/archive"
)

var tracer = otel.Tracer("services/bundle")

const (
	BundleFile   = "lab_bundle.json"
	ManifestFile = "lab_bundle_media_manifest.json"

	maxPostImages  = 9
	maxGallery     = 3
	summaryRuneCap = 220
	previewRuneCap = 80
)

// defaultGalleryIDs are the posts whose first multimodal image seeds
// the smart gallery before backfilling.
var defaultGalleryIDs = []string{
	"5270471789774972",
	"5270483571310612",
	"5270491384516213",
	"5270501795824545",
}

type Options struct {
	Topic string
	// Resolver copies archived media into the public directory during
	// the build and localizes references afterwards.
	Resolver *media.Resolver
	// PreferredGalleryIDs overrides the default gallery seeding order.
	PreferredGalleryIDs []string
}

// NormTopic wraps a topic query in the site's #topic# form, tolerating
// input that already carries the hashes.
func NormTopic(topic string) string {
	return "#" + strings.Trim(strings.TrimSpace(topic), "#") + "#"
}

// MultimodalMap aggregates the AI-search multimodal items per post id.
// Scalar fields keep their first value, images append in order with
// dedupe, junk and empty URLs are skipped. The returned slice preserves
// first-seen order since the map itself does not.
func MultimodalMap(wis weibo.WisPayload) (map[string]*MultimodalEntry, []string) {
	entries := map[string]*MultimodalEntry{}
	var order []string

	for _, item := range wis.CardMultimodal.Data {
		mid := item.CurMid.String()
		if mid == "" {
			continue
		}
		e, ok := entries[mid]
		if !ok {
			e = &MultimodalEntry{Images: []string{}}
			entries[mid] = e
			order = append(order, mid)
		}

		if img := media.NormalizeURL(item.Img); img != "" && !media.IsBadURL(img) && !containsString(e.Images, img) {
			e.Images = append(e.Images, img)
		}
		if e.VideoURL == "" {
			e.VideoURL = media.NormalizeURL(item.VideoURL)
		}
		if e.UserName == "" {
			e.UserName = item.UserName
		}
		if e.UserAvatar == "" {
			e.UserAvatar = media.NormalizeURL(item.UserAvatar)
		}
		if e.Type == "" {
			e.Type = item.Type
		}
	}
	return entries, order
}

// LinkedMap indexes archived linked posts by post id, first row wins.
func LinkedMap(rows []archive.LinkedPostRow) map[string]archive.LinkedPostRow {
	out := map[string]archive.LinkedPostRow{}
	for _, row := range rows {
		if row.PostID == "" {
			continue
		}
		if _, ok := out[row.PostID]; !ok {
			out[row.PostID] = row
		}
	}
	return out
}

// Build merges the loaded inputs into one viewer bundle. Posts keep the
// topic page order and are deduplicated by post id; every media
// reference stays remote here, Localize maps them onto local files.
func Build(ctx context.Context, in Inputs, opts Options) *Bundle {
	ctx, span := tracer.Start(ctx, "Build")
	defer span.End()
	span.SetAttributes(attribute.String("topic", opts.Topic))

	mm, mmOrder := MultimodalMap(in.Wis)
	linked := LinkedMap(in.LinkedPosts)

	b := &Bundle{
		Topic:       NormTopic(opts.Topic),
		GeneratedAt: in.GeneratedAt,
		Posts:       []*Post{},
		VideoMap:    map[string]*VideoMapEntry{},
	}

	seen := map[string]bool{}
	for _, row := range in.TopicPosts {
		if row.PostID == "" || seen[row.PostID] {
			continue
		}
		seen[row.PostID] = true
		b.Posts = append(b.Posts, buildPost(row, linked[row.PostID], mm[row.PostID], in, opts))
	}

	b.Smart = buildSmart(in, opts, mm, mmOrder)

	for _, mid := range mmOrder {
		e := mm[mid]
		if e.VideoURL == "" {
			continue
		}
		poster := ""
		if len(e.Images) > 0 {
			poster = e.Images[0]
		}
		b.VideoMap[mid] = &VideoMapEntry{
			VideoURL: e.VideoURL,
			Poster:   poster,
			UserName: e.UserName,
			Type:     e.Type,
		}
	}

	return b
}

func buildPost(row weibo.PostRow, linked archive.LinkedPostRow, entry *MultimodalEntry, in Inputs, opts Options) *Post {
	mid := row.PostID
	pageHTML := in.PageHTML(mid)
	meta := weibo.ParseVideoMeta(pageHTML, mid)

	post := &Post{PostRow: row}
	post.Images = buildPostImages(opts.Resolver, linked, entry, pageHTML, mid, meta.Poster)
	post.AuthorAvatarURL = resolveAvatar(opts.Resolver, row, linked, entry)

	if entry != nil {
		post.VideoURL = entry.VideoURL
	}
	if post.VideoURL == "" {
		post.VideoURL = meta.VideoURL
	}
	post.VideoStreamURL = meta.StreamURL
	if post.VideoStreamURL == "" && post.VideoURL != "" {
		post.VideoStreamURL = weibo.StreamURL(pageHTML)
	}
	post.VideoPoster = meta.Poster
	if post.VideoPoster == "" && len(post.Images) > 0 {
		post.VideoPoster = post.Images[0]
	}
	return post
}

// buildPostImages collects image candidates in priority order: archived
// local files, archived remote URLs, multimodal images, images scraped
// from the page snapshot, then the player poster. The merged list is
// filtered, deduplicated and capped; a post with nothing left falls
// back to its first multimodal image.
func buildPostImages(r *media.Resolver, linked archive.LinkedPostRow, entry *MultimodalEntry, pageHTML, mid, poster string) []string {
	var candidates []string

	for _, local := range linked.MediaImageLocal {
		if r != nil && r.IsGoodLocalImage(local) {
			if pub := r.EnsureLocal(local); pub != "" {
				candidates = append(candidates, pub)
			}
		}
	}
	candidates = append(candidates, linked.MediaImageURLs...)
	if entry != nil {
		candidates = append(candidates, entry.Images...)
	}
	candidates = append(candidates, weibo.CardImages(pageHTML, mid)...)
	if poster != "" {
		candidates = append(candidates, poster)
	}

	images := filterImages(candidates, maxPostImages)
	if len(images) == 0 && entry != nil && len(entry.Images) > 0 {
		images = filterImages(entry.Images[:1], maxPostImages)
	}
	return images
}

func filterImages(candidates []string, limit int) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, c := range candidates {
		u := media.NormalizeURL(c)
		if u == "" || media.IsBadURL(u) || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
		if len(out) == limit {
			break
		}
	}
	return out
}

// resolveAvatar picks the best avatar reference: the archived local
// file whenever it exists, then the archived remote URL, the multimodal
// avatar, and finally the topic row's own URL. Avatars are often tiny,
// so the local file is not held to the placeholder size threshold.
// Remote candidates go through the junk blocklist.
func resolveAvatar(r *media.Resolver, row weibo.PostRow, linked archive.LinkedPostRow, entry *MultimodalEntry) string {
	if r != nil && linked.AuthorAvatarLocal != "" {
		if pub := r.EnsureLocal(linked.AuthorAvatarLocal); pub != "" {
			return pub
		}
	}

	mmAvatar := ""
	if entry != nil {
		mmAvatar = entry.UserAvatar
	}
	for _, cand := range []string{linked.AuthorAvatarURL, mmAvatar, row.AuthorAvatarURL} {
		u := media.NormalizeURL(cand)
		if u != "" && !media.IsBadURL(u) {
			return u
		}
	}
	return ""
}

func buildSmart(in Inputs, opts Options, mm map[string]*MultimodalEntry, mmOrder []string) Smart {
	answer := firstNonBlank(in.Summary.AnswerText, in.Wis.TextN, in.Wis.Text, in.Material.Intro)
	summary := firstNonBlank(in.Wis.TextN, in.Wis.Text, in.Material.Intro)
	if summary == "" {
		summary = textutil.TruncateRunes(answer, summaryRuneCap)
	}

	preferred := opts.PreferredGalleryIDs
	if preferred == nil {
		preferred = defaultGalleryIDs
	}

	links := []archive.SourceLink{}
	for _, l := range in.Summary.Links {
		if l.Scheme == "" && l.SearchURL == "" {
			continue
		}
		links = append(links, l)
	}

	linkList := in.Wis.LinkList
	if linkList == nil {
		linkList = []string{}
	}

	return Smart{
		Title:       NormTopic(opts.Topic),
		Summary:     summary,
		AnswerText:  answer,
		Intro:       strings.TrimSpace(in.Material.Intro),
		Gallery:     chooseGallery(mm, mmOrder, preferred),
		LinkList:    linkList,
		SourceLinks: links,
	}
}

// chooseGallery picks up to three distinct first-images for the smart
// block, seeding from the preferred post ids and backfilling in
// multimodal order.
func chooseGallery(mm map[string]*MultimodalEntry, order, preferred []string) []string {
	seen := map[string]bool{}
	out := []string{}
	add := func(mid string) {
		e := mm[mid]
		if e == nil || len(e.Images) == 0 {
			return
		}
		img := e.Images[0]
		if img == "" || seen[img] {
			return
		}
		seen[img] = true
		out = append(out, img)
	}

	for _, mid := range preferred {
		if len(out) >= maxGallery {
			break
		}
		add(mid)
	}
	for _, mid := range order {
		if len(out) >= maxGallery {
			break
		}
		add(mid)
	}
	return out
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// imageField names a post image slot for manifest reporting.
func imageField(i int) string {
	return fmt.Sprintf("images[%d]", i)
}
