package weibo

import (
	"regexp"
	"sort"
	"strings"
	"weibolab/lib/media"
	"weibolab/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

// PostRow is one post as parsed from a search result card.
type PostRow struct {
	PostID            string   `json:"post_id"`
	PostURL           string   `json:"post_url"`
	AuthorName        string   `json:"author_name"`
	AuthorURL         string   `json:"author_url"`
	AuthorAvatarURL   string   `json:"author_avatar_url"`
	AuthorAvatarLocal string   `json:"author_avatar_local"`
	ContentText       string   `json:"content_text"`
	CreatedAt         string   `json:"created_at"`
	Source            string   `json:"source"`
	RepostsCount      int      `json:"reposts_count"`
	CommentsCount     int      `json:"comments_count"`
	AttitudesCount    int      `json:"attitudes_count"`
	MediaImageURLs    []string `json:"media_image_urls,omitempty"`
}

// NormalizeHref upgrades protocol-relative hrefs; absolute and
// site-relative links are kept as-is.
func NormalizeHref(u string) string {
	if u == "" {
		return ""
	}
	if strings.HasPrefix(u, "http") {
		return u
	}
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	return u
}

// CardBlock slices the HTML fragment of one card out of a search page:
// from the card-wrap opening tag carrying the target mid up to the next
// card (or closing boundary). Empty when the mid is not on the page.
func CardBlock(html, mid string) string {
	if html == "" || mid == "" {
		return ""
	}
	pattern := regexp.MustCompile(
		`(?s)<div class="card-wrap"[^>]*mid="` + regexp.QuoteMeta(mid) + `"[^>]*>` +
			`(.*?)` +
			`(?:<div class="card-wrap"|</div>\s*<script|<!--/card-wrap-->|</body>|$)`,
	)
	m := pattern.FindStringSubmatch(html)
	if m == nil {
		return ""
	}
	return m[1]
}

var imgSrcRegex = regexp.MustCompile(`(?i)<img[^>]+src=["']([^"']+)["']`)
var imageSuffixRegex = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|webp)(\?|$)`)

// face-icon CDNs never hold post media
var faceIconHosts = []string{"face.t.sinajs.cn", "simg.s.weibo.com"}

// CardImages extracts the ordered, deduplicated post image URLs inside
// a card block, dropping avatars, crops, badges and anything that is
// not a raster image on the media CDN.
func CardImages(html, mid string) []string {
	block := CardBlock(html, mid)
	if block == "" {
		return nil
	}

	var out []string
	seen := map[string]bool{}
	for _, m := range imgSrcRegex.FindAllStringSubmatch(block, -1) {
		u := strings.ReplaceAll(media.NormalizeURL(m[1]), "&amp;", "&")
		if u == "" {
			continue
		}
		if !strings.Contains(u, "wx") || !strings.Contains(u, "sinaimg.cn") {
			continue
		}
		if media.IsBadURL(u) {
			continue
		}
		if containsAny(u, faceIconHosts) {
			continue
		}
		if !imageSuffixRegex.MatchString(u) {
			continue
		}
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// VideoMeta is the best-effort video metadata embedded in a card's
// inline player script.
type VideoMeta struct {
	StreamURL string
	Poster    string
	VideoURL  string
}

var streamURLRegex = regexp.MustCompile(`(https?:)?//f\.video\.weibocdn\.com/[^\s"'<>]+?\.mp4[^\s"'<>]*`)
var posterRegex = regexp.MustCompile(`poster\s*:\s*'([^']+)'`)
var addressRegex = regexp.MustCompile(`address\s*:\s*'([^']+)'`)

// ParseVideoMeta scans the card block (and its backslash-unescaped
// variant, since inline JSON escapes slashes) for the known player
// markers. Each field is found independently, first match wins, absence
// yields an empty string.
func ParseVideoMeta(html, mid string) VideoMeta {
	block := CardBlock(html, mid)
	if block == "" {
		block = html
	}
	var out VideoMeta
	if block == "" {
		return out
	}

	for _, text := range []string{block, strings.ReplaceAll(block, `\/`, "/")} {
		if out.StreamURL == "" {
			if m := streamURLRegex.FindString(text); m != "" {
				out.StreamURL = media.NormalizeURL(strings.ReplaceAll(m, "&amp;", "&"))
			}
		}
		if out.Poster == "" {
			if m := posterRegex.FindStringSubmatch(text); m != nil {
				out.Poster = media.NormalizeURL(strings.ReplaceAll(m[1], "&amp;", "&"))
			}
		}
		if out.VideoURL == "" {
			if m := addressRegex.FindStringSubmatch(text); m != nil {
				out.VideoURL = media.NormalizeURL(strings.ReplaceAll(m[1], "&amp;", "&"))
			}
		}
	}
	return out
}

// StreamURL scans a whole page for a direct CDN stream link, used when
// the card block itself carries none.
func StreamURL(html string) string {
	for _, text := range []string{html, strings.ReplaceAll(html, `\/`, "/")} {
		if m := streamURLRegex.FindString(text); m != "" {
			return media.NormalizeURL(strings.ReplaceAll(m, "&amp;", "&"))
		}
	}
	return ""
}

// ParsePostCards parses every feed card on a search result page.
func ParsePostCards(html string) []PostRow {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var rows []PostRow
	doc.Find(`div.card-wrap[action-type="feed_list_item"]`).Each(func(_ int, sel *goquery.Selection) {
		mid, ok := sel.Attr("mid")
		if !ok || mid == "" {
			return
		}
		rows = append(rows, parseCardSelection(sel, mid, false))
	})
	return rows
}

// ParseCard parses the single feed card carrying the given mid,
// including its media image URLs.
func ParseCard(html, mid string) (PostRow, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return PostRow{}, false
	}
	sel := doc.Find(`div.card-wrap[action-type="feed_list_item"][mid="` + mid + `"]`).First()
	if sel.Length() == 0 {
		return PostRow{}, false
	}
	return parseCardSelection(sel, mid, true), true
}

func parseCardSelection(sel *goquery.Selection, mid string, includeMedia bool) PostRow {
	row := PostRow{PostID: mid}

	row.AuthorAvatarURL = NormalizeHref(sel.Find("div.avator img").First().AttrOr("src", ""))

	name := sel.Find("a.name").First()
	row.AuthorURL = NormalizeHref(name.AttrOr("href", ""))
	row.AuthorName = cleanSelectionText(name)

	row.ContentText = cleanSelectionText(sel.Find("p.txt").First())

	from := sel.Find("div.from").First().Find("a")
	if from.Length() > 0 {
		first := from.Eq(0)
		row.PostURL = NormalizeHref(first.AttrOr("href", ""))
		row.CreatedAt = cleanSelectionText(first)
	}
	if from.Length() > 1 {
		row.Source = cleanSelectionText(from.Eq(1))
	}

	row.RepostsCount = textutil.ParseCount(sel.Find(`a[action-type="feed_list_forward"]`).First().Text())
	row.CommentsCount = textutil.ParseCount(sel.Find(`a[action-type="feed_list_comment"]`).First().Text())
	row.AttitudesCount = textutil.ParseCount(sel.Find("span.woo-like-count").First().Text())

	if includeMedia {
		row.MediaImageURLs = cardMediaURLs(sel)
	}
	return row
}

// cardMediaURLs prefers images inside media containers, falling back to
// any non-avatar CDN image in the card.
func cardMediaURLs(sel *goquery.Selection) []string {
	seen := map[string]bool{}
	var out []string
	add := func(u string) {
		u = media.NormalizeURL(u)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}

	sel.Find(`div[class^="media"] img`).Each(func(_ int, img *goquery.Selection) {
		add(img.AttrOr("src", ""))
	})
	if len(out) == 0 {
		sel.Find("img").Each(func(_ int, img *goquery.Selection) {
			u := img.AttrOr("src", "")
			if strings.Contains(u, "sinaimg.cn") && !strings.Contains(u, "tvax") {
				add(u)
			}
		})
	}

	sort.Strings(out)
	return out
}

func cleanSelectionText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	h, err := sel.Html()
	if err != nil {
		return textutil.CleanHTML(sel.Text())
	}
	return textutil.CleanHTML(h)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
