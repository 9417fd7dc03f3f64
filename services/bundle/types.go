package bundle

import (
	"weibolab/lib/scrapers/weibo"
	"weibolab/services/archive"
)

// Post is one merged post of the viewer bundle: the topic row enriched
// with resolved media.
type Post struct {
	weibo.PostRow
	Images         []string `json:"images"`
	VideoURL       string   `json:"video_url"`
	VideoStreamURL string   `json:"video_stream_url"`
	VideoPoster    string   `json:"video_poster"`
}

// MultimodalEntry aggregates the AI-search multimodal payload per post.
// Scalar fields are first-write-wins, images append with dedupe.
type MultimodalEntry struct {
	Images     []string `json:"images"`
	VideoURL   string   `json:"video_url"`
	UserName   string   `json:"user_name"`
	UserAvatar string   `json:"user_avatar"`
	Type       string   `json:"type"`
}

// Smart is the topic-level summary block of the bundle.
type Smart struct {
	Title       string               `json:"title"`
	Summary     string               `json:"summary"`
	AnswerText  string               `json:"answer_text"`
	Intro       string               `json:"intro"`
	Gallery     []string             `json:"gallery"`
	LinkList    []string             `json:"link_list"`
	SourceLinks []archive.SourceLink `json:"source_links"`
}

type VideoMapEntry struct {
	VideoURL string `json:"video_url"`
	Poster   string `json:"poster"`
	UserName string `json:"user_name"`
	Type     string `json:"type"`
}

type AssetStats struct {
	Posts            int `json:"posts"`
	UnresolvedAssets int `json:"unresolved_assets"`
}

// Bundle is the merged document the front-end viewer consumes.
type Bundle struct {
	Topic         string                    `json:"topic"`
	GeneratedAt   *int64                    `json:"generated_at"`
	Smart         Smart                     `json:"smart"`
	Posts         []*Post                   `json:"posts"`
	VideoMap      map[string]*VideoMapEntry `json:"video_map"`
	AssetManifest AssetStats                `json:"asset_manifest"`
}

// ManifestPostRow is the per-post preview of the media manifest.
type ManifestPostRow struct {
	PostID         string   `json:"post_id"`
	AuthorName     string   `json:"author_name"`
	ContentPreview string   `json:"content_preview"`
	Avatar         string   `json:"avatar"`
	Images         []string `json:"images"`
	VideoPoster    string   `json:"video_poster"`
}

// UnresolvedAsset records one media reference that could not be mapped
// to a local file.
type UnresolvedAsset struct {
	PostID string `json:"post_id"`
	Field  string `json:"field"`
	URL    string `json:"url"`
}

// Manifest reports the outcome of media localization.
type Manifest struct {
	Topic            string            `json:"topic"`
	GeneratedAt      *int64            `json:"generated_at"`
	Posts            []ManifestPostRow `json:"posts"`
	UnresolvedAssets []UnresolvedAsset `json:"unresolved_assets"`
	Stats            AssetStats        `json:"stats"`
}

// Material is the hand-maintained front-end material file; only the
// intro text participates in bundle building.
type Material struct {
	Intro string `json:"intro"`
}
