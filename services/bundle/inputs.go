package bundle

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"weibolab/lib/scrapers/weibo"
	"weibolab/services/archive"
	"weibolab/services/topic"
)

// Paths names the on-disk inputs of a bundle build. Any path may point
// at a missing file; the build then proceeds with that source empty.
type Paths struct {
	TopicPosts  string
	LinkedPosts string
	WisRaw      string
	Summary     string
	Material    string
	HTMLDir     string
}

// DefaultPaths lays the inputs out the way the scrapers write them:
// topic outputs in topicDir, archive outputs in archiveDir.
func DefaultPaths(topicDir, archiveDir, materialFile string) Paths {
	return Paths{
		TopicPosts:  filepath.Join(topicDir, topic.PostsJSONFile),
		LinkedPosts: filepath.Join(archiveDir, archive.LinkedPostsFile),
		WisRaw:      filepath.Join(archiveDir, archive.RawDirName, archive.WisRawFile),
		Summary:     filepath.Join(archiveDir, archive.SummaryFile),
		Material:    materialFile,
		HTMLDir:     filepath.Join(archiveDir, archive.HTMLDirName),
	}
}

// Inputs is the loaded state a bundle is built from.
type Inputs struct {
	TopicPosts  []weibo.PostRow
	LinkedPosts []archive.LinkedPostRow
	Wis         weibo.WisPayload
	Summary     archive.Summary
	Material    Material

	// GeneratedAt is the archive summary's mtime, nil when the summary
	// file is absent.
	GeneratedAt *int64

	htmlDir string
}

// LoadInputs reads every input best effort. A missing or unreadable
// file is logged and leaves its field at the zero value, so a bundle
// can be built from whatever subset of scraper runs exists.
func LoadInputs(p Paths) Inputs {
	in := Inputs{htmlDir: p.HTMLDir}
	loadJSON(p.TopicPosts, &in.TopicPosts)
	loadJSON(p.LinkedPosts, &in.LinkedPosts)
	loadJSON(p.WisRaw, &in.Wis)
	loadJSON(p.Summary, &in.Summary)
	loadJSON(p.Material, &in.Material)

	if info, err := os.Stat(p.Summary); err == nil {
		ts := info.ModTime().Unix()
		in.GeneratedAt = &ts
	}
	return in
}

// PageHTML returns the archived search page snapshot for a post, or ""
// when none was archived.
func (in Inputs) PageHTML(mid string) string {
	if in.htmlDir == "" || mid == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(in.htmlDir, mid+".html"))
	if err != nil {
		return ""
	}
	return string(data)
}

func loadJSON(path string, v any) {
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("bundle input not loaded", "path", path, "err", err)
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		slog.Warn("bundle input not parseable", "path", path, "err", err)
	}
}
