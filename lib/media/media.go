package media

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"weibolab/lib/telemetry"
	"weibolab/lib/textutil"
)

var tracer = otel.Tracer("lib/media")

// PublicPrefix is the path prefix the front-end serves localized media
// files under.
const PublicPrefix = "/media_files/"

const browserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
	".bmp":  true,
	".avif": true,
}

var goodImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".png":  true,
}

// NormalizeURL upgrades protocol-relative and plain-http references to
// https and trims whitespace. Empty input stays empty.
func NormalizeURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return ""
	}
	if strings.HasPrefix(u, "//") {
		u = "https:" + u
	}
	if strings.HasPrefix(u, "http://") {
		u = "https://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// IsBadURL reports whether a media URL is a known junk asset: vip
// badges, cropped thumbnails and avatar CDN variants.
func IsBadURL(u string) bool {
	return strings.Contains(u, "svvip_") ||
		strings.Contains(u, "h5.sinaimg.cn/upload/108/1866") ||
		strings.Contains(u, "/crop.") ||
		strings.Contains(u, "tvax")
}

// InferExt picks a file extension for a downloaded image, preferring
// the URL path suffix, then the response content type, then .jpg.
func InferExt(rawURL string, contentType string) string {
	parsed, err := url.Parse(rawURL)
	if err == nil {
		pathExt := strings.ToLower(filepath.Ext(parsed.Path))
		if imageExts[pathExt] {
			return pathExt
		}
	}

	ctype := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if ctype != "" {
		guessed, err := mime.ExtensionsByType(ctype)
		if err == nil {
			for _, ext := range guessed {
				if imageExts[strings.ToLower(ext)] {
					return strings.ToLower(ext)
				}
			}
		}
	}
	return ".jpg"
}

// LooksLikeImage sniffs magic bytes to reject HTML error pages and
// truncated payloads masquerading as images.
func LooksLikeImage(data []byte) bool {
	if len(data) < 256 {
		return false
	}
	head := data[:24]
	switch {
	case bytes.HasPrefix(head, []byte{0xff, 0xd8, 0xff}): // jpeg
		return true
	case bytes.HasPrefix(head, []byte("\x89PNG\r\n\x1a\n")): // png
		return true
	case bytes.HasPrefix(head, []byte("GIF87a")), bytes.HasPrefix(head, []byte("GIF89a")):
		return true
	case bytes.HasPrefix(head, []byte("RIFF")) && bytes.Contains(data[:16], []byte("WEBP")):
		return true
	}
	if bytes.Contains(bytes.ToLower(data[:300]), []byte("<html")) {
		return false
	}
	return true
}

// Resolver maps media references (remote URLs, archived local paths,
// already-public paths) onto canonical files in a public media
// directory. One resolver covers one build run; the download cache is
// not persisted across runs.
type Resolver struct {
	// Dir is the public media directory files are materialized into.
	Dir string
	// Referer sent with every image download.
	Referer string
	// MinGoodImageBytes is the smallest size an existing local file may
	// have and still be trusted over a fresh resolution. Tuned against
	// the source site's placeholder stubs.
	MinGoodImageBytes int64
	// MinDownloadBytes is the floor below which a downloaded payload is
	// discarded unless it already qualifies as a good image.
	MinDownloadBytes int64

	http  *resty.Client
	cache map[string]string
}

func NewResolver(dir string) *Resolver {
	client := resty.New()
	client.SetTimeout(time.Second * 20)
	client.SetHeader("User-Agent", browserUA)
	client.SetHeader("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	telemetry.InstrumentResty(client, "lib/media/http")

	return &Resolver{
		Dir:               dir,
		Referer:           "https://weibo.com/",
		MinGoodImageBytes: 8000,
		MinDownloadBytes:  1500,
		http:              client,
		cache:             map[string]string{},
	}
}

// IsGoodLocalImage accepts a local file only if it exists, carries a
// raster image extension and is larger than the placeholder threshold.
func (r *Resolver) IsGoodLocalImage(path string) bool {
	if path == "" {
		return false
	}
	if !goodImageExts[strings.ToLower(filepath.Ext(path))] {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Size() > r.MinGoodImageBytes
}

func (r *Resolver) PublicPath(path string) string {
	return PublicPrefix + filepath.Base(path)
}

// EnsureLocal copies an archived file into the public media directory
// (keeping its name) and returns its public path, or "" when the source
// is unusable.
func (r *Resolver) EnsureLocal(path string) string {
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	if err := os.MkdirAll(r.Dir, 0755); err != nil {
		return ""
	}
	dst := filepath.Join(r.Dir, filepath.Base(path))
	if _, err := os.Stat(dst); os.IsNotExist(err) {
		if err := copyFile(path, dst); err != nil {
			return ""
		}
	}
	return r.PublicPath(path)
}

// ResolveExisting maps a reference to an already-present local file:
// a public path back into Dir, a literal filesystem path, or a file in
// Dir sharing the URL's basename.
func (r *Resolver) ResolveExisting(ref string) string {
	src := strings.TrimSpace(ref)
	if src == "" {
		return ""
	}

	if strings.HasPrefix(src, PublicPrefix) {
		p := filepath.Join(r.Dir, filepath.Base(src))
		if fileExists(p) {
			return p
		}
		return ""
	}

	if fileExists(src) {
		return src
	}

	normalized := NormalizeURL(src)
	if !strings.HasPrefix(normalized, "http") {
		return ""
	}
	parsed, err := url.Parse(normalized)
	if err != nil {
		return ""
	}
	basename := filepath.Base(parsed.Path)
	if basename == "" || basename == "." || basename == "/" {
		return ""
	}
	candidate := filepath.Join(r.Dir, basename)
	if fileExists(candidate) {
		return candidate
	}
	return ""
}

// Download fetches a remote image into Dir under a content-hash name.
// The https form is tried first, then the sibling http URL. Payloads
// that do not sniff as images, or are smaller than the floor, are
// discarded.
func (r *Resolver) Download(ctx context.Context, rawURL string) (string, error) {
	ctx, span := tracer.Start(ctx, "Download")
	defer span.End()
	span.SetAttributes(attribute.String("url", rawURL))

	normalized := NormalizeURL(rawURL)
	if normalized == "" {
		return "", fmt.Errorf("empty url")
	}
	if err := os.MkdirAll(r.Dir, 0755); err != nil {
		return "", err
	}

	key := cacheKey(normalized)

	candidates := []string{normalized}
	if strings.HasPrefix(normalized, "https://") {
		candidates = append(candidates, "http://"+strings.TrimPrefix(normalized, "https://"))
	}

	var lastErr error = fmt.Errorf("no usable payload for %s", normalized)
	for _, candidate := range candidates {
		res, err := r.http.R().
			SetContext(ctx).
			SetHeader("Referer", r.Referer).
			Get(candidate)
		if err != nil {
			lastErr = err
			continue
		}
		if res.IsError() {
			lastErr = fmt.Errorf("http %d for %s", res.StatusCode(), candidate)
			continue
		}

		payload := res.Body()
		if !LooksLikeImage(payload) {
			lastErr = fmt.Errorf("payload does not look like an image: %s", candidate)
			continue
		}

		ext := InferExt(candidate, res.Header().Get("Content-Type"))
		out := filepath.Join(r.Dir, fmt.Sprintf("remote_%s%s", key, ext))
		if err := os.WriteFile(out, payload, 0644); err != nil {
			lastErr = err
			continue
		}
		if r.IsGoodLocalImage(out) || int64(len(payload)) > r.MinDownloadBytes {
			return out, nil
		}
		os.Remove(out)
		lastErr = fmt.Errorf("payload too small: %d bytes from %s", len(payload), candidate)
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "download failed")
	return "", lastErr
}

// MaterializeSlot resolves one media reference into the public file for
// a slot. It returns the public path on success; on failure it returns
// the normalized URL both as the usable reference and as the unresolved
// entry for the manifest. A normalized URL is downloaded at most once
// per resolver lifetime.
func (r *Resolver) MaterializeSlot(ctx context.Context, sourceURL, slot string, allowDownload bool) (publicPath string, unresolved string) {
	normalized := NormalizeURL(sourceURL)
	if normalized == "" {
		return "", ""
	}

	srcPath := r.ResolveExisting(normalized)
	if srcPath == "" && strings.HasPrefix(normalized, "http") {
		if cached, ok := r.cache[normalized]; ok && fileExists(cached) {
			srcPath = cached
		} else if allowDownload {
			downloaded, err := r.Download(ctx, normalized)
			if err != nil {
				slog.DebugContext(ctx, "image download failed", "url", normalized, "err", err)
			} else {
				r.cache[normalized] = downloaded
				srcPath = downloaded
			}
		}
	}

	if srcPath == "" {
		return normalized, normalized
	}

	if err := os.MkdirAll(r.Dir, 0755); err != nil {
		return normalized, normalized
	}
	ext := strings.ToLower(filepath.Ext(srcPath))
	if !imageExts[ext] {
		ext = ".jpg"
	}
	dst := filepath.Join(r.Dir, textutil.SafeName(slot)+ext)
	if !samePath(srcPath, dst) {
		if err := copyFile(srcPath, dst); err != nil {
			return normalized, normalized
		}
	}
	return r.PublicPath(dst), ""
}

// LocalCandidates globs Dir for pre-existing good images, smallest
// lexical name first.
func (r *Resolver) LocalCandidates(pattern string) []string {
	matches, err := filepath.Glob(filepath.Join(r.Dir, pattern))
	if err != nil {
		return nil
	}
	var out []string
	for _, m := range matches {
		if r.IsGoodLocalImage(m) {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

func cacheKey(normalized string) string {
	sum := sha1.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])[:12]
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}
