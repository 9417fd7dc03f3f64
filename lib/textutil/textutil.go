package textutil

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

var brRegex = regexp.MustCompile(`(?i)<br\s*/?>`)
var tagRegex = regexp.MustCompile(`<[^>]+>`)
var newlineRunRegex = regexp.MustCompile(`\n{3,}`)

// CleanHTML converts an HTML fragment to plain text while keeping
// line breaks readable.
func CleanHTML(s string) string {
	s = brRegex.ReplaceAllString(s, "\n")
	s = tagRegex.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.TrimSpace(newlineRunRegex.ReplaceAllString(s, "\n\n"))
}

var wanCountRegex = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*万`)
var digitsRegex = regexp.MustCompile(`([0-9]+)`)

// ParseCount parses an engagement counter as rendered on the page.
// Placeholder labels (转发/评论/赞) count as zero, a 万 suffix multiplies
// by ten thousand.
func ParseCount(text string) int {
	t := strings.ReplaceAll(CleanHTML(text), ",", "")
	t = strings.TrimSpace(t)
	if t == "" || t == "转发" || t == "评论" || t == "赞" {
		return 0
	}
	if m := wanCountRegex.FindStringSubmatch(t); m != nil {
		n, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return int(n * 10000)
		}
	}
	if m := digitsRegex.FindStringSubmatch(t); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return n
		}
	}
	return 0
}

var slotCharRegex = regexp.MustCompile(`[^0-9A-Za-z_]+`)
var underscoreRunRegex = regexp.MustCompile(`_+`)

// SafeName sanitizes a media slot name into something that can be used
// as a filename stem.
func SafeName(name string) string {
	cleaned := slotCharRegex.ReplaceAllString(strings.TrimSpace(name), "_")
	cleaned = strings.Trim(underscoreRunRegex.ReplaceAllString(cleaned, "_"), "_")
	if cleaned == "" {
		return "asset"
	}
	return cleaned
}

var fileCharRegex = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SafeFileName sanitizes arbitrary text (author names mostly) for use
// in archived asset filenames.
func SafeFileName(s string, max int) string {
	out := fileCharRegex.ReplaceAllString(s, "_")
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

func TruncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
