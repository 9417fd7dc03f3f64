package cookieutil

import (
	"os"
	"strings"
)

// cookie names that show up as bare "Name<value>" lines when the cookie
// notes were exported without an "=" separator
var knownKeys = []string{
	"_s_tentry",
	"ALF",
	"Apache",
	"SCF",
	"SINAGLOBAL",
	"SUB",
	"SUBP",
	"ULV",
	"UOR",
	"WBPSESSI",
	"XSRF-TOKEN",
	"SSOLoginState",
}

// ReadCookieFile assembles a Cookie header value from a notes file.
// The file may contain either a raw "k=v; k2=v2" header on one line, or
// one cookie per line in "k=v" or "Name<value>" form. Blank lines and
// `#` comments are skipped.
func ReadCookieFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return Parse(string(raw)), nil
}

func Parse(raw string) string {
	var lines []string
	for _, ln := range strings.Split(raw, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" || strings.HasPrefix(ln, "#") {
			continue
		}
		lines = append(lines, ln)
	}
	if len(lines) == 0 {
		return ""
	}
	if len(lines) == 1 && strings.Contains(lines[0], "=") && strings.Contains(lines[0], ";") {
		return lines[0]
	}

	var pairs []string
	for _, ln := range lines {
		if strings.Contains(ln, "=") {
			pairs = append(pairs, ln)
			continue
		}
		for _, k := range knownKeys {
			if strings.HasPrefix(ln, k) {
				pairs = append(pairs, k+"="+ln[len(k):])
				break
			}
		}
	}
	return strings.Join(pairs, "; ")
}
