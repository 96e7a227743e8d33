package crawler

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var invalidFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SafeBasename turns a profile or post URL into a filesystem-safe name.
func SafeBasename(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || (u.Host == "" && u.Path == "") {
		return hashURL(raw)[:16]
	}
	host := invalidFilenameChars.ReplaceAllString(u.Hostname(), "_")
	p := strings.Trim(u.EscapedPath(), "/")
	if p == "" {
		p = "root"
	}
	p = invalidFilenameChars.ReplaceAllString(p, "_")
	if host == "" {
		return fmt.Sprintf("%s_%s", p, hashURL(raw)[:8])
	}
	return fmt.Sprintf("%s_%s_%s", host, p, hashURL(raw)[:8])
}

func hashURL(raw string) string {
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}
