// Package redact scrubs credentials and URL paths from strings before they
// reach a log sink.
package redact

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

const mask = "[REDACTED]"

type rule struct {
	re   *regexp.Regexp
	repl string
}

var rules = []rule{
	{regexp.MustCompile(`(?i)(authorization\s*[:=]\s*(?:bearer|basic)\s+)([A-Za-z0-9._\-+/=]+)`), "${1}" + mask},
	{regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9._\-+/=]+)`), "${1}" + mask},
	{regexp.MustCompile(`(?i)(api[_-]?keys?\s*[:=]\s*\[)([^\]]+)(\])`), "${1}REDACTED${3}"},
	{regexp.MustCompile(`(?i)(api[_-]?keys?\s*[:=]\s*)([A-Za-z0-9._\-+/=]+)`), "${1}" + mask},
	{regexp.MustCompile(`(?i)(x-api-key\s*[:=]\s*)([A-Za-z0-9._\-+/=]+)`), "${1}" + mask},
	{regexp.MustCompile(`(?i)((?:password|secret|signing_key)\s*[:=]\s*)(\S+)`), "${1}" + mask},
}

var (
	tokenishRe = regexp.MustCompile(`(?i)(key|token)\s*[:=]\s*([A-Za-z0-9._\-+/=]{6,})`)
	urlRe      = regexp.MustCompile(`https?://[^\s"'<>]+`)
)

// String redacts known secret patterns from free-form strings. URLs keep
// their scheme, host and last path segment; queries are always dropped.
func String(s string) string {
	if s == "" {
		return s
	}

	out := s
	for _, r := range rules {
		out = r.re.ReplaceAllString(out, r.repl)
	}
	out = tokenishRe.ReplaceAllStringFunc(out, func(m string) string {
		if strings.Contains(m, mask) {
			return m
		}
		sub := tokenishRe.FindStringSubmatch(m)
		if len(sub) < 3 {
			return m
		}
		return sub[1] + "=" + mask
	})
	out = urlRe.ReplaceAllStringFunc(out, redactURL)
	for strings.Contains(out, mask+mask) {
		out = strings.ReplaceAll(out, mask+mask, mask)
	}
	return out
}

// Sprintf formats like fmt.Sprintf and redacts the result.
func Sprintf(format string, args ...any) string {
	return String(fmt.Sprintf(format, args...))
}

// URL returns a loggable form of a configured endpoint.
func URL(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	return redactURL(raw)
}

func redactURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "[REDACTED_URL]"
	}

	host := u.Host
	if u.User != nil {
		host = u.Hostname()
		if p := u.Port(); p != "" {
			host += ":" + p
		}
	}
	if u.Path == "" || u.Path == "/" {
		return fmt.Sprintf("%s://%s", u.Scheme, host)
	}
	if strings.HasSuffix(u.Path, "/") {
		return fmt.Sprintf("%s://%s/[REDACTED_PATH]", u.Scheme, host)
	}

	base := path.Base(u.Path)
	dir := path.Dir(u.Path)
	if dir == "/" || dir == "." {
		return fmt.Sprintf("%s://%s/%s", u.Scheme, host, base)
	}
	return fmt.Sprintf("%s://%s/[REDACTED_PATH]/%s", u.Scheme, host, base)
}
