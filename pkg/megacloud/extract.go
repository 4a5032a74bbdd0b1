package megacloud

import (
	"regexp"
	"sort"
	"strings"
)

// Key extraction rules, evaluated in priority order against embed page and
// script bodies. First match wins. The long-quoted-string rule is a last
// resort for builds that inline the key without naming it.
var keyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`['"_]k['"]\s*[:=]\s*['"]([A-Za-z0-9_-]{20,})['"]`),
	regexp.MustCompile(`clientKey\s*[:=]\s*['"]([A-Za-z0-9_-]{20,})['"]`),
	regexp.MustCompile(`\?_k=([A-Za-z0-9_-]{20,})`),
	regexp.MustCompile(`key\s*[:=]\s*['"]([A-Za-z0-9_-]{20,})['"]`),
	regexp.MustCompile(`"([A-Za-z0-9_-]{32,})"`),
}

// scriptSrcPattern locates the player bundle referenced by the embed page,
// used as a fallback key source when the page itself carries no key.
var scriptSrcPattern = regexp.MustCompile(`<script[^>]+src=['"]([^'"]+/main[^'"]*\.js[^'"]*)['"][^>]*>`)

// ExtractKey scans text for a client signing key using the ordered
// pattern rules. Returns "" when nothing matches.
func ExtractKey(text string) string {
	for _, p := range keyPatterns {
		if m := p.FindStringSubmatch(text); len(m) > 1 && m[1] != "" {
			return m[1]
		}
	}
	return ""
}

// ExtractScriptURL finds the player script asset referenced by the embed
// page, resolved against the embed host when relative.
func ExtractScriptURL(html, embedBase string) string {
	m := scriptSrcPattern.FindStringSubmatch(html)
	if len(m) < 2 {
		return ""
	}
	src := m[1]
	if strings.HasPrefix(src, "http") {
		return src
	}
	return embedBase + src
}

// ParseSetCookies builds a name→value jar from raw Set-Cookie header lines,
// ignoring attributes after the first semicolon.
func ParseSetCookies(lines []string) map[string]string {
	jar := make(map[string]string)
	for _, line := range lines {
		part := strings.TrimSpace(strings.SplitN(line, ";", 2)[0])
		eq := strings.Index(part, "=")
		if eq <= 0 {
			continue
		}
		name := strings.TrimSpace(part[:eq])
		val := strings.TrimSpace(part[eq+1:])
		if name != "" {
			jar[name] = val
		}
	}
	return jar
}

// CookieHeader serializes a jar into a Cookie header value. Names are
// sorted so the output is stable.
func CookieHeader(jar map[string]string) string {
	if len(jar) == 0 {
		return ""
	}
	names := make([]string, 0, len(jar))
	for name := range jar {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+jar[name])
	}
	return strings.Join(pairs, "; ")
}
