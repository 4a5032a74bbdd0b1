// Package urlutil provides URL manipulation utilities that preserve original encoding.
package urlutil

import (
	"net/url"
	"strings"
)

// ResolveURL resolves a potentially relative URL against a base URL.
// Uses string manipulation to preserve original URL encoding.
// Go's url.ResolveReference re-encodes special characters which breaks
// URLs for CDNs that use parentheses, brackets, or other special chars.
func ResolveURL(urlStr string, baseURL string) string {
	if strings.HasPrefix(urlStr, "http://") || strings.HasPrefix(urlStr, "https://") {
		return urlStr
	}

	// Base directory: strip query string and last path segment
	base := baseURL
	if idx := strings.Index(base, "?"); idx > 0 {
		base = base[:idx]
	}
	if lastSlash := strings.LastIndex(base, "/"); lastSlash > 0 {
		base = base[:lastSlash+1]
	}

	if strings.HasPrefix(urlStr, "/") {
		parsed, err := url.Parse(baseURL)
		if err != nil {
			return base + urlStr
		}
		return parsed.Scheme + "://" + parsed.Host + urlStr
	}

	if strings.HasPrefix(urlStr, "../") {
		result := base
		remaining := urlStr
		for strings.HasPrefix(remaining, "../") {
			remaining = remaining[3:]
			result = strings.TrimSuffix(result, "/")
			if lastSlash := strings.LastIndex(result, "/"); lastSlash > 0 {
				result = result[:lastSlash+1]
			}
		}
		return result + remaining
	}

	return base + urlStr
}

// GetBaseDirectory returns the directory portion of a URL (without the filename).
// Preserves original encoding.
func GetBaseDirectory(urlStr string) string {
	if idx := strings.Index(urlStr, "?"); idx > 0 {
		urlStr = urlStr[:idx]
	}
	if lastSlash := strings.LastIndex(urlStr, "/"); lastSlash > 0 {
		return urlStr[:lastSlash+1]
	}
	return urlStr
}

// ProxyPath builds a local proxy route for the given upstream URL,
// e.g. ProxyPath("/proxy", target) -> "/proxy?url=<escaped target>".
func ProxyPath(route, target string) string {
	return route + "?url=" + url.QueryEscape(target)
}

// InnerURL reverses ProxyPath: given "/proxy?url=..." or "/subtitles?url=..."
// it returns the decoded upstream URL, or the input unchanged when it does
// not carry a url parameter.
func InnerURL(routed string) string {
	idx := strings.Index(routed, "?url=")
	if idx == -1 {
		return routed
	}
	inner, err := url.QueryUnescape(routed[idx+len("?url="):])
	if err != nil {
		return routed
	}
	// Drop any trailing query params that belonged to the proxy route itself
	if amp := strings.Index(inner, "&wait="); amp != -1 {
		inner = inner[:amp]
	}
	return inner
}
