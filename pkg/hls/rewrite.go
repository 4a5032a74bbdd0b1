// Package hls rewrites HLS playlists so every referenced resource routes
// through the local proxy, and flattens playlists into segment lists for
// client-side seeking.
package hls

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"anistream-proxy-go/pkg/logging"
	"anistream-proxy-go/pkg/types"
	"anistream-proxy-go/pkg/urlutil"

	"github.com/pkg/errors"
)

// ErrNoSegments means a playlist yielded no segment lines, which signals
// an empty or unparseable manifest.
var ErrNoSegments = errors.New("no segments found in playlist")

// variantPattern matches the first non-comment line referencing a nested
// variant playlist.
var variantPattern = regexp.MustCompile(`(?m)^[^#\s].*\.m3u8.*$`)

// Rewrite routes every non-comment line of a manifest through the proxy.
// Comment and directive lines pass through verbatim, relative URLs are
// resolved against the manifest's own URL first.
func Rewrite(manifest []byte, manifestURL, proxyRoute string) []byte {
	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(manifest))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			out.WriteString(line + "\n")
			continue
		}

		abs := urlutil.ResolveURL(trimmed, manifestURL)
		out.WriteString(urlutil.ProxyPath(proxyRoute, abs) + "\n")
	}

	return out.Bytes()
}

// Extractor flattens playlists into ordered segment descriptors.
type Extractor struct {
	client  Doer
	log     *logging.Logger
	headers map[string]string
}

// Doer abstracts HTTP execution for playlist fetches.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewExtractor creates an extractor that fetches nested playlists with the
// given request headers (spoofed player headers).
func NewExtractor(client Doer, log *logging.Logger, headers map[string]string) *Extractor {
	return &Extractor{
		client:  client,
		log:     log.WithComponent("hls"),
		headers: headers,
	}
}

// Extract fetches the playlist at playlistURL and returns its segments as
// proxy-routed URLs paired 1:1 with durations. When the body references a
// nested variant playlist, that variant becomes the authoritative segment
// list.
func (e *Extractor) Extract(ctx context.Context, playlistURL, proxyRoute string) (*types.SegmentList, error) {
	body, err := e.fetch(ctx, playlistURL)
	if err != nil {
		return nil, err
	}

	text := string(body)
	base := playlistURL

	if variant := variantPattern.FindString(text); variant != "" {
		variantURL := urlutil.ResolveURL(strings.TrimSpace(variant), playlistURL)
		e.log.Debug("following variant playlist", "url", variantURL)

		if variantBody, err := e.fetch(ctx, variantURL); err == nil {
			text = string(variantBody)
			base = variantURL
		} else {
			e.log.Warn("variant fetch failed, using top-level playlist", "url", variantURL, "error", err)
		}
	}

	return ParseSegments(text, base, proxyRoute)
}

// ParseSegments walks a media playlist pairing each #EXTINF annotation with
// the following segment line. Unannotated segments get a nil duration.
func ParseSegments(playlist, baseURL, proxyRoute string) (*types.SegmentList, error) {
	list := &types.SegmentList{}
	var pending *float64
	var target float64

	for _, rawLine := range strings.Split(playlist, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#EXT-X-TARGETDURATION:") {
			if v, err := strconv.ParseFloat(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"), 64); err == nil {
				target = v
			}
			continue
		}

		if strings.HasPrefix(line, "#EXTINF:") {
			durStr := strings.SplitN(strings.TrimPrefix(line, "#EXTINF:"), ",", 2)[0]
			if v, err := strconv.ParseFloat(durStr, 64); err == nil && v > 0 {
				d := v
				pending = &d
			} else {
				pending = nil
			}
			continue
		}

		if strings.HasPrefix(line, "#") {
			continue
		}

		abs := urlutil.ResolveURL(line, baseURL)
		list.Segments = append(list.Segments, urlutil.ProxyPath(proxyRoute, abs))
		list.Durations = append(list.Durations, pending)
		pending = nil
	}

	if len(list.Segments) == 0 {
		return nil, ErrNoSegments
	}

	list.Total = len(list.Segments)
	if target > 0 {
		list.TargetDuration = &target
	}
	return list, nil
}

func (e *Extractor) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for key, value := range e.headers {
		req.Header.Set(key, value)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "playlist fetch failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("playlist fetch failed: %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
