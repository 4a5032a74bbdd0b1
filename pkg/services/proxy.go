// Package services orchestrates the domain collaborators: episode-to-source
// resolution and the media proxy that actually moves bytes to the player.
package services

import (
	"context"
	"io"
	"net/http"
	"strings"

	"anistream-proxy-go/pkg/hls"
	"anistream-proxy-go/pkg/logging"
	"anistream-proxy-go/pkg/subtitle"

	"github.com/pkg/errors"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// Doer abstracts HTTP execution.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// FetchResult is a buffered upstream response ready to relay. Playlists
// are rewritten before they land here, so Body is always safe to hand to
// the player as-is.
type FetchResult struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// MediaProxy relays upstream media through the local origin, spoofing the
// request headers the delivery CDN expects and rewriting playlists so
// nested resources stay proxied.
type MediaProxy struct {
	client    Doer
	log       *logging.Logger
	embedBase string
}

// NewMediaProxy creates a proxy that presents itself as a player embedded
// on embedBase.
func NewMediaProxy(client Doer, log *logging.Logger, embedBase string) *MediaProxy {
	return &MediaProxy{
		client:    client,
		log:       log.WithComponent("proxy"),
		embedBase: strings.TrimSuffix(embedBase, "/"),
	}
}

// Fetch retrieves a media resource. Non-200 upstream statuses pass through
// so the player sees the real failure. Playlists are detected by URL or
// content type and rewritten; transport-stream segments are typed
// video/MP2T regardless of what the CDN claims.
func (p *MediaProxy) Fetch(ctx context.Context, target string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Referer", p.embedBase+"/")
	req.Header.Set("Origin", p.embedBase)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "upstream fetch failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "upstream read failed")
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if resp.StatusCode != http.StatusOK {
		p.log.Warn("upstream returned non-200", "url", target, "status", resp.StatusCode)
		return &FetchResult{StatusCode: resp.StatusCode, ContentType: "text/plain", Body: body}, nil
	}

	if isPlaylist(target, contentType) {
		rewritten := hls.Rewrite(body, target, "/proxy")
		return &FetchResult{
			StatusCode:  http.StatusOK,
			ContentType: "application/vnd.apple.mpegurl",
			Body:        rewritten,
		}, nil
	}

	if isTransportStream(target, contentType) {
		contentType = "video/MP2T"
	}
	return &FetchResult{StatusCode: http.StatusOK, ContentType: contentType, Body: body}, nil
}

// FetchSubtitle retrieves a subtitle file and normalizes it to WebVTT.
func (p *MediaProxy) FetchSubtitle(ctx context.Context, target string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept", "*/*")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "subtitle fetch failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "subtitle read failed")
	}

	if resp.StatusCode != http.StatusOK {
		return &FetchResult{StatusCode: resp.StatusCode, ContentType: "text/plain", Body: body}, nil
	}

	return &FetchResult{
		StatusCode:  http.StatusOK,
		ContentType: "text/vtt; charset=utf-8",
		Body:        []byte(subtitle.ToVTT(string(body))),
	}, nil
}

func isPlaylist(target, contentType string) bool {
	return strings.Contains(target, ".m3u8") || strings.Contains(strings.ToLower(contentType), "mpegurl")
}

func isTransportStream(target, contentType string) bool {
	return strings.Contains(target, ".ts") || strings.Contains(strings.ToLower(contentType), "mp2t")
}
