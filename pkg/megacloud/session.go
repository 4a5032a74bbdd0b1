// Package megacloud negotiates sessions against the video delivery host:
// it bootstraps an embed session, recovers the client signing key and
// cookies, calls the signed getSources endpoint with bounded retries, and
// decrypts the returned payload.
package megacloud

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"anistream-proxy-go/pkg/logging"

	"github.com/pkg/errors"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// Doer abstracts HTTP execution so the negotiator can be tested against
// httptest servers.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Negotiator drives the embed-session protocol for one delivery host.
type Negotiator struct {
	client      Doer
	log         *logging.Logger
	embedBase   string
	catalogBase string

	// Retry knobs, overridable in tests.
	maxAttempts int
	backoffUnit time.Duration
}

// NewNegotiator creates a negotiator for the given embed and catalog hosts.
func NewNegotiator(client Doer, log *logging.Logger, embedBase, catalogBase string) *Negotiator {
	return &Negotiator{
		client:      client,
		log:         log.WithComponent("megacloud"),
		embedBase:   embedBase,
		catalogBase: catalogBase,
		maxAttempts: 4,
		backoffUnit: 1200 * time.Millisecond,
	}
}

// EmbedURL returns the embed document URL for a source id.
func (n *Negotiator) EmbedURL(sourceID string) string {
	return n.embedBase + "/embed-2/v3/e-1/" + sourceID + "?k=1"
}

// FetchSession fetches the embed document, captures session cookies and
// extracts the client signing key, falling back to the referenced player
// script when the page itself carries no key. A session without a client
// key is returned as ErrKeyExtraction.
func (n *Negotiator) FetchSession(ctx context.Context, sourceID string) (*EmbedSession, error) {
	embedURL := n.EmbedURL(sourceID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, embedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", n.catalogBase+"/")
	req.Header.Set("Sec-Fetch-Dest", "iframe")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "embed fetch failed")
	}
	defer resp.Body.Close()

	jar := ParseSetCookies(resp.Header.Values("Set-Cookie"))
	n.log.Debug("embed fetched", "url", embedURL, "status", resp.StatusCode, "cookies", len(jar))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	html := string(body)

	session := &EmbedSession{SourceID: sourceID, Cookies: jar}
	session.ClientKey = ExtractKey(html)

	if session.ClientKey == "" {
		if scriptURL := ExtractScriptURL(html, n.embedBase); scriptURL != "" {
			session.ClientKey = n.keyFromScript(ctx, scriptURL, embedURL)
		}
	}

	if session.ClientKey == "" {
		return nil, ErrKeyExtraction
	}
	return session, nil
}

// keyFromScript fetches the player script with the embed page as referer
// and runs key extraction against its body. Best effort.
func (n *Negotiator) keyFromScript(ctx context.Context, scriptURL, embedURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scriptURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Referer", embedURL)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Debug("script fallback fetch failed", "url", scriptURL, "error", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}
	return ExtractKey(string(body))
}

// GetSources performs the full negotiation: embed session, signed
// getSources call, and retry-on-block. A 403 triggers a fresh negotiation
// after attempt×backoff, up to the attempt budget; the last failure is
// surfaced. Any other non-200 status is terminal.
func (n *Negotiator) GetSources(ctx context.Context, sourceID string) (*SourcePayload, string, error) {
	for attempt := 1; ; attempt++ {
		n.log.Debug("session attempt", "source_id", sourceID, "attempt", attempt)

		session, err := n.FetchSession(ctx, sourceID)
		if err != nil {
			return nil, "", err
		}

		payload, status, err := n.callGetSources(ctx, session)
		if err != nil {
			return nil, "", err
		}

		if status == http.StatusForbidden && attempt < n.maxAttempts {
			delay := time.Duration(attempt) * n.backoffUnit
			n.log.Warn("blocked by embed host, retrying", "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, "", ctx.Err()
			}
			continue
		}

		if status != http.StatusOK {
			return nil, "", &UpstreamStatusError{URL: n.EmbedURL(sourceID), StatusCode: status}
		}

		return payload, session.ClientKey, nil
	}
}

// callGetSources issues the signed getSources request for an established
// session. Non-200 responses are reported through the status return so the
// caller can decide between retry and terminal failure.
func (n *Negotiator) callGetSources(ctx context.Context, session *EmbedSession) (*SourcePayload, int, error) {
	sourcesURL := n.embedBase + "/embed-2/v3/e-1/getSources?id=" + session.SourceID + "&_k=" + session.ClientKey

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourcesURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", n.EmbedURL(session.SourceID))
	req.Header.Set("Origin", n.embedBase)
	req.Header.Set("Sec-Fetch-Dest", "empty")
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	if cookie := CookieHeader(session.Cookies); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, 0, errors.Wrap(err, "getSources request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}

	var payload SourcePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, 0, errors.Wrap(err, "invalid getSources response")
	}
	return &payload, resp.StatusCode, nil
}
