// Package translate machine-translates subtitle documents cue by cue,
// batching requests against a public translation endpoint and caching
// finished documents for polling consumers.
package translate

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"anistream-proxy-go/pkg/logging"

	"github.com/pkg/errors"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// Doer abstracts HTTP execution.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Translator turns text into a target language. Implemented by
// GoogleClient and by test fakes.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// GoogleClient calls the unauthenticated gtx translation endpoint. The
// response is a nested JSON array whose first element lists translated
// segments; segments are concatenated in order.
type GoogleClient struct {
	client Doer
	log    *logging.Logger
	apiURL string
}

// NewGoogleClient creates a translation client against the given endpoint.
func NewGoogleClient(client Doer, log *logging.Logger, apiURL string) *GoogleClient {
	return &GoogleClient{
		client: client,
		log:    log.WithComponent("translate"),
		apiURL: apiURL,
	}
}

// Translate sends one text blob for translation and reassembles the
// segmented response.
func (g *GoogleClient) Translate(ctx context.Context, text, targetLang string) (string, error) {
	params := url.Values{}
	params.Set("client", "gtx")
	params.Set("sl", "auto")
	params.Set("tl", targetLang)
	params.Set("dt", "t")
	params.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept", "*/*")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "translation request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("translation endpoint returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return parseSegments(body)
}

// parseSegments joins the translated segment texts from the gtx response
// shape [[["translated","original",...],...],...].
func parseSegments(body []byte) (string, error) {
	var root []json.RawMessage
	if err := json.Unmarshal(body, &root); err != nil || len(root) == 0 {
		return "", errors.New("failed to parse translation response")
	}

	var segments [][]json.RawMessage
	if err := json.Unmarshal(root[0], &segments); err != nil {
		return "", errors.New("failed to parse translation segments")
	}

	var sb strings.Builder
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		var part string
		if err := json.Unmarshal(seg[0], &part); err != nil {
			continue
		}
		sb.WriteString(part)
	}

	return sb.String(), nil
}
