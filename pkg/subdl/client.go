// Package subdl queries the SubDL subtitle catalog for episode subtitles
// when the video source ships none in the wanted language.
package subdl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"anistream-proxy-go/pkg/logging"

	"github.com/pkg/errors"
)

// ErrNoSubtitles means the catalog returned no usable subtitle for the
// query.
var ErrNoSubtitles = errors.New("no subtitles found")

// Doer abstracts HTTP execution.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the SubDL search API.
type Client struct {
	client       Doer
	log          *logging.Logger
	apiURL       string
	downloadBase string
	apiKey       string
}

type searchResponse struct {
	Status    bool `json:"status"`
	Subtitles []struct {
		URL      string `json:"url"`
		Lang     string `json:"lang"`
		Language string `json:"language"`
	} `json:"subtitles"`
}

// NewClient creates a SubDL client. downloadBase resolves relative
// subtitle URLs from search results.
func NewClient(client Doer, log *logging.Logger, apiURL, downloadBase, apiKey string) *Client {
	return &Client{
		client:       client,
		log:          log.WithComponent("subdl"),
		apiURL:       apiURL,
		downloadBase: strings.TrimSuffix(downloadBase, "/"),
		apiKey:       apiKey,
	}
}

// Search looks up an episode subtitle by series title and episode number,
// returning the download URL of the best candidate. VTT files win over
// SRT, SRT over anything else.
func (c *Client) Search(ctx context.Context, title string, episode int, language string) (string, error) {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("film_name", title)
	params.Set("type", "TV")
	params.Set("episode_number", strconv.Itoa(episode))
	params.Set("season_number", "1")
	params.Set("languages", language)
	params.Set("subs_per_page", "3")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "subdl search failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("subdl search returned %d", resp.StatusCode)
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", errors.Wrap(err, "invalid subdl response")
	}

	if !result.Status || len(result.Subtitles) == 0 {
		return "", ErrNoSubtitles
	}

	candidates := make([]string, 0, len(result.Subtitles))
	for _, sub := range result.Subtitles {
		if sub.URL != "" {
			candidates = append(candidates, c.absolute(sub.URL))
		}
	}
	if len(candidates) == 0 {
		return "", ErrNoSubtitles
	}

	best := pickByExtension(candidates)
	c.log.Debug("subtitle found", "title", title, "episode", episode, "url", best)
	return best, nil
}

// pickByExtension prefers .vtt, then .srt, then the first candidate.
func pickByExtension(urls []string) string {
	for _, ext := range []string{".vtt", ".srt"} {
		for _, u := range urls {
			if strings.HasSuffix(strings.ToLower(stripQuery(u)), ext) {
				return u
			}
		}
	}
	return urls[0]
}

func stripQuery(u string) string {
	if idx := strings.Index(u, "?"); idx != -1 {
		return u[:idx]
	}
	return u
}

func (c *Client) absolute(u string) string {
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return c.downloadBase + u
}
