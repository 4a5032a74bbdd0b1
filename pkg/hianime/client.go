// Package hianime scrapes the anime catalog site: search results, watch
// pages with episode lists, and the ajax endpoints that map an episode to
// its video delivery embed.
package hianime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"anistream-proxy-go/pkg/logging"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// ErrServerNotFound means the episode has no server of the requested
// category (sub/dub).
var ErrServerNotFound = errors.New("no server found for category")

var nonDigits = regexp.MustCompile(`\D`)

// Doer abstracts HTTP execution.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client scrapes one catalog host.
type Client struct {
	client Doer
	log    *logging.Logger
	base   string
}

// NewClient creates a catalog client for the given base URL.
func NewClient(client Doer, log *logging.Logger, base string) *Client {
	return &Client{
		client: client,
		log:    log.WithComponent("hianime"),
		base:   strings.TrimSuffix(base, "/"),
	}
}

// Search scrapes the search results page for a keyword.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	doc, err := c.fetchDocument(ctx, c.base+"/search?keyword="+url.QueryEscape(query), false)
	if err != nil {
		return nil, errors.Wrap(err, "search failed")
	}

	results := []SearchResult{}
	doc.Find(".flw-item").Each(func(_ int, el *goquery.Selection) {
		name := strings.TrimSpace(el.Find(".film-name a").Text())
		href := el.Find(".film-poster-ahref").AttrOr("href", el.Find(".film-name a").AttrOr("href", ""))
		img := el.Find(".film-poster-img").AttrOr("data-src", el.Find(".film-poster-img").AttrOr("src", ""))

		slug := extractSlug(href)
		if name == "" || slug == "" {
			return
		}
		results = append(results, SearchResult{
			Slug:     slug,
			Name:     name,
			Img:      img,
			Type:     strings.TrimSpace(el.Find(".fdi-item").First().Text()),
			Duration: strings.TrimSpace(el.Find(".fdi-duration").Text()),
			Sub:      digitsOf(el.Find(".tick-sub").Text()),
			Dub:      digitsOf(el.Find(".tick-dub").Text()),
			Rating:   strings.TrimSpace(el.Find(".tick-rate, .tick-pg").First().Text()),
		})
	})

	c.log.Debug("search done", "query", query, "results", len(results))
	return results, nil
}

// Detail scrapes the watch page for a series and resolves its episode
// list through the ajax episode endpoint. Episodes come back sorted by
// number.
func (c *Client) Detail(ctx context.Context, slug string) (*AnimeDetail, error) {
	doc, err := c.fetchDocument(ctx, c.base+"/watch/"+slug, false)
	if err != nil {
		return nil, errors.Wrap(err, "watch page fetch failed")
	}

	detail := scrapeWatchPage(doc)
	detail.Slug = slug
	if detail.ID == "" {
		return nil, errors.New("no anime id on watch page")
	}

	episodes, err := c.episodeList(ctx, detail.ID)
	if err != nil {
		return nil, err
	}
	detail.Episodes = episodes

	return detail, nil
}

// episodeList fetches the ajax episode list fragment for an anime id.
func (c *Client) episodeList(ctx context.Context, animeID string) ([]Episode, error) {
	frag, err := c.fetchFragment(ctx, c.base+"/ajax/v2/episode/list/"+animeID)
	if err != nil {
		return nil, errors.Wrap(err, "episode list fetch failed")
	}

	episodes := []Episode{}
	frag.Find("a.ep-item").Each(func(_ int, el *goquery.Selection) {
		num, _ := strconv.Atoi(el.AttrOr("data-number", ""))
		epID := el.AttrOr("data-id", "")
		if num == 0 || epID == "" {
			return
		}
		title := el.AttrOr("title", "")
		if title == "" {
			title = "Episode " + strconv.Itoa(num)
		}
		episodes = append(episodes, Episode{Num: num, Title: title, EpID: epID})
	})

	sort.Slice(episodes, func(i, j int) bool { return episodes[i].Num < episodes[j].Num })
	return episodes, nil
}

// ServerID resolves the embed source id serving an episode in the given
// category (sub/dub) from the ajax server list.
func (c *Client) ServerID(ctx context.Context, episodeID, category string) (string, error) {
	frag, err := c.fetchFragment(ctx, c.base+"/ajax/v2/episode/servers?episodeId="+url.QueryEscape(episodeID))
	if err != nil {
		return "", errors.Wrap(err, "server list fetch failed")
	}

	var sourceID string
	var available []string
	frag.Find(".server-item").Each(func(_ int, el *goquery.Selection) {
		t := el.AttrOr("data-type", "")
		available = append(available, t)
		if t == category && sourceID == "" {
			sourceID = el.AttrOr("data-id", "")
		}
	})

	if sourceID == "" {
		c.log.Warn("category unavailable", "episode_id", episodeID, "category", category, "available", strings.Join(available, ","))
		return "", ErrServerNotFound
	}
	return sourceID, nil
}

// EmbedLink resolves a server source id to the embed URL on the delivery
// host.
func (c *Client) EmbedLink(ctx context.Context, sourceID string) (string, error) {
	req, err := c.newAjaxRequest(ctx, c.base+"/ajax/v2/episode/sources?id="+url.QueryEscape(sourceID))
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "embed link fetch failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("embed link fetch returned %d", resp.StatusCode)
	}

	var payload struct {
		Link string `json:"link"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", errors.Wrap(err, "invalid embed link response")
	}
	if payload.Link == "" {
		return "", errors.New("no embed link returned")
	}
	return payload.Link, nil
}

// fetchDocument gets a full HTML page as a goquery document.
func (c *Client) fetchDocument(ctx context.Context, pageURL string, ajax bool) (*goquery.Document, error) {
	var req *http.Request
	var err error
	if ajax {
		req, err = c.newAjaxRequest(ctx, pageURL)
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err == nil {
			req.Header.Set("User-Agent", browserUA)
			req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
			req.Header.Set("Accept-Language", "en-US,en;q=0.9")
			req.Header.Set("Referer", c.base+"/")
		}
	}
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("catalog returned %d for %s", resp.StatusCode, pageURL)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

// fetchFragment gets an ajax endpoint returning {"html": "..."} and parses
// the embedded fragment.
func (c *Client) fetchFragment(ctx context.Context, ajaxURL string) (*goquery.Document, error) {
	req, err := c.newAjaxRequest(ctx, ajaxURL)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("catalog returned %d for %s", resp.StatusCode, ajaxURL)
	}

	var payload struct {
		HTML string `json:"html"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.HTML == "" {
		return nil, errors.New("unexpected ajax response shape")
	}
	return goquery.NewDocumentFromReader(strings.NewReader(payload.HTML))
}

func (c *Client) newAjaxRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", c.base+"/")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	return req, nil
}

// extractSlug strips the watch prefix, query and fragment from a catalog
// href.
func extractSlug(href string) string {
	if href == "" {
		return ""
	}
	s := strings.TrimPrefix(href, "/watch/")
	s = strings.TrimPrefix(s, "/")
	if idx := strings.IndexAny(s, "?#"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func digitsOf(s string) string {
	return nonDigits.ReplaceAllString(s, "")
}

// scrapeWatchPage pulls series metadata out of a watch page document.
func scrapeWatchPage(doc *goquery.Document) *AnimeDetail {
	detail := &AnimeDetail{
		ID:          doc.Find("#wrapper").AttrOr("data-id", ""),
		Title:       strings.TrimSpace(doc.Find(".anisc-detail .film-name a").First().Text()),
		Poster:      doc.Find(".anisc-poster .film-poster-img").AttrOr("src", ""),
		Description: strings.TrimSpace(doc.Find(".film-description .text").Text()),
		Rating:      strings.TrimSpace(doc.Find(".tick-pg").First().Text()),
		Quality:     strings.TrimSpace(doc.Find(".tick-quality").First().Text()),
		SubCount:    digitsOf(doc.Find(".anisc-detail .tick-sub").Text()),
		DubCount:    digitsOf(doc.Find(".anisc-detail .tick-dub").Text()),
		TotalEps:    strings.TrimSpace(doc.Find(".anisc-detail .tick-eps").First().Text()),
		AnimeType:   strings.TrimSpace(doc.Find(".film-stats .item").First().Text()),
		Duration:    strings.TrimSpace(doc.Find(".film-stats .item").Last().Text()),
		Studio:      strings.TrimSpace(doc.Find(".film-text .name strong").First().Text()),
		Genres:      []string{},
		Characters:  []Character{},
		Related:     []Related{},
	}

	doc.Find(".item-list a[href*='/genre/']").Each(func(_ int, el *goquery.Selection) {
		if g := strings.TrimSpace(el.Text()); g != "" {
			detail.Genres = append(detail.Genres, g)
		}
	})

	doc.Find(".bac-item").Each(func(_ int, el *goquery.Selection) {
		char := Character{
			CharName: strings.TrimSpace(el.Find(".per-info.ltr .pi-name a").Text()),
			CharRole: strings.TrimSpace(el.Find(".per-info.ltr .pi-cast").Text()),
			CharImg:  el.Find(".per-info.ltr img").AttrOr("data-src", el.Find(".per-info.ltr img").AttrOr("src", "")),
			VAName:   strings.TrimSpace(el.Find(".per-info.rtl .pi-name a").Text()),
			VALang:   strings.TrimSpace(el.Find(".per-info.rtl .pi-cast").Text()),
			VAImg:    el.Find(".per-info.rtl img").AttrOr("data-src", el.Find(".per-info.rtl img").AttrOr("src", "")),
		}
		if char.CharName != "" {
			detail.Characters = append(detail.Characters, char)
		}
	})

	doc.Find(".block_area-realtime").First().Find("li").Each(func(_ int, el *goquery.Selection) {
		name := strings.TrimSpace(el.Find(".film-name a").Text())
		slug := extractSlug(el.Find(".film-name a").AttrOr("href", ""))
		if name == "" || slug == "" {
			return
		}
		detail.Related = append(detail.Related, Related{
			Slug: slug,
			Name: name,
			Img:  el.Find(".film-poster-img").AttrOr("data-src", ""),
			Sub:  digitsOf(el.Find(".tick-sub").Text()),
			Dub:  digitsOf(el.Find(".tick-dub").Text()),
			Type: strings.TrimSpace(el.Find(".tick").Contents().FilterFunction(func(_ int, n *goquery.Selection) bool {
				return goquery.NodeName(n) == "#text" && strings.TrimSpace(n.Text()) != ""
			}).Last().Text()),
		})
	})

	return detail
}
