package services

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"anistream-proxy-go/pkg/hianime"
	"anistream-proxy-go/pkg/hls"
	"anistream-proxy-go/pkg/logging"
	"anistream-proxy-go/pkg/megacloud"
	"anistream-proxy-go/pkg/subdl"
	"anistream-proxy-go/pkg/subtitle"
	"anistream-proxy-go/pkg/translate"
	"anistream-proxy-go/pkg/types"
	"anistream-proxy-go/pkg/urlutil"

	"github.com/pkg/errors"
)

// translationBudget bounds a detached background translation run.
const translationBudget = 10 * time.Minute

// Resolver turns an episode id into playable, fully proxied sources. It
// chains the catalog, the embed-session negotiation, payload decryption,
// and the subtitle pipeline.
type Resolver struct {
	catalog    *hianime.Client
	negotiator *megacloud.Negotiator
	subdl      *subdl.Client
	translator *translate.Service
	cache      *translate.Cache
	segments   *hls.Extractor
	client     Doer
	log        *logging.Logger

	keysURL   string
	embedBase string
}

// NewResolver wires the resolver's collaborators together.
func NewResolver(
	catalog *hianime.Client,
	negotiator *megacloud.Negotiator,
	subdlClient *subdl.Client,
	translator *translate.Service,
	cache *translate.Cache,
	segments *hls.Extractor,
	client Doer,
	log *logging.Logger,
	keysURL, embedBase string,
) *Resolver {
	return &Resolver{
		catalog:    catalog,
		negotiator: negotiator,
		subdl:      subdlClient,
		translator: translator,
		cache:      cache,
		segments:   segments,
		client:     client,
		log:        log.WithComponent("resolver"),
		keysURL:    keysURL,
		embedBase:  strings.TrimSuffix(embedBase, "/"),
	}
}

// resolveStream runs the full negotiation chain for an episode and
// returns the decrypted payload plus the raw upstream source URL.
func (r *Resolver) resolveStream(ctx context.Context, episodeID, category string) (*megacloud.SourcePayload, string, error) {
	log := r.log.WithEpisode(episodeID, category)

	sourceID, err := r.catalog.ServerID(ctx, episodeID, category)
	if err != nil {
		return nil, "", err
	}

	embedLink, err := r.catalog.EmbedLink(ctx, sourceID)
	if err != nil {
		return nil, "", err
	}

	mcID := embedSourceID(embedLink)
	if mcID == "" {
		return nil, "", errors.New("embed link carries no source id")
	}
	log.Debug("embed resolved", "source_id", mcID)

	decryptKey, err := megacloud.FetchDecryptKey(ctx, r.client, r.keysURL)
	if err != nil {
		return nil, "", err
	}

	payload, clientKey, err := r.negotiator.GetSources(ctx, mcID)
	if err != nil {
		return nil, "", err
	}

	variants, err := megacloud.Decrypt(payload, clientKey, decryptKey)
	if err != nil {
		return nil, "", err
	}

	sourceURL := megacloud.FirstFile(variants)
	if sourceURL == "" {
		return nil, "", errors.New("no source url after decryption")
	}
	log.Debug("source resolved", "url", sourceURL)

	return payload, sourceURL, nil
}

// Sources resolves an episode to a proxied HLS source plus its subtitle
// tracks. Upstream URLs never appear in the result; every file reference
// routes through a local endpoint. Missing English is supplemented from
// the subtitle catalog, missing Arabic triggers background machine
// translation with a loading placeholder track.
func (r *Resolver) Sources(ctx context.Context, episodeID, category, title string, episodeNum int) (*types.ResolvedSources, error) {
	payload, sourceURL, err := r.resolveStream(ctx, episodeID, category)
	if err != nil {
		return nil, err
	}

	rawTracks := captionTracks(payload.Tracks)
	tracks := make([]types.Track, 0, len(rawTracks)+2)
	for _, t := range rawTracks {
		proxied := t
		if proxied.File != "" {
			proxied.File = urlutil.ProxyPath("/proxy", proxied.File)
		}
		tracks = append(tracks, proxied)
	}

	hasArabic, hasEnglish := trackLanguages(tracks)
	r.log.Debug("track inventory", "tracks", len(tracks), "arabic", hasArabic, "english", hasEnglish)

	if !hasEnglish && title != "" {
		if subURL, err := r.subdl.Search(ctx, title, episodeNum, "EN"); err == nil {
			tracks = append(tracks, types.Track{
				Kind:  "subtitles",
				Label: "English [SubDL]",
				Lang:  "en",
				File:  urlutil.ProxyPath("/subtitles", subURL),
			})
		} else if !errors.Is(err, subdl.ErrNoSubtitles) {
			r.log.Warn("subtitle catalog lookup failed", "title", title, "error", err)
		}
	}

	if !hasArabic {
		tracks = append(tracks, r.arabicTrack(episodeID, category, tracks))
	}

	return &types.ResolvedSources{
		Source: urlutil.ProxyPath("/proxy", sourceURL),
		Tracks: tracks,
		Intro:  payload.Intro,
		Outro:  payload.Outro,
	}, nil
}

// arabicTrack returns the Arabic track entry for a resolution: the cached
// translation when one exists, otherwise a loading placeholder while a
// detached goroutine generates it.
func (r *Resolver) arabicTrack(episodeID, category string, tracks []types.Track) types.Track {
	cacheKey := episodeID + ":" + category

	if _, ok := r.cache.Get(cacheKey); ok {
		return types.Track{
			Kind:  "subtitles",
			Label: "Arabic [Auto]",
			Lang:  "ar",
			File:  "/translated-arabic?key=" + url.QueryEscape(cacheKey),
		}
	}

	englishURL := englishTrackURL(tracks)
	if englishURL == "" {
		r.log.Info("no english track to translate from", "key", cacheKey)
	} else {
		go r.generateArabic(cacheKey, englishURL)
	}

	return types.Track{
		Kind:  "subtitles",
		Label: "Arabic [Auto - Loading]",
		Lang:  "ar",
		File:  "/translated-arabic?key=" + url.QueryEscape(cacheKey) + "&wait=1",
	}
}

// generateArabic fetches the English track, translates it, and caches the
// result. Runs detached from the originating request so a disconnecting
// client does not abort the work; concurrent requests for the same key
// share one run.
func (r *Resolver) generateArabic(cacheKey, englishURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), translationBudget)
	defer cancel()

	_, err := r.cache.Generate(cacheKey, func() (string, error) {
		vtt, err := r.fetchVTT(ctx, englishURL)
		if err != nil {
			return "", err
		}
		return r.translator.TranslateVTT(ctx, vtt, "ar")
	})
	if err != nil {
		r.log.Warn("background translation failed", "key", cacheKey, "error", err)
		return
	}
	r.log.Info("arabic translation cached", "key", cacheKey)
}

// fetchVTT retrieves a subtitle document and normalizes it to WebVTT.
func (r *Resolver) fetchVTT(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept", "*/*")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "subtitle fetch failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("subtitle fetch returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return subtitle.ToVTT(string(body)), nil
}

// Segments resolves an episode and flattens its playlist into proxied
// segment URLs for client-side seeking.
func (r *Resolver) Segments(ctx context.Context, episodeID, category string) (*types.SegmentList, error) {
	_, sourceURL, err := r.resolveStream(ctx, episodeID, category)
	if err != nil {
		return nil, err
	}
	return r.segments.Extract(ctx, sourceURL, "/proxy")
}

// embedSourceID pulls the delivery-host source id out of an embed URL,
// the last path segment with any query stripped.
func embedSourceID(embedLink string) string {
	s := embedLink
	if idx := strings.Index(s, "?"); idx != -1 {
		s = s[:idx]
	}
	if idx := strings.LastIndex(s, "/"); idx != -1 {
		s = s[idx+1:]
	}
	return s
}

// captionTracks keeps only subtitle-bearing tracks from a payload.
func captionTracks(all []types.Track) []types.Track {
	out := make([]types.Track, 0, len(all))
	for _, t := range all {
		if t.Kind == "captions" || t.Kind == "subtitles" {
			out = append(out, t)
		}
	}
	return out
}

// trackLanguages reports whether Arabic and English tracks are present,
// matching on both label and language code.
func trackLanguages(tracks []types.Track) (hasArabic, hasEnglish bool) {
	for _, t := range tracks {
		label := strings.ToLower(t.Label)
		lang := strings.ToLower(t.Lang)
		if strings.Contains(label, "arab") || lang == "ar" {
			hasArabic = true
		}
		if strings.Contains(label, "english") || lang == "en" {
			hasEnglish = true
		}
	}
	return hasArabic, hasEnglish
}

// englishTrackURL picks the upstream URL of the best English candidate,
// undoing proxy routing so the fetch goes straight upstream.
func englishTrackURL(tracks []types.Track) string {
	pick := func(match func(types.Track) bool) string {
		for _, t := range tracks {
			if match(t) && t.File != "" {
				return urlutil.InnerURL(t.File)
			}
		}
		return ""
	}

	if u := pick(func(t types.Track) bool { return strings.Contains(strings.ToLower(t.Label), "english") }); u != "" {
		return u
	}
	if u := pick(func(t types.Track) bool { return strings.ToLower(t.Lang) == "en" }); u != "" {
		return u
	}
	return pick(func(t types.Track) bool { return strings.Contains(strings.ToLower(t.Label), "eng") })
}

// EpisodeNumber parses the epNum query parameter, defaulting to 1.
func EpisodeNumber(raw string) int {
	if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && n > 0 {
		return n
	}
	return 1
}
