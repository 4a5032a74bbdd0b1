package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"anistream-proxy-go/pkg/hianime"
	"anistream-proxy-go/pkg/hls"
	"anistream-proxy-go/pkg/logging"
	"anistream-proxy-go/pkg/megacloud"
	"anistream-proxy-go/pkg/subdl"
	"anistream-proxy-go/pkg/translate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logging.Logger {
	return logging.New("error", false, io.Discard)
}

type upperTranslator struct{}

func (upperTranslator) Translate(_ context.Context, text, _ string) (string, error) {
	parts := strings.Split(text, "||||")
	for i := range parts {
		parts[i] = strings.ToUpper(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, " |||| "), nil
}

// upstreamHarness serves every collaborator an episode resolution touches:
// catalog ajax endpoints, the embed host, the key document, subtitles, and
// the HLS playlist.
func upstreamHarness(t *testing.T) *httptest.Server {
	t.Helper()

	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ajax/v2/episode/servers":
			json.NewEncoder(w).Encode(map[string]string{
				"html": `<div class="server-item" data-type="sub" data-id="srv-1"></div>`,
			})
		case "/ajax/v2/episode/sources":
			json.NewEncoder(w).Encode(map[string]string{
				"link": srvURL + "/embed-2/v3/e-1/mc42?k=1",
			})
		case "/keys.json":
			fmt.Fprint(w, `{"mega":"communityDecryptKey0001"}`)
		case "/embed-2/v3/e-1/mc42":
			fmt.Fprint(w, `<script>window.cfg={"_k":"HarnessClientKey12345678"};</script>`)
		case "/embed-2/v3/e-1/getSources":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"encrypted": false,
				"sources":   []map[string]string{{"file": srvURL + "/stream/master.m3u8"}},
				"tracks": []map[string]string{
					{"kind": "captions", "label": "English", "file": srvURL + "/subs/en.vtt"},
					{"kind": "thumbnails", "label": "thumbs", "file": srvURL + "/thumbs.vtt"},
				},
				"intro": map[string]float64{"start": 10, "end": 95},
			})
		case "/subs/en.vtt":
			fmt.Fprint(w, "WEBVTT\n\n00:00:01.000 --> 00:00:02.000\nhello\n")
		case "/stream/master.m3u8":
			fmt.Fprint(w, "#EXTM3U\n#EXT-X-TARGETDURATION:4\n#EXTINF:4.0,\nchunk0.ts\n#EXTINF:3.5,\nchunk1.ts\n")
		default:
			http.NotFound(w, r)
		}
	}))
	srvURL = srv.URL
	return srv
}

func newTestResolver(srv *httptest.Server) (*Resolver, *translate.Cache) {
	log := testLogger()
	client := srv.Client()

	catalog := hianime.NewClient(client, log, srv.URL)
	negotiator := megacloud.NewNegotiator(client, log, srv.URL, srv.URL)
	subdlClient := subdl.NewClient(client, log, srv.URL+"/subdl", srv.URL, "test-key")
	pipeline := translate.NewService(upperTranslator{}, log)
	cache := translate.NewCache(time.Minute, time.Second)
	segments := hls.NewExtractor(client, log, nil)

	r := NewResolver(catalog, negotiator, subdlClient, pipeline, cache, segments, client, log, srv.URL+"/keys.json", srv.URL)
	return r, cache
}

func TestSourcesExposesNoUpstreamURLs(t *testing.T) {
	srv := upstreamHarness(t)
	defer srv.Close()

	r, _ := newTestResolver(srv)
	resolved, err := r.Sources(context.Background(), "ep-9", "sub", "Demon Hunter", 1)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(resolved.Source, "/proxy?url="), "source = %q", resolved.Source)
	for _, track := range resolved.Tracks {
		ok := strings.HasPrefix(track.File, "/proxy?url=") ||
			strings.HasPrefix(track.File, "/subtitles?url=") ||
			strings.HasPrefix(track.File, "/translated-arabic?key=")
		assert.True(t, ok, "track %q leaks an unproxied URL: %q", track.Label, track.File)
	}

	// The raw upstream origin must never appear unencoded anywhere in the
	// response.
	blob, err := json.Marshal(resolved)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), srv.URL)

	require.NotNil(t, resolved.Intro)
	assert.Equal(t, 10.0, resolved.Intro.Start)
	assert.Nil(t, resolved.Outro)
}

func TestSourcesFiltersAndSupplementsTracks(t *testing.T) {
	srv := upstreamHarness(t)
	defer srv.Close()

	r, cache := newTestResolver(srv)
	resolved, err := r.Sources(context.Background(), "ep-9", "sub", "Demon Hunter", 1)
	require.NoError(t, err)

	labels := make([]string, 0, len(resolved.Tracks))
	for _, track := range resolved.Tracks {
		labels = append(labels, track.Label)
	}

	assert.Contains(t, labels, "English")
	assert.NotContains(t, labels, "thumbs", "non-caption tracks are dropped")
	assert.Contains(t, labels, "Arabic [Auto - Loading]", "missing Arabic gets a loading placeholder")

	// The placeholder points the player at the waiting endpoint.
	for _, track := range resolved.Tracks {
		if track.Label == "Arabic [Auto - Loading]" {
			assert.Contains(t, track.File, "wait=1")
			assert.Contains(t, track.File, "ep-9%3Asub")
		}
	}

	// Background generation lands in the cache.
	vtt, err := cache.Wait(context.Background(), "ep-9:sub")
	require.NoError(t, err, "background translation should complete")
	assert.Contains(t, vtt, "HELLO")
}

func TestSourcesServesCachedArabic(t *testing.T) {
	srv := upstreamHarness(t)
	defer srv.Close()

	r, cache := newTestResolver(srv)
	cache.Put("ep-9:sub", "WEBVTT\n\ncached")

	resolved, err := r.Sources(context.Background(), "ep-9", "sub", "Demon Hunter", 1)
	require.NoError(t, err)

	var found bool
	for _, track := range resolved.Tracks {
		if track.Label == "Arabic [Auto]" {
			found = true
			assert.NotContains(t, track.File, "wait=1", "cached translations need no waiting")
		}
	}
	assert.True(t, found, "cached translation should surface as a ready track")
}

func TestSegments(t *testing.T) {
	srv := upstreamHarness(t)
	defer srv.Close()

	r, _ := newTestResolver(srv)
	list, err := r.Segments(context.Background(), "ep-9", "sub")
	require.NoError(t, err)

	require.Equal(t, 2, list.Total)
	for _, seg := range list.Segments {
		assert.True(t, strings.HasPrefix(seg, "/proxy?url="), "segment %q not proxied", seg)
	}
	require.NotNil(t, list.Durations[0])
	assert.Equal(t, 4.0, *list.Durations[0])
}

func TestSourcesCategoryNotFound(t *testing.T) {
	srv := upstreamHarness(t)
	defer srv.Close()

	r, _ := newTestResolver(srv)
	_, err := r.Sources(context.Background(), "ep-9", "dub", "Demon Hunter", 1)
	assert.ErrorIs(t, err, hianime.ErrServerNotFound)
}

func TestEmbedSourceID(t *testing.T) {
	tests := []struct {
		link string
		want string
	}{
		{"https://megacloud.example/embed-2/v3/e-1/mc42?k=1", "mc42"},
		{"https://megacloud.example/embed-2/v3/e-1/mc42", "mc42"},
		{"mc42", "mc42"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, embedSourceID(tt.link), "link %q", tt.link)
	}
}

func TestEpisodeNumber(t *testing.T) {
	assert.Equal(t, 4, EpisodeNumber("4"))
	assert.Equal(t, 1, EpisodeNumber(""))
	assert.Equal(t, 1, EpisodeNumber("abc"))
	assert.Equal(t, 1, EpisodeNumber("0"))
}
