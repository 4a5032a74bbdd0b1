package hls

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"anistream-proxy-go/pkg/logging"

	"github.com/pkg/errors"
)

func testLogger() *logging.Logger {
	return logging.New("error", false, io.Discard)
}

func TestRewrite(t *testing.T) {
	manifest := strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-VERSION:3",
		"#EXTINF:10.0,",
		"segment1.ts",
		"#EXTINF:10.0,",
		"https://other.example/segment2.ts",
		"",
	}, "\n")

	out := string(Rewrite([]byte(manifest), "https://cdn.example/stream/index.m3u8", "/proxy"))

	if !strings.Contains(out, "#EXT-X-VERSION:3\n") {
		t.Error("directive lines must pass through verbatim")
	}
	if !strings.Contains(out, "/proxy?url=https%3A%2F%2Fcdn.example%2Fstream%2Fsegment1.ts") {
		t.Errorf("relative segment not proxied:\n%s", out)
	}
	if !strings.Contains(out, "/proxy?url=https%3A%2F%2Fother.example%2Fsegment2.ts") {
		t.Errorf("absolute segment not proxied:\n%s", out)
	}
	if strings.Contains(out, "\nsegment1.ts\n") {
		t.Error("raw segment line leaked into output")
	}
}

func TestParseSegments(t *testing.T) {
	playlist := "#EXTM3U\n#EXT-X-TARGETDURATION:10\n#EXTINF:9.009,\nseg1.ts\n"

	list, err := ParseSegments(playlist, "https://cdn.example/hls/index.m3u8", "/proxy")
	if err != nil {
		t.Fatalf("ParseSegments() error: %v", err)
	}

	if list.Total != 1 || len(list.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", list.Total)
	}
	if list.Segments[0] != "/proxy?url=https%3A%2F%2Fcdn.example%2Fhls%2Fseg1.ts" {
		t.Errorf("segment = %q", list.Segments[0])
	}
	if list.Durations[0] == nil || *list.Durations[0] != 9.009 {
		t.Errorf("duration = %v, want 9.009", list.Durations[0])
	}
	if list.TargetDuration == nil || *list.TargetDuration != 10 {
		t.Errorf("targetDuration = %v, want 10", list.TargetDuration)
	}
}

func TestParseSegmentsPairing(t *testing.T) {
	playlist := strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-TARGETDURATION:6",
		"#EXTINF:5.5,",
		"a.ts",
		"#EXT-X-DISCONTINUITY",
		"b.ts", // no EXTINF annotation
		"#EXTINF:4.25,",
		"c.ts",
		"#EXT-X-ENDLIST",
	}, "\n")

	list, err := ParseSegments(playlist, "https://cdn.example/hls/index.m3u8", "/proxy")
	if err != nil {
		t.Fatalf("ParseSegments() error: %v", err)
	}

	if list.Total != 3 {
		t.Fatalf("expected 3 segments, got %d", list.Total)
	}
	if len(list.Durations) != 3 {
		t.Fatalf("durations must align 1:1 with segments, got %d", len(list.Durations))
	}
	if list.Durations[0] == nil || *list.Durations[0] != 5.5 {
		t.Errorf("durations[0] = %v", list.Durations[0])
	}
	if list.Durations[1] != nil {
		t.Errorf("unannotated segment must carry nil duration, got %v", *list.Durations[1])
	}
	if list.Durations[2] == nil || *list.Durations[2] != 4.25 {
		t.Errorf("durations[2] = %v", list.Durations[2])
	}
}

func TestParseSegmentsEmpty(t *testing.T) {
	_, err := ParseSegments("#EXTM3U\n#EXT-X-ENDLIST\n", "https://cdn.example/x.m3u8", "/proxy")
	if !errors.Is(err, ErrNoSegments) {
		t.Errorf("expected ErrNoSegments, got %v", err)
	}
}

func TestExtractFollowsVariant(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/master.m3u8":
			fmt.Fprint(w, "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=800000\nvariant/index.m3u8\n")
		case "/variant/index.m3u8":
			fmt.Fprint(w, "#EXTM3U\n#EXT-X-TARGETDURATION:4\n#EXTINF:4.0,\nchunk0.ts\n#EXTINF:4.0,\nchunk1.ts\n")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	e := NewExtractor(srv.Client(), testLogger(), map[string]string{"User-Agent": "test"})
	list, err := e.Extract(context.Background(), srvURL+"/master.m3u8", "/proxy")
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}

	if list.Total != 2 {
		t.Fatalf("expected 2 segments from variant, got %d", list.Total)
	}
	if !strings.Contains(list.Segments[0], "variant%2Fchunk0.ts") {
		t.Errorf("segment not resolved against variant base: %q", list.Segments[0])
	}
}

func TestExtractVariantFetchFailureFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/master.m3u8":
			// References a variant that 404s; the top-level list still has
			// a playable segment.
			fmt.Fprint(w, "#EXTM3U\nmissing/variant.m3u8\n#EXTINF:3.0,\ndirect.ts\n")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := NewExtractor(srv.Client(), testLogger(), nil)
	list, err := e.Extract(context.Background(), srv.URL+"/master.m3u8", "/proxy")
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if list.Total != 2 {
		// The variant reference itself counts as a segment line in the
		// fallback playlist, followed by direct.ts.
		t.Fatalf("expected 2 lines from fallback playlist, got %d", list.Total)
	}
}
