package urlutil

import "testing"

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name    string
		urlStr  string
		baseURL string
		want    string
	}{
		{
			name:    "absolute URL unchanged",
			urlStr:  "https://example.com/video.ts",
			baseURL: "https://other.com/manifest.m3u8",
			want:    "https://example.com/video.ts",
		},
		{
			name:    "relative path",
			urlStr:  "segment001.ts",
			baseURL: "https://cdn.example.com/stream/manifest.m3u8",
			want:    "https://cdn.example.com/stream/segment001.ts",
		},
		{
			name:    "absolute path",
			urlStr:  "/video/segment001.ts",
			baseURL: "https://cdn.example.com/stream/manifest.m3u8",
			want:    "https://cdn.example.com/video/segment001.ts",
		},
		{
			name:    "parent directory reference",
			urlStr:  "../audio/segment001.ts",
			baseURL: "https://cdn.example.com/stream/video/manifest.m3u8",
			want:    "https://cdn.example.com/stream/audio/segment001.ts",
		},
		{
			name:    "preserves special characters in base",
			urlStr:  "segment.ts",
			baseURL: "https://cdn.example.com/stream(1)/manifest.m3u8",
			want:    "https://cdn.example.com/stream(1)/segment.ts",
		},
		{
			name:    "base with query string",
			urlStr:  "segment.ts",
			baseURL: "https://cdn.example.com/stream/manifest.m3u8?token=abc",
			want:    "https://cdn.example.com/stream/segment.ts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveURL(tt.urlStr, tt.baseURL); got != tt.want {
				t.Errorf("ResolveURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetBaseDirectory(t *testing.T) {
	tests := []struct {
		name   string
		urlStr string
		want   string
	}{
		{
			name:   "strips filename",
			urlStr: "https://cdn.example.com/stream/manifest.m3u8",
			want:   "https://cdn.example.com/stream/",
		},
		{
			name:   "strips query string",
			urlStr: "https://cdn.example.com/stream/manifest.m3u8?token=abc",
			want:   "https://cdn.example.com/stream/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetBaseDirectory(tt.urlStr); got != tt.want {
				t.Errorf("GetBaseDirectory() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProxyPathInnerURLRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		route  string
		target string
	}{
		{
			name:   "plain segment",
			route:  "/proxy",
			target: "https://cdn.example.com/stream/seg1.ts",
		},
		{
			name:   "target with its own query",
			route:  "/proxy",
			target: "https://cdn.example.com/master.m3u8?token=a&exp=99",
		},
		{
			name:   "subtitle route",
			route:  "/subtitles",
			target: "https://dl.example.com/sub/file.srt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			routed := ProxyPath(tt.route, tt.target)
			if got := InnerURL(routed); got != tt.target {
				t.Errorf("InnerURL(ProxyPath()) = %q, want %q", got, tt.target)
			}
		})
	}
}

func TestInnerURL(t *testing.T) {
	tests := []struct {
		name   string
		routed string
		want   string
	}{
		{
			name:   "strips trailing wait flag",
			routed: "/translated-arabic?url=https%3A%2F%2Fx.example%2Fa.vtt&wait=1",
			want:   "https://x.example/a.vtt",
		},
		{
			name:   "no url parameter passes through",
			routed: "https://direct.example/file.vtt",
			want:   "https://direct.example/file.vtt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InnerURL(tt.routed); got != tt.want {
				t.Errorf("InnerURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
