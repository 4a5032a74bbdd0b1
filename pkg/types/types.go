// Package types defines core domain types used throughout the application.
package types

// Track is a subtitle or caption track attached to a resolved source.
// File is always a proxy-routed URL by the time it reaches a client.
type Track struct {
	Kind  string `json:"kind"`
	Label string `json:"label"`
	Lang  string `json:"lang,omitempty"`
	File  string `json:"file"`
}

// TimeRange marks an intro/outro window in seconds.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// ResolvedSources is the client-facing result of a source resolution.
type ResolvedSources struct {
	Source string     `json:"source"`
	Tracks []Track    `json:"tracks"`
	Intro  *TimeRange `json:"intro"`
	Outro  *TimeRange `json:"outro"`
}

// SegmentList is the flat segment view of a resolved HLS playlist,
// used by clients for seeking. Durations align 1:1 with Segments and
// hold nil where the playlist did not annotate a duration.
type SegmentList struct {
	Segments       []string   `json:"segments"`
	Total          int        `json:"total"`
	Durations      []*float64 `json:"durations"`
	TargetDuration *float64   `json:"targetDuration"`
}
