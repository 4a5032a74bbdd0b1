package megacloud

import (
	"encoding/json"

	"anistream-proxy-go/pkg/types"
)

// EmbedSession is the per-resolution session state recovered from the
// embed page: the signing key plus any cookies the edge handed out.
// Discarded after the getSources call.
type EmbedSession struct {
	SourceID  string
	ClientKey string
	Cookies   map[string]string
}

// SourcePayload is the raw getSources response. Sources is either an
// encrypted string or plain structured data depending on Encrypted.
type SourcePayload struct {
	Encrypted bool             `json:"encrypted"`
	Sources   json.RawMessage  `json:"sources"`
	Tracks    []types.Track    `json:"tracks"`
	Intro     *types.TimeRange `json:"intro"`
	Outro     *types.TimeRange `json:"outro"`
}

// SourcesText returns the sources field as text when it is a JSON string.
func (p *SourcePayload) SourcesText() (string, bool) {
	var s string
	if err := json.Unmarshal(p.Sources, &s); err != nil {
		return "", false
	}
	return s, true
}

// SourceVariant is one playable variant from a decrypted sources list.
type SourceVariant struct {
	File string `json:"file"`
	Type string `json:"type,omitempty"`
}
