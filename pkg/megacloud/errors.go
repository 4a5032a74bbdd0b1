package megacloud

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrKeyExtraction means no client key was found in the embed page or
	// its script assets.
	ErrKeyExtraction = errors.New("client key not found in embed page or script")

	// ErrMalformedPayload means the payload declared itself encrypted but
	// its sources field was not textual.
	ErrMalformedPayload = errors.New("encrypted sources field is not a string")

	// ErrDecryption means every decryption attempt failed. The distributed
	// key is likely stale; callers must not retry.
	ErrDecryption = errors.New("failed to decrypt sources, key may be outdated")
)

// UpstreamStatusError reports a non-2xx response from an upstream dependency.
type UpstreamStatusError struct {
	URL        string
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned %d for %s", e.StatusCode, e.URL)
}
