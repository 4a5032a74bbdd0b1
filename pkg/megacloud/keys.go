package megacloud

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"

	"github.com/pkg/errors"
)

// FetchDecryptKey retrieves the community-distributed sources decryption
// key from a remote JSON document mapping named keys to values. Prefers
// the "mega" entry, then "megacloud", then the first entry by name.
func FetchDecryptKey(ctx context.Context, client Doer, keysURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, keysURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "failed to fetch key document")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &UpstreamStatusError{URL: keysURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var keys map[string]string
	if err := json.Unmarshal(body, &keys); err != nil {
		return "", errors.Wrap(err, "invalid key document")
	}

	if k := keys["mega"]; k != "" {
		return k, nil
	}
	if k := keys["megacloud"]; k != "" {
		return k, nil
	}

	names := make([]string, 0, len(keys))
	for name := range keys {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if keys[name] != "" {
			return keys[name], nil
		}
	}

	return "", errors.New("key document holds no usable key")
}
