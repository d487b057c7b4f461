// Package netx holds small HTTP helpers.
package netx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxTextBody caps how much of a plain-text response FetchText will read.
const maxTextBody = 4096

// FetchText performs a GET against url and returns the trimmed response body.
// Any non-2xx status is an error carrying the status and a body excerpt.
func FetchText(ctx context.Context, client *http.Client, url string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/plain")
	// ifconfig.me and friends answer with HTML unless the agent looks like curl.
	req.Header.Set("User-Agent", "curl/8")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxTextBody))
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch failed: %s; body: %s", resp.Status, string(b))
	}

	return strings.TrimSpace(string(b)), nil
}
