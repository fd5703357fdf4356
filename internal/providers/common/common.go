package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"forumwatch-go/internal/model"
)

const (
	UserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	maxBodyBytes = 8 << 20
)

var (
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrBodyTooLarge     = errors.New("response body too large")
)

// FetchBody GETs pageURL and returns the body of a 2xx response.
func FetchBody(ctx context.Context, client *http.Client, pageURL string, timeout time.Duration) ([]byte, error) {
	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w: more than %d bytes from %s", ErrBodyTooLarge, maxBodyBytes, pageURL)
	}
	return body, nil
}

// ResolveLink prefixes an href starting with "/" with base's scheme and
// host, verbatim. The path is not cleaned and "//host/x" stays on base's
// host. Anything else is returned unchanged.
func ResolveLink(base *url.URL, href string) string {
	if base == nil || !strings.HasPrefix(href, "/") {
		return href
	}
	return base.Scheme + "://" + base.Host + href
}

// Dedupe keeps the first occurrence of every link, preserving order.
func Dedupe(topics []model.Topic) []model.Topic {
	seen := make(map[string]struct{}, len(topics))
	out := make([]model.Topic, 0, len(topics))
	for _, topic := range topics {
		if _, ok := seen[topic.Link]; ok {
			continue
		}
		seen[topic.Link] = struct{}{}
		out = append(out, topic)
	}
	return out
}
