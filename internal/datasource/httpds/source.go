package httpds

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Source is a datasource that downloads one URL per Open.
type Source struct {
	client *Client
	url    string
}

// NewSource binds c to url.
func NewSource(c *Client, url string) *Source { return &Source{client: c, url: url} }

// Open fetches the URL and returns the response body. Any non-2xx status is
// an error.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	resp, err := s.client.Get(ctx, s.url)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("httpds: GET %s: status %d: %q", s.url, resp.StatusCode, snippet)
	}
	return resp.Body, nil
}
