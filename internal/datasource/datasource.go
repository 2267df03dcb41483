// Package datasource opens the byte stream a run reads its extract from.
package datasource

import (
	"context"
	"fmt"
	"io"
	"strings"

	"behavioretl/internal/datasource/file"
	"behavioretl/internal/datasource/httpds"
)

// Source yields the extract. The caller closes the returned reader.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Spec selects a source.
type Spec struct {
	Kind               string
	Path               string
	URL                string
	InsecureSkipVerify bool
}

// New returns the Source described by s.
func New(s Spec) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s.Kind)) {
	case "", "file":
		if strings.TrimSpace(s.Path) == "" {
			return nil, fmt.Errorf("datasource: file source needs a path")
		}
		return file.NewLocal(s.Path), nil
	case "http", "https":
		if strings.TrimSpace(s.URL) == "" {
			return nil, fmt.Errorf("datasource: http source needs a url")
		}
		return httpds.NewSource(httpds.NewClient(httpds.Config{
			MaxRetries:         3,
			InsecureSkipVerify: s.InsecureSkipVerify,
		}), s.URL), nil
	default:
		return nil, fmt.Errorf("datasource: unknown kind %q", s.Kind)
	}
}
