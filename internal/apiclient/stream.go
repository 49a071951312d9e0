package apiclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"studiodesk/internal/models"
	"studiodesk/internal/sse"
)

// GenerationStream reads the progress events of one sheet generation job.
type GenerationStream struct {
	body   io.ReadCloser
	reader *sse.Reader
	once   sync.Once
}

// OpenGeneration starts sheet generation for model and returns its event
// stream. Rejections (permission, balance, running job) arrive as an
// APIError before any event is read. Cancelling ctx closes the stream.
func (c *Client) OpenGeneration(ctx context.Context, model, title string) (*GenerationStream, error) {
	query := url.Values{}
	if title != "" {
		query.Set("title", title)
	}
	path := "/api/models/" + url.PathEscape(model) + "/sheets/generate"
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", sse.ContentType)

	// The client-wide timeout would cut long generations short; the
	// caller's context bounds the stream instead.
	streaming := *c.HTTPClient
	streaming.Timeout = 0

	resp, err := streaming.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open generation stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		return nil, decodeError(resp)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, sse.ContentType) {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("open generation stream: unexpected content type %q", ct)
	}

	return &GenerationStream{body: resp.Body, reader: sse.NewReader(resp.Body)}, nil
}

// Next blocks for the next event. It returns io.EOF when the server closed
// the stream between events.
func (s *GenerationStream) Next() (string, models.GenerationProgress, error) {
	ev, err := s.reader.Next()
	if err != nil {
		return "", models.GenerationProgress{}, err
	}
	var progress models.GenerationProgress
	if err := ev.Decode(&progress); err != nil {
		return ev.Name, progress, fmt.Errorf("decode %s event: %w", ev.Name, err)
	}
	return ev.Name, progress, nil
}

// Close releases the connection. It is safe to call more than once.
func (s *GenerationStream) Close() error {
	var err error
	s.once.Do(func() { err = s.body.Close() })
	return err
}
