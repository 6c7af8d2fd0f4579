// Package fetch defines the byte-stream-with-range fetcher the Downloader
// consumes. The source specification treats the HTTP transport as an
// external collaborator, specified only by this interface; this package
// also ships the default net/http-backed implementation.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Response is the minimal shape the Downloader needs from a fetch: the
// body stream, whether the server honored a range request (status 206),
// and the status code for error classification.
type Response struct {
	Body       io.ReadCloser
	StatusCode int
	Ranged     bool
}

// Fetcher is the abstract byte-stream fetcher with range support that the
// core consumes. Implementations need not be safe for concurrent use by
// more than one in-flight request, matching the engine's single-threaded
// execution model.
type Fetcher interface {
	// Fetch issues a GET for url. When resumeFrom > 0 the request carries
	// "Range: bytes=resumeFrom-". Callers must Close the returned Body.
	Fetch(ctx context.Context, url string, resumeFrom int64, timeout time.Duration) (*Response, error)
}

// HTTPFetcher is the default Fetcher, backed by net/http.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher builds an HTTPFetcher with a private client so callers
// don't share transport state (connection pools, cookies) across updaters.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string, resumeFrom int64, timeout time.Duration) (*Response, error) {
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		if cancel != nil {
			cancel()
		}
		return nil, fmt.Errorf("build request: %w", err)
	}
	if resumeFrom > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeFrom))
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		if cancel != nil {
			cancel()
		}
		return nil, err
	}

	body := resp.Body
	if cancel != nil {
		body = &cancelOnCloseBody{ReadCloser: resp.Body, cancel: cancel}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return &Response{Body: body, StatusCode: resp.StatusCode, Ranged: false}, nil
	case http.StatusPartialContent:
		return &Response{Body: body, StatusCode: resp.StatusCode, Ranged: true}, nil
	default:
		body.Close()
		return &Response{StatusCode: resp.StatusCode}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}

// cancelOnCloseBody ties a request-scoped timeout's cancellation to the
// response body's lifetime, so the deadline covers the whole streamed
// read rather than firing as soon as Fetch returns.
type cancelOnCloseBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnCloseBody) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}
