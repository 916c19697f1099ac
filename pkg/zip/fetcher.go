package zip

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/sirrobot01/zipfetch/internal/request"
)

// Fetcher reads byte ranges out of a remote resource. Offsets are inclusive
// and zero-based. Implementations make one round trip per call and do not
// cache.
type Fetcher interface {
	// Size returns the total resource length in bytes.
	Size(ctx context.Context) (int64, error)
	// FetchRange returns exactly end-start+1 bytes.
	FetchRange(ctx context.Context, start, end int64) ([]byte, error)
}

// HTTPFetcher fetches ranges with HTTP range requests against a fixed URL.
type HTTPFetcher struct {
	url    string
	client *request.Client
	logger zerolog.Logger
}

func NewHTTPFetcher(url string, client *request.Client, logger zerolog.Logger) *HTTPFetcher {
	if client == nil {
		client = request.Default()
	}
	return &HTTPFetcher{
		url:    url,
		client: client,
		logger: logger,
	}
}

// Size issues a HEAD request and reads the Content-Length header. A missing
// or non-numeric length fails with ErrMetadata.
func (f *HTTPFetcher) Size(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, f.url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: unexpected status code: %d", ErrTransport, resp.StatusCode)
	}
	contentLength := resp.Header.Get("Content-Length")
	if contentLength == "" {
		return 0, fmt.Errorf("%w: content length not provided", ErrMetadata)
	}
	size, err := strconv.ParseInt(contentLength, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid content length %q", ErrMetadata, contentLength)
	}
	return size, nil
}

// FetchRange requests bytes [start, end] with a Range header. Servers that
// ignore the range and answer 200 with the full body are tolerated; the
// requested window is sliced out. Anything else, including a short body,
// fails with ErrTransport.
func (f *HTTPFetcher) FetchRange(ctx context.Context, start, end int64) ([]byte, error) {
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: invalid range %d-%d", ErrTransport, start, end)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	f.logger.Trace().Int64("start", start).Int64("end", end).Int("status", resp.StatusCode).Msg("Range fetch")

	switch resp.StatusCode {
	case http.StatusPartialContent:
		buf := make([]byte, end-start+1)
		if _, err := io.ReadFull(resp.Body, buf); err != nil {
			return nil, fmt.Errorf("%w: short read: %v", ErrTransport, err)
		}
		return buf, nil
	case http.StatusOK:
		// Server ignored the range request and sent the whole resource.
		full, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		if int64(len(full)) <= end {
			return nil, fmt.Errorf("%w: short read: resource is %d bytes, range ends at %d",
				ErrTransport, len(full), end)
		}
		return full[start : end+1], nil
	default:
		return nil, fmt.Errorf("%w: unexpected status code: %d", ErrTransport, resp.StatusCode)
	}
}
