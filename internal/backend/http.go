package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

const retryBackoff = 250 * time.Millisecond

type httpAdapter struct {
	client *http.Client
	limits Limits
}

func newHTTPAdapter(limits Limits) *httpAdapter {
	return &httpAdapter{
		client: &http.Client{Timeout: limits.Timeout},
		limits: limits,
	}
}

// Fetch retrieves the location over HTTP. A transient failure (network
// error or 5xx) is retried once after a short backoff before surfacing.
func (a *httpAdapter) Fetch(ctx context.Context, location string) ([]byte, error) {
	data, retryable, err := a.fetchOnce(ctx, location)
	if err == nil || !retryable {
		return data, err
	}

	select {
	case <-ctx.Done():
		return nil, classifyContextErr(ctx.Err())
	case <-time.After(retryBackoff):
	}

	data, _, err = a.fetchOnce(ctx, location)
	return data, err
}

func (a *httpAdapter) fetchOnce(ctx context.Context, location string) (data []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, false, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, true, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		// Object stores commonly answer 403 for missing keys.
		return nil, false, fmt.Errorf("%w: %s", ErrNotFound, location)
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("%w: origin returned status %d", ErrTransport, resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("%w: origin returned status %d", ErrTransport, resp.StatusCode)
	}

	if resp.ContentLength > a.limits.MaxBytes {
		return nil, false, fmt.Errorf("%w: %d bytes declared", ErrTooLarge, resp.ContentLength)
	}

	data, err = readBounded(resp.Body, a.limits.MaxBytes)
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			return nil, false, err
		}
		if isTimeout(err) {
			return nil, false, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, true, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return data, false, nil
}

// readBounded reads at most maxBytes and fails if the stream continues
// beyond it, so an oversized origin response never buffers unbounded data.
func readBounded(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: response exceeded %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
