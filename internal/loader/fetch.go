// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Fetcher opens the raw bytes behind a resource path.
type Fetcher interface {
	Fetch(ctx context.Context, path string) (io.ReadCloser, error)
}

// FSFetcher reads resources from a file system.
type FSFetcher struct {
	FS fs.FS
}

// Fetch implements Fetcher.
func (f FSFetcher) Fetch(_ context.Context, path string) (io.ReadCloser, error) {
	file, err := f.FS.Open(strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, oops.Code(CodeFetchFailed).With("path", path).Wrap(err)
	}
	return file, nil
}

// HTTPFetcher downloads resources relative to a base URL, retrying
// transient failures with exponential backoff.
type HTTPFetcher struct {
	client     *http.Client
	base       *url.URL
	maxRetries uint64
	baseDelay  time.Duration
	maxBytes   int64
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithRetries sets the retry budget and first backoff delay.
func WithRetries(maxRetries uint64, baseDelay time.Duration) HTTPOption {
	return func(f *HTTPFetcher) {
		f.maxRetries = maxRetries
		f.baseDelay = baseDelay
	}
}

// NewHTTPFetcher creates a fetcher rooted at base.
func NewHTTPFetcher(base string, opts ...HTTPOption) (*HTTPFetcher, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, oops.Code(CodeFetchFailed).With("base", base).Wrap(err)
	}
	f := &HTTPFetcher{
		client:     &http.Client{Timeout: 15 * time.Second},
		base:       u,
		maxRetries: 3,
		baseDelay:  250 * time.Millisecond,
		maxBytes:   16 << 20,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, path string) (io.ReadCloser, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, oops.Code(CodeFetchFailed).With("path", path).Wrap(err)
	}
	target := f.base.ResolveReference(ref).String()

	backoff := retry.WithMaxRetries(f.maxRetries, retry.NewExponential(f.baseDelay))

	var body []byte
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
		if reqErr != nil {
			return reqErr
		}
		resp, doErr := f.client.Do(req)
		if doErr != nil {
			return retry.RetryableError(doErr)
		}
		defer resp.Body.Close() //nolint:errcheck // read-only body

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("GET %s: %s", target, resp.Status))
		case resp.StatusCode >= 300:
			return fmt.Errorf("GET %s: %s", target, resp.Status)
		}

		data, readErr := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
		if readErr != nil {
			return retry.RetryableError(readErr)
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, oops.Code(CodeFetchFailed).With("url", target).Wrap(err)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}
