package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kirillkom/assistant-files/internal/infrastructure/resilience"
)

const operationFetch = "content.fetch"

type Options struct {
	// Timeout bounds a whole fetch. Zero means no timeout.
	Timeout time.Duration
	// MaxBytes rejects larger bodies. Zero disables the check.
	MaxBytes   int64
	Executor   *resilience.Executor
	HTTPClient *http.Client
}

// Fetcher reads content behind signed URLs with plain GET requests.
type Fetcher struct {
	httpClient *http.Client
	maxBytes   int64
	executor   *resilience.Executor
}

func New(opts Options) *Fetcher {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Fetcher{
		httpClient: httpClient,
		maxBytes:   opts.MaxBytes,
		executor:   opts.Executor,
	}
}

func (f *Fetcher) FetchText(ctx context.Context, url string) (string, error) {
	data, err := f.FetchBytes(ctx, url)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (f *Fetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	data, err := resilience.Call(ctx, f.executor, operationFetch, func(ctx context.Context) ([]byte, error) {
		return f.get(ctx, url)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporary("fetch content", err)
	}
	return data, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create fetch request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resilience.NewHTTPStatusError("fetch content", resp)
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read fetch response: %w", err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("content exceeds %d bytes", f.maxBytes)
	}
	return data, nil
}
