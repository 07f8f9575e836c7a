package accessurl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/assistant-files/internal/infrastructure/resilience"
)

const operationIssue = "access_url.issue"

var errMissingURL = errors.New("issuer response has no downloadUrl")

type Options struct {
	// Path is appended to the base URL for every issuance request.
	Path       string
	Token      string
	Timeout    time.Duration
	Executor   *resilience.Executor
	HTTPClient *http.Client
}

// Client requests fresh signed URLs from the remote issuance service.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		endpoint:   strings.TrimRight(baseURL, "/") + opts.Path,
		token:      opts.Token,
		httpClient: httpClient,
		executor:   opts.Executor,
	}
}

type issueRequest struct {
	Data issueRequestData `json:"data"`
}

type issueRequestData struct {
	Key      string `json:"key"`
	FileName string `json:"file_name"`
}

type issueResponse struct {
	Success     bool   `json:"success"`
	DownloadURL string `json:"downloadUrl"`
}

func (c *Client) IssueAccessURL(ctx context.Context, locator, displayName string) (string, error) {
	url, err := resilience.Call(ctx, c.executor, operationIssue, func(ctx context.Context) (string, error) {
		return c.issue(ctx, locator, displayName)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return "", resilience.WrapTemporary("issue access url", err)
	}
	return url, nil
}

func (c *Client) issue(ctx context.Context, locator, displayName string) (string, error) {
	body, err := json.Marshal(issueRequest{Data: issueRequestData{Key: locator, FileName: displayName}})
	if err != nil {
		return "", fmt.Errorf("marshal issue request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create issue request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("issue request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", resilience.NewHTTPStatusError("issue access url", resp)
	}

	var out issueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode issue response: %w", err)
	}
	if strings.TrimSpace(out.DownloadURL) == "" {
		return "", errMissingURL
	}
	return out.DownloadURL, nil
}
