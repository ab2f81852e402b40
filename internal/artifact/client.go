// Package artifact moves model artifacts to and from the remote artifact
// store over HTTP with bearer-key authentication.
package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// ErrNotConfigured means the remote URL or access key is unset; remote
// operations are unavailable but local model handling still works.
var ErrNotConfigured = errors.New("remote artifact store not configured")

// Client downloads and uploads model artifacts against a single configured
// remote object URL.
type Client struct {
	remoteURL  string
	accessKey  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an artifact store client. Empty remoteURL or accessKey
// leaves the client in a not-configured state.
func NewClient(remoteURL, accessKey string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		remoteURL: remoteURL,
		accessKey: accessKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Configured reports whether both the remote URL and access key are set.
func (c *Client) Configured() bool {
	return c.remoteURL != "" && c.accessKey != ""
}

// Download fetches the remote artifact and returns its bytes.
func (c *Client) Download(ctx context.Context) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.remoteURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("download artifact: status %d: %s", resp.StatusCode, body)
	}
	return io.ReadAll(resp.Body)
}

// Upload pushes a local artifact file to the remote store.
func (c *Client) Upload(ctx context.Context, path string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read artifact %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.remoteURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload artifact: status %d: %s", resp.StatusCode, body)
	}

	c.logger.Info("artifact uploaded", "path", path, "bytes", len(data))
	return nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("apikey", c.accessKey)
	req.Header.Set("Authorization", "Bearer "+c.accessKey)
}
