package objstore

import (
	"context"
	"fmt"
	"io"
	"livechat/internal/config"
	"net/http"
	"strings"
)

// Client talks to an S3-compatible object store over plain HTTP. Only the
// returned URL ever enters the chat core; blobs stay out of band.
type Client struct {
	endpoint string
	bucket   string
	http     *http.Client
}

func NewClient(cfg config.ObjStoreConfig) *Client {
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		bucket:   cfg.Bucket,
		http:     &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) objectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", c.endpoint, c.bucket, key)
}

func (c *Client) Put(
	ctx context.Context,
	key, contentType string,
	size int64,
	body io.Reader,
) (string, error) {
	url := c.objectURL(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return "", err
	}
	req.ContentLength = size
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("objstore put: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("objstore put: unexpected status %s", resp.Status)
	}
	return url, nil
}
