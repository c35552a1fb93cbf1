// Package fetch is the shared HTTP client of receivers and the file downloader
// behind the download_files setting.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

// maxBodyBytes limits the size of fetched pages and files.
const maxBodyBytes = 32 * 1024 * 1024

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "gabriel-messenger"
)

type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// Response is a fully read response body.
type Response struct {
	URL         string
	ContentType string
	Body        []byte
}

// ErrBodyTooLarge is returned when a body exceeds the size cap. Nothing is
// returned for such a body, so a partial file is never stored.
var ErrBodyTooLarge = errors.New("body too large")

// Client wraps http.Client with a user agent and a body cap.
type Client struct {
	http      *http.Client
	userAgent string
	maxBody   int64
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
		maxBody:   maxBodyBytes,
	}
}

// HTTP exposes the underlying client for SDKs that accept one.
func (c *Client) HTTP() *http.Client { return c.http }

func (c *Client) UserAgent() string { return c.userAgent }

// Get fetches url and reads the whole body.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	resp, err := c.do(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%s: %w (limit %d bytes)", url, ErrBodyTooLarge, c.maxBody)
	}
	return &Response{URL: resp.Request.URL.String(), ContentType: mediaType(resp.Header.Get("Content-Type")), Body: body}, nil
}

// ContentType issues a HEAD request and returns the media type without parameters.
func (c *Client) ContentType(ctx context.Context, url string) (string, error) {
	resp, err := c.do(ctx, http.MethodHead, url)
	if err != nil {
		return "", err
	}
	_ = resp.Body.Close()
	return mediaType(resp.Header.Get("Content-Type")), nil
}

func (c *Client) do(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}
	return resp, nil
}

func mediaType(v string) string {
	if v == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return mt
}
