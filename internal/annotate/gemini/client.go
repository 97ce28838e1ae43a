// Package gemini implements image keyword annotation on top of the Gemini
// generateContent REST endpoint.
package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/starford/picshelf/internal/apperr"
)

// Defaults for the public API.
const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.0-flash"
	DefaultPrompt  = "Return a comma-separated list of 10 keywords describing the event or action in this image."
)

// Reader loads image bytes.
type Reader interface {
	Read(path string) ([]byte, error)
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Client annotates images with Gemini.
type Client struct {
	http    *resty.Client
	reader  Reader
	apiKey  string
	baseURL string
	model   string
	prompt  string
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root (used by tests and proxies).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithModel selects the model name.
func WithModel(m string) Option {
	return func(c *Client) {
		if m != "" {
			c.model = m
		}
	}
}

// WithPrompt sets the text prompt sent with every image.
func WithPrompt(p string) Option {
	return func(c *Client) {
		if p != "" {
			c.prompt = p
		}
	}
}

// WithRequestsPerMinute caps the request rate. Zero disables the limiter.
func WithRequestsPerMinute(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
		}
	}
}

// WithRetries sets how many times resty retries a failed request.
func WithRetries(n int) Option {
	return func(c *Client) {
		c.http.SetRetryCount(n)
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.SetTimeout(d)
		}
	}
}

// New creates a Client. apiKey must be non-empty.
func New(apiKey string, reader Reader, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key is empty: %w", apperr.ErrAnnotationFailure)
	}

	httpClient := resty.New()
	httpClient.SetTimeout(60 * time.Second)
	httpClient.SetRetryWaitTime(1 * time.Second)
	httpClient.SetRetryMaxWaitTime(5 * time.Second)

	c := &Client{
		http:    httpClient,
		reader:  reader,
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		model:   DefaultModel,
		prompt:  DefaultPrompt,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Annotate sends the image at path with the prompt and returns the first
// candidate's text, trimmed.
func (c *Client) Annotate(ctx context.Context, path string) (string, error) {
	data, err := c.reader.Read(path)
	if err != nil {
		return "", fmt.Errorf("gemini: %w: %w", apperr.ErrAnnotationFailure, err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("gemini: rate limit wait: %w: %w", apperr.ErrAnnotationFailure, err)
		}
	}

	req := generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: c.prompt},
				{InlineData: &inlineData{
					MimeType: mimeType(path, data),
					Data:     base64.StdEncoding.EncodeToString(data),
				}},
			},
		}},
	}

	var out generateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("key", c.apiKey).
		SetBody(req).
		SetResult(&out).
		Post(c.baseURL + "/models/" + c.model + ":generateContent")
	if err != nil {
		return "", fmt.Errorf("gemini: request: %w: %w", apperr.ErrAnnotationFailure, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("gemini: status %d: %s: %w", resp.StatusCode(), truncate(resp.String(), 200), apperr.ErrAnnotationFailure)
	}

	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: no candidates returned: %w", apperr.ErrAnnotationFailure)
	}
	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return strings.TrimSpace(sb.String()), nil
}

func mimeType(path string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); strings.HasPrefix(t, "image/") {
		return t
	}
	return http.DetectContentType(data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
