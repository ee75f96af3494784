package aisearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/starford/pagebook/internal/models"
)

// DefaultBaseURL is the Generative Language API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// GeminiClient calls the generateContent endpoint with the google_search tool.
type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	maxRetries int
	httpClient *http.Client
	backoff    func(attempt int) time.Duration
	logger     *slog.Logger
}

// ClientOptions configures a GeminiClient.
type ClientOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Logger     *slog.Logger
}

// NewGeminiClient creates a client. An empty API key yields a client whose
// HasCredential reports false.
func NewGeminiClient(opts ClientOptions) *GeminiClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &GeminiClient{
		apiKey:     opts.APIKey,
		model:      opts.Model,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		maxRetries: opts.MaxRetries,
		httpClient: &http.Client{Timeout: opts.Timeout},
		backoff:    Backoff,
		logger:     opts.Logger,
	}
}

// HasCredential reports whether an API key is configured.
func (c *GeminiClient) HasCredential() bool {
	return c.apiKey != ""
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
	Tools    []geminiTool    `json:"tools"`
}

type geminiTool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content           geminiContent `json:"content"`
		GroundingMetadata *struct {
			GroundingChunks []struct {
				Web *struct {
					URI   string `json:"uri"`
					Title string `json:"title"`
				} `json:"web"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GenerateWithSearch sends prompt and returns the grounded answer. Transient
// failures are retried with backoff up to the configured limit.
func (c *GeminiClient) GenerateWithSearch(ctx context.Context, prompt string) (Result, error) {
	if !c.HasCredential() {
		return Result{}, errors.New("aisearch: no api key configured")
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt - 1)
			c.logger.Warn("aisearch: retrying",
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait),
				slog.String("error", lastErr.Error()))
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-time.After(wait):
			}
		}
		res, err := c.generate(ctx, prompt)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			break
		}
	}
	return Result{}, lastErr
}

func (c *GeminiClient) generate(ctx context.Context, prompt string) (Result, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		Tools:    []geminiTool{{GoogleSearch: &struct{}{}}},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("aisearch: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("aisearch: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("aisearch: request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Result{}, fmt.Errorf("aisearch: read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return Result{}, &RetryableError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("aisearch: status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var apiResp geminiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return Result{}, fmt.Errorf("aisearch: decode response: %w", err)
	}
	if apiResp.Error != nil {
		return Result{}, fmt.Errorf("aisearch: %s: %s", apiResp.Error.Status, apiResp.Error.Message)
	}
	if len(apiResp.Candidates) == 0 {
		return Result{}, errors.New("aisearch: empty response")
	}

	cand := apiResp.Candidates[0]
	var text strings.Builder
	for _, p := range cand.Content.Parts {
		text.WriteString(p.Text)
	}

	sources := []models.Citation{}
	if cand.GroundingMetadata != nil {
		seen := make(map[string]struct{})
		for _, ch := range cand.GroundingMetadata.GroundingChunks {
			if ch.Web == nil || ch.Web.URI == "" {
				continue
			}
			if _, dup := seen[ch.Web.URI]; dup {
				continue
			}
			seen[ch.Web.URI] = struct{}{}
			sources = append(sources, models.Citation{URI: ch.Web.URI, Title: ch.Web.Title})
		}
	}

	return Result{Text: strings.TrimSpace(text.String()), Sources: sources}, nil
}

// Close releases idle connections.
func (c *GeminiClient) Close() {
	c.httpClient.CloseIdleConnections()
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
