package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// Static errors for the OpenAI-compatible client, named in the same style
// as maauso-infinitetalk-api's internal/runpod/client.go error set.
var (
	ErrAPIKeyRequired = errors.New("media: api key is required")
	ErrServerError     = errors.New("media: server error")
	ErrRateLimited     = errors.New("media: rate limited")
	ErrRequestFailed   = errors.New("media: request failed")
)

// retryableError marks an error as safe to retry inside the client's own
// backoff loop, mirroring maauso's internal/runpod/client.go retryableError.
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// IsRetryable reports whether err originated from a retryable HTTP failure
// (5xx, 429, timeout) as opposed to a permanent one (4xx other than 429).
func IsRetryable(err error) bool {
	return isRetryable(err)
}

// OpenAIClient implements Transcriber, VisionCaptioner, and Embedder
// against an OpenAI-compatible HTTP API, grounded on the doRequestWithRetry
// exponential-backoff shape of maauso-infinitetalk-api's
// internal/runpod/client.go HTTPClient.
type OpenAIClient struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
	validate    *validator.Validate
}

// NewOpenAIClient builds a client for the given API key. baseURL defaults
// to the public OpenAI API but may point at any OpenAI-compatible gateway.
func NewOpenAIClient(apiKey, baseURL string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIClient{
		apiKey:      apiKey,
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
		validate:    validator.New(),
	}, nil
}

type transcriptionSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type transcriptionResponse struct {
	Segments []transcriptionSegment `json:"segments"`
}

// Transcribe uploads an audio file to the configured transcription
// endpoint and returns its segments in order.
func (c *OpenAIClient) Transcribe(ctx context.Context, audioPath string) ([]TranscriptSpan, error) {
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("media: failed to read audio file: %w", err)
	}

	reqBody := struct {
		Model           string `json:"model"`
		AudioBase64     string `json:"audio_base64"`
		ResponseFormat  string `json:"response_format"`
	}{
		Model:          "whisper-1",
		AudioBase64:    base64.StdEncoding.EncodeToString(data),
		ResponseFormat: "verbose_json",
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("media: marshal transcription request: %w", err)
	}

	var resp transcriptionResponse
	if err := c.doRequestWithRetry(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", bodyBytes, &resp); err != nil {
		return nil, err
	}

	spans := make([]TranscriptSpan, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		spans = append(spans, TranscriptSpan{TStart: s.Start, TEnd: s.End, Text: s.Text})
	}
	return spans, nil
}

// Caption sends a single frame image to the configured vision endpoint and
// validates the structured response against the §6 schema.
func (c *OpenAIClient) Caption(ctx context.Context, imagePath string) (VisionResult, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return VisionResult{}, fmt.Errorf("media: failed to read frame image: %w", err)
	}

	reqBody := struct {
		Model     string `json:"model"`
		ImageB64  string `json:"image_base64"`
	}{
		Model:    "gpt-4o-mini",
		ImageB64: base64.StdEncoding.EncodeToString(data),
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return VisionResult{}, fmt.Errorf("media: marshal vision request: %w", err)
	}

	var result VisionResult
	if err := c.doRequestWithRetry(ctx, http.MethodPost, c.baseURL+"/vision/captions", bodyBytes, &result); err != nil {
		return VisionResult{}, err
	}

	if err := c.validate.Struct(result); err != nil {
		return VisionResult{}, fmt.Errorf("media: vision response failed schema validation: %w", err)
	}
	return result, nil
}

type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type embeddingResponse struct {
	Data []embeddingData `json:"data"`
}

// Embed batches texts through the configured embeddings endpoint,
// preserving input order regardless of the order data arrives in the
// response payload.
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}{
		Model: "text-embedding-3-small",
		Input: texts,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("media: marshal embeddings request: %w", err)
	}

	var resp embeddingResponse
	if err := c.doRequestWithRetry(ctx, http.MethodPost, c.baseURL+"/embeddings", bodyBytes, &resp); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func (c *OpenAIClient) doRequestWithRetry(ctx context.Context, method, url string, body []byte, result interface{}) error {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("media: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		err := c.doRequest(ctx, method, url, body, result)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("media: max retries exceeded: %w", lastErr)
}

func (c *OpenAIClient) doRequest(ctx context.Context, method, url string, body []byte, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("media: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("media: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("media: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		if resp.StatusCode == 429 {
			return &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("media: unmarshal response: %w", err)
		}
	}
	return nil
}
