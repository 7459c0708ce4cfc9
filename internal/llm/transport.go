package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 500 * time.Millisecond
	maxErrorBody    = 512
)

// StatusError is a non-2xx reply from a provider's HTTP API.
type StatusError struct {
	Provider string
	Code     int
	Message  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.Code, e.Message)
}

// Retryable reports whether the request may succeed if sent again.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// jsonClient posts JSON to a provider and decodes the reply, retrying
// rate-limit and server errors with exponential backoff.
type jsonClient struct {
	provider string
	http     *http.Client
	headers  map[string]string
	attempts int
	backoff  time.Duration
}

func newJSONClient(provider string, timeout time.Duration, headers map[string]string) *jsonClient {
	return &jsonClient{
		provider: provider,
		http:     &http.Client{Timeout: timeout},
		headers:  headers,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}
}

func (c *jsonClient) post(ctx context.Context, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshalling %s request: %w", c.provider, err)
	}

	for attempt := 1; ; attempt++ {
		err = c.once(ctx, url, body, out)
		var se *StatusError
		if err == nil || !errors.As(err, &se) || !se.Retryable() || attempt >= c.attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff << (attempt - 1)):
		}
	}
}

func (c *jsonClient) once(ctx context.Context, url string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", c.provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", c.provider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", c.provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Provider: c.provider, Code: resp.StatusCode, Message: errorMessage(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", c.provider, err)
	}
	return nil
}

// errorMessage pulls the message out of the error envelopes Anthropic
// ({"error":{"message":...}}) and Ollama ({"error":"..."}) use, falling back
// to the raw body.
func errorMessage(body []byte) string {
	var nested struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &nested) == nil && nested.Error.Message != "" {
		if nested.Error.Type != "" {
			return nested.Error.Type + ": " + nested.Error.Message
		}
		return nested.Error.Message
	}
	var flat struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &flat) == nil && flat.Error != "" {
		return flat.Error
	}
	return truncate(string(body), maxErrorBody)
}
