// Package client talks to the council HTTP API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-envconfig"
)

var ErrNotFound = errors.New("not found")

type Config struct {
	APIURL   string        `env:"COUNCIL_API_URL, default=http://localhost:8001"`
	Timeout  time.Duration `env:"COUNCIL_CLIENT_TIMEOUT, default=30s"`
	RetryMax int           `env:"COUNCIL_CLIENT_RETRY_MAX, default=3"`
}

type Client struct {
	baseURL string
	// retrying is used for idempotent calls, plain for message posts whose
	// runtime is bounded by the caller's context.
	retrying *retryablehttp.Client
	plain    *http.Client
	decoder  *zstd.Decoder
}

// NewClient builds a client from cfg, or from the environment when cfg is nil.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = &Config{}
		if err := envconfig.Process(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to process environment variables: %w", err)
		}
	}
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("api url is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	retrying := retryablehttp.NewClient()
	retrying.RetryMax = cfg.RetryMax
	retrying.HTTPClient.Timeout = cfg.Timeout
	retrying.RetryWaitMin = 200 * time.Millisecond
	retrying.RetryWaitMax = 5 * time.Second
	retrying.Logger = nil

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	log.Debug().
		Str("base_url", cfg.APIURL).
		Int("retry_max", retrying.RetryMax).
		Str("timeout", cfg.Timeout.String()).
		Msg("council client initialized")

	return &Client{
		baseURL:  strings.TrimRight(cfg.APIURL, "/"),
		retrying: retrying,
		plain:    &http.Client{},
		decoder:  decoder,
	}, nil
}

func (c *Client) Close() {
	c.decoder.Close()
}

func (c *Client) Models(ctx context.Context) (*Models, error) {
	var out Models
	if err := c.call(ctx, http.MethodGet, "/api/config/models", nil, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	var out []ConversationSummary
	if err := c.call(ctx, http.MethodGet, "/api/conversations", nil, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateConversation(ctx context.Context) (*Conversation, error) {
	var out Conversation
	if err := c.call(ctx, http.MethodPost, "/api/conversations", map[string]any{}, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var out Conversation
	if err := c.call(ctx, http.MethodGet, "/api/conversations/"+id, nil, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage blocks until the deliberation or follow-up is finished.
func (c *Client) SendMessage(ctx context.Context, id string, req SendMessageRequest) (*MessageResult, error) {
	var out MessageResult
	if err := c.call(ctx, http.MethodPost, "/api/conversations/"+id+"/message", req, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stream posts a message to the streaming endpoint. The returned channel
// carries every event and is closed after the terminal one; a broken stream
// is reported as a final error event.
func (c *Client) Stream(ctx context.Context, id string, req SendMessageRequest) (<-chan Event, error) {
	payload, err := sonic.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/conversations/"+id+"/message/stream", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.plain.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, c.statusError(resp, body)
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		err := readEvents(resp.Body, func(e Event) bool {
			select {
			case events <- e:
				return !e.Terminal()
			case <-ctx.Done():
				return false
			}
		})
		if err != nil {
			log.Error().Err(err).Str("conversation", id).Msg("event stream broken")
			select {
			case events <- Event{Type: EventError, Message: err.Error()}:
			case <-ctx.Done():
			}
		}
	}()
	return events, nil
}

// readEvents parses "data: " frames until fn returns false or the body ends.
// A body that ends before a terminal event is an error.
func readEvents(body io.Reader, fn func(Event) bool) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		var e Event
		if err := sonic.UnmarshalString(strings.TrimSpace(data), &e); err != nil {
			return fmt.Errorf("failed to parse event: %w", err)
		}
		if !fn(e) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}

func (c *Client) call(ctx context.Context, method, endpoint string, body any, idempotent bool, out any) error {
	respBody, resp, err := c.doRequest(ctx, method, endpoint, body, idempotent)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(resp, respBody)
	}

	var envelope stdResponse[json.RawMessage]
	if err := sonic.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if envelope.Error != nil {
		return errors.New(*envelope.Error)
	}
	if err := sonic.Unmarshal(envelope.Body, out); err != nil {
		return fmt.Errorf("failed to parse response body: %w", err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body any, idempotent bool) ([]byte, *http.Response, error) {
	url := c.baseURL + endpoint

	var payload []byte
	if body != nil {
		var err error
		if payload, err = sonic.Marshal(body); err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var (
		resp *http.Response
		err  error
	)
	if idempotent {
		var req *retryablehttp.Request
		if req, err = retryablehttp.NewRequestWithContext(ctx, method, url, payload); err != nil {
			return nil, nil, fmt.Errorf("failed to create request: %w", err)
		}
		setHeaders(req.Header, body != nil)
		resp, err = c.retrying.Do(req)
	} else {
		var req *http.Request
		if req, err = http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload)); err != nil {
			return nil, nil, fmt.Errorf("failed to create request: %w", err)
		}
		setHeaders(req.Header, body != nil)
		resp, err = c.plain.Do(req)
	}
	if err != nil {
		log.Debug().Err(err).Str("method", method).Str("url", url).Msg("HTTP request failed")
		return nil, nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "zstd") {
		if respBody, err = c.decoder.DecodeAll(respBody, nil); err != nil {
			return nil, nil, fmt.Errorf("failed to decompress response: %w", err)
		}
	}

	log.Trace().
		Str("method", method).
		Str("url", url).
		Int("status_code", resp.StatusCode).
		Int("response_body_length", len(respBody)).
		Msg("HTTP request completed")
	return respBody, resp, nil
}

func setHeaders(h http.Header, hasBody bool) {
	if hasBody {
		h.Set("Content-Type", "application/json")
	}
	h.Set("Accept", "application/json")
	h.Set("Accept-Encoding", "zstd")
}

func (c *Client) statusError(resp *http.Response, body []byte) error {
	msg := http.StatusText(resp.StatusCode)
	var envelope stdResponse[json.RawMessage]
	if err := sonic.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		msg = *envelope.Error
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
}
