package ai

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
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterClient calls any OpenAI-compatible /v1/chat/completions endpoint.
// Works with OpenRouter, vLLM, LiteLLM, LocalAI, self-hosted models, etc.
type OpenRouterClient struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	streamClient *http.Client
}

// NewOpenRouterClient builds a ChatClient for an OpenAI-compatible gateway.
// baseURL should include the /v1 prefix and defaults to OpenRouter when empty.
// The API key must be supplied; missing configuration is the caller's
// responsibility, not a runtime failure of this client.
func NewOpenRouterClient(baseURL, apiKey string) *OpenRouterClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &OpenRouterClient{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		// Streaming responses stay open for the whole generation, so the
		// stream client carries no global timeout; lifetime is bound to the
		// request context instead.
		streamClient: &http.Client{},
	}
}

var _ ChatClient = (*OpenRouterClient)(nil)

// Chat implements ChatClient using a single non-streaming completion request.
func (c *OpenRouterClient) Chat(ctx context.Context, messages []Message, model string, opts Options) (string, error) {
	resp, err := c.post(ctx, c.httpClient, messages, model, opts, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var chatResp oaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", &UpstreamError{Message: fmt.Sprintf("decode response: %v", err)}
	}
	if len(chatResp.Choices) == 0 {
		return "", &UpstreamError{Message: "empty choices in response"}
	}
	return chatResp.Choices[0].Message.Content, nil
}

// StreamChat implements ChatClient. The returned Stream owns the upstream
// connection; cancelling ctx aborts the in-flight request.
func (c *OpenRouterClient) StreamChat(ctx context.Context, messages []Message, model string, opts Options) (*Stream, error) {
	resp, err := c.post(ctx, c.streamClient, messages, model, opts, true)
	if err != nil {
		return nil, err
	}
	return newStream(resp.Body), nil
}

func (c *OpenRouterClient) post(ctx context.Context, client *http.Client, messages []Message, model string, opts Options, stream bool) (*http.Response, error) {
	if strings.TrimSpace(model) == "" {
		return nil, &UpstreamError{Message: "model required"}
	}
	reqBody := oaiChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &UpstreamError{Message: fmt.Sprintf("encode request: %v", err)}
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &UpstreamError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		var errResp oaiErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&errResp)
		msg := errResp.Error.Message
		if msg == "" {
			msg = resp.Status
		}
		return nil, &UpstreamError{Status: resp.StatusCode, Message: msg}
	}
	return resp, nil
}

// Stream is a pull-based sequence of text chunks from one streaming
// completion. It is not restartable; each StreamChat call opens a new
// upstream connection.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func newStream(body io.ReadCloser) *Stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &Stream{body: body, scanner: scanner}
}

// Recv returns the next non-empty content chunk. It returns io.EOF after the
// upstream [DONE] sentinel and an *UpstreamError for in-band error payloads
// or transport failures. No chunks follow a non-nil error.
func (s *Stream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			s.done = true
			return "", io.EOF
		}
		var chunk oaiStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil && chunk.Error.Message != "" {
			s.done = true
			return "", &UpstreamError{Status: chunk.Error.Code, Message: chunk.Error.Message}
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				return choice.Delta.Content, nil
			}
		}
	}
	s.done = true
	if err := s.scanner.Err(); err != nil {
		return "", &UpstreamError{Message: err.Error()}
	}
	// Upstream closed without the [DONE] sentinel; treat as graceful end.
	return "", io.EOF
}

// Close releases the upstream connection. Safe to call multiple times.
func (s *Stream) Close() error {
	s.done = true
	if s.body == nil {
		return nil
	}
	err := s.body.Close()
	s.body = nil
	if err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return err
	}
	return nil
}

// OpenAI-compatible request/response types.

type oaiChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type oaiStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *oaiErrorBody `json:"error,omitempty"`
}

type oaiErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
