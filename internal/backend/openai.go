package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/google/uuid"
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint. One
// attempt per call; retry policy lives with the caller.
type OpenAI struct {
	apiKey        string
	baseURL       string
	model         string
	contextWindow int
	httpClient    *http.Client
	limiter       *rate.Limiter
	logger        *slog.Logger
}

type Option func(*clientConfig)

type clientConfig struct {
	timeout       time.Duration
	rpm           int
	burst         int
	contextWindow int
	logger        *slog.Logger
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) { c.timeout = timeout }
}

func WithRateLimit(requestsPerMinute, burst int) Option {
	return func(c *clientConfig) {
		c.rpm = requestsPerMinute
		c.burst = burst
	}
}

func WithContextWindow(tokens int) Option {
	return func(c *clientConfig) { c.contextWindow = tokens }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}

func newClientConfig(component string, opts ...Option) clientConfig {
	cfg := clientConfig{
		timeout: 120 * time.Second,
		rpm:     60,
		burst:   1,
		logger:  slog.Default().With("component", component),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// pooledTransport keeps connections warm across generation calls.
func pooledTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
}

func NewOpenAI(apiKey, baseURL, model string, opts ...Option) *OpenAI {
	cfg := newClientConfig("openai_backend", opts...)

	c := &OpenAI{
		apiKey:        apiKey,
		baseURL:       strings.TrimRight(baseURL, "/"),
		model:         model,
		contextWindow: cfg.contextWindow,
		httpClient: &http.Client{
			Timeout:   cfg.timeout,
			Transport: pooledTransport(),
		},
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.rpm)/60.0), cfg.burst),
		logger:  cfg.logger,
	}

	c.logger.Debug("backend initialized",
		"kind", KindOpenAI,
		"base_url", c.baseURL,
		"model", c.model,
		"rate_limit", fmt.Sprintf("%v req/s", c.limiter.Limit()))

	return c
}

func (c *OpenAI) ModelInfo() ModelInfo {
	return ModelInfo{Kind: KindOpenAI, Name: c.model, ContextWindow: c.contextWindow}
}

// EstimateTokens approximates with four characters per token, the usual
// ratio for English prose on OpenAI tokenizers.
func (c *OpenAI) EstimateTokens(text string) int {
	return len(text) / 4
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	Temperature      float64       `json:"temperature,omitempty"`
	TopP             float64       `json:"top_p,omitempty"`
	FrequencyPenalty float64       `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64       `json:"presence_penalty,omitempty"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	Stop             []string      `json:"stop,omitempty"`
	Stream           bool          `json:"stream,omitempty"`
}

func (c *OpenAI) buildRequest(req Request, stream bool) chatRequest {
	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	return chatRequest{
		Model:            c.model,
		Messages:         messages,
		Temperature:      req.Params.Temperature,
		TopP:             req.Params.TopP,
		FrequencyPenalty: req.Params.FrequencyPenalty,
		PresencePenalty:  req.Params.PresencePenalty,
		MaxTokens:        req.Params.MaxTokens,
		Stop:             req.Params.StopSequences,
		Stream:           stream,
	}
}

func (c *OpenAI) post(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	body, err := json.Marshal(c.buildRequest(req, stream))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, unavailable(err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyStatus(resp.StatusCode, string(respBody), parseRetryAfter(resp))
	}
	return resp, nil
}

func parseRetryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func (c *OpenAI) Generate(ctx context.Context, req Request) (*Response, error) {
	requestID := uuid.NewString()
	start := time.Now()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	c.logger.Debug("sending generation request",
		"request_id", requestID,
		"model", c.model,
		"prompt_length", len(req.Prompt),
		"max_tokens", req.Params.MaxTokens)

	resp, err := c.post(ctx, req, false)
	if err != nil {
		c.logger.Warn("generation request failed",
			"request_id", requestID,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unavailable(fmt.Errorf("reading response: %w", err))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &Error{Kind: ErrBadRequest, Message: "undecodable response body", Err: err}
	}
	if len(parsed.Choices) == 0 {
		return nil, &Error{Kind: ErrBadRequest, Message: "no choices in response"}
	}

	out := &Response{
		Text:         parsed.Choices[0].Message.Content,
		FinishReason: parsed.Choices[0].FinishReason,
		Usage: Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}
	if out.Usage.TotalTokens == 0 {
		out.Usage = c.estimateUsage(req, out.Text)
		out.Estimated = true
	}

	c.logger.Info("generation request completed",
		"request_id", requestID,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", out.Usage.PromptTokens,
		"completion_tokens", out.Usage.CompletionTokens,
		"response_length", len(out.Text))

	return out, nil
}

func (c *OpenAI) estimateUsage(req Request, text string) Usage {
	prompt := c.EstimateTokens(req.System + req.Prompt)
	completion := c.EstimateTokens(text)
	return Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}

// GenerateStream consumes the SSE stream the chat completions endpoint emits
// with "stream": true. Each data: line carries a JSON delta; the stream ends
// with data: [DONE].
func (c *OpenAI) GenerateStream(ctx context.Context, req Request) (<-chan Fragment, error) {
	requestID := uuid.NewString()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	resp, err := c.post(ctx, req, true)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("streaming generation started",
		"request_id", requestID,
		"model", c.model,
		"prompt_length", len(req.Prompt))

	out := make(chan Fragment)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		// A consumer that observed ctx.Done may have stopped receiving, so
		// the terminal fragment must never block on the channel.
		terminal := func(f Fragment) {
			select {
			case out <- f:
			case <-ctx.Done():
			}
		}

		var full strings.Builder
		var finishReason string
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				break
			}

			var chunk struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
					FinishReason string `json:"finish_reason"`
				} `json:"choices"`
			}
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				continue // tolerate unparseable keepalive lines
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			if fr := chunk.Choices[0].FinishReason; fr != "" {
				finishReason = fr
			}
			text := chunk.Choices[0].Delta.Content
			if text == "" {
				continue
			}
			full.WriteString(text)

			select {
			case out <- Fragment{Text: text}:
			case <-ctx.Done():
				terminal(Fragment{Err: ctx.Err()})
				return
			}
		}

		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				terminal(Fragment{Err: ctx.Err()})
			} else {
				terminal(Fragment{Err: unavailable(fmt.Errorf("reading stream: %w", err))})
			}
			return
		}

		c.logger.Info("streaming generation completed",
			"request_id", requestID,
			"response_length", full.Len())
		terminal(Fragment{Done: true, Usage: c.estimateUsage(req, full.String()), FinishReason: finishReason})
	}()

	return out, nil
}

// IsAvailable probes the models listing endpoint with a short deadline.
func (c *OpenAI) IsAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode == http.StatusOK
}
