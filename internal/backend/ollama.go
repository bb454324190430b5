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
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/google/uuid"
)

// Ollama talks to a local Ollama server via its /api/generate endpoint.
// Streaming responses are newline-delimited JSON objects.
type Ollama struct {
	baseURL       string
	model         string
	contextWindow int
	httpClient    *http.Client
	limiter       *rate.Limiter
	logger        *slog.Logger
}

func NewOllama(baseURL, model string, opts ...Option) *Ollama {
	cfg := newClientConfig("ollama_backend", opts...)

	c := &Ollama{
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
		"kind", KindOllama,
		"base_url", c.baseURL,
		"model", c.model)

	return c
}

func (c *Ollama) ModelInfo() ModelInfo {
	return ModelInfo{Kind: KindOllama, Name: c.model, ContextWindow: c.contextWindow}
}

// EstimateTokens uses three characters per token. Local model tokenizers
// run denser than OpenAI's on English prose.
func (c *Ollama) EstimateTokens(text string) int {
	return len(text) / 3
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature      float64  `json:"temperature,omitempty"`
	TopP             float64  `json:"top_p,omitempty"`
	FrequencyPenalty float64  `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64  `json:"presence_penalty,omitempty"`
	NumPredict       int      `json:"num_predict,omitempty"`
	Stop             []string `json:"stop,omitempty"`
}

type ollamaResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (c *Ollama) post(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	body, err := json.Marshal(ollamaRequest{
		Model:  c.model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: stream,
		Options: ollamaOptions{
			Temperature:      req.Params.Temperature,
			TopP:             req.Params.TopP,
			FrequencyPenalty: req.Params.FrequencyPenalty,
			PresencePenalty:  req.Params.PresencePenalty,
			NumPredict:       req.Params.MaxTokens,
			Stop:             req.Params.StopSequences,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

func (c *Ollama) Generate(ctx context.Context, req Request) (*Response, error) {
	requestID := uuid.NewString()
	start := time.Now()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	c.logger.Debug("sending generation request",
		"request_id", requestID,
		"model", c.model,
		"prompt_length", len(req.Prompt))

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

	var parsed ollamaResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &Error{Kind: ErrBadRequest, Message: "undecodable response body", Err: err}
	}

	out := &Response{
		Text:         parsed.Response,
		FinishReason: parsed.DoneReason,
		Usage: Usage{
			PromptTokens:     parsed.PromptEvalCount,
			CompletionTokens: parsed.EvalCount,
			TotalTokens:      parsed.PromptEvalCount + parsed.EvalCount,
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

func (c *Ollama) estimateUsage(req Request, text string) Usage {
	prompt := c.EstimateTokens(req.System + req.Prompt)
	completion := c.EstimateTokens(text)
	return Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}

// GenerateStream consumes Ollama's NDJSON stream: one JSON object per line,
// the last carrying done: true with eval counts.
func (c *Ollama) GenerateStream(ctx context.Context, req Request) (<-chan Fragment, error) {
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

		var usage Usage
		var finishReason string
		var full strings.Builder
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			var chunk ollamaResponse
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				continue
			}

			if chunk.Response != "" {
				full.WriteString(chunk.Response)
				select {
				case out <- Fragment{Text: chunk.Response}:
				case <-ctx.Done():
					terminal(Fragment{Err: ctx.Err()})
					return
				}
			}

			if chunk.Done {
				finishReason = chunk.DoneReason
				usage = Usage{
					PromptTokens:     chunk.PromptEvalCount,
					CompletionTokens: chunk.EvalCount,
					TotalTokens:      chunk.PromptEvalCount + chunk.EvalCount,
				}
				break
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

		if usage.TotalTokens == 0 {
			usage = c.estimateUsage(req, full.String())
		}

		c.logger.Info("streaming generation completed",
			"request_id", requestID,
			"response_length", full.Len(),
			"completion_tokens", usage.CompletionTokens)
		terminal(Fragment{Done: true, Usage: usage, FinishReason: finishReason})
	}()

	return out, nil
}

// IsAvailable probes the server's version endpoint with a short deadline.
func (c *Ollama) IsAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.baseURL+"/api/version", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode == http.StatusOK
}
