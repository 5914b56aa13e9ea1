package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ollagram/ollagram/internal/agent"
	"github.com/ollagram/ollagram/internal/logger"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
}

type chatRequest struct {
	Model    string      `json:"model"`
	Messages []Message   `json:"messages"`
	Stream   bool        `json:"stream"`
	Options  chatOptions `json:"options"`
}

type chatResponse struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	DoneReason      string  `json:"done_reason,omitempty"`
	TotalDuration   int64   `json:"total_duration,omitempty"`
	PromptEvalCount int     `json:"prompt_eval_count,omitempty"`
	EvalCount       int     `json:"eval_count,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// Usage is reported by the backend on the final message.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	Duration         time.Duration
}

type StreamChunk struct {
	Content string
	Done    bool
	Usage   *Usage
	Error   *AIError
}

type ModelInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

type OllamaClient struct {
	http        *baseHTTPClient
	model       string
	temperature float64
	logger      logger.Logger
}

func NewOllamaClient(httpClient *http.Client, baseURL, model string, temperature float64, log logger.Logger) *OllamaClient {
	log = log.WithField("provider", ProviderOllama)
	return &OllamaClient{
		http:        newBaseHTTPClient(httpClient, baseURL, log),
		model:       model,
		temperature: temperature,
		logger:      log,
	}
}

func (c *OllamaClient) Name() string {
	return ProviderOllama
}

func (c *OllamaClient) Model() string {
	return c.model
}

// Generate implements agent.ModelClient.
func (c *OllamaClient) Generate(ctx context.Context, systemPrompt, message string, history []agent.Turn) (string, error) {
	return c.Chat(ctx, BuildMessages(systemPrompt, message, history))
}

// Chat sends messages as is and waits for the full reply.
func (c *OllamaClient) Chat(ctx context.Context, messages []Message) (string, error) {
	start := time.Now()
	resp, aiErr := c.doRequest(ctx, chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Options:  chatOptions{Temperature: c.temperature},
	})
	if aiErr != nil {
		return "", aiErr
	}
	defer resp.Body.Close()

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", c.newError(0, "failed to decode response", err)
	}
	if result.Error != "" {
		return "", c.newError(0, result.Error, nil)
	}

	c.logger.WithFields(logger.Fields{
		"model":             c.model,
		"prompt_tokens":     result.PromptEvalCount,
		"completion_tokens": result.EvalCount,
		"elapsed":           time.Since(start).String(),
	}).Debug("Model replied")

	return result.Message.Content, nil
}

// GenerateStream is the streaming variant of Generate. The channel is closed
// after a chunk with Done or Error set, or when ctx is cancelled.
func (c *OllamaClient) GenerateStream(ctx context.Context, systemPrompt, message string, history []agent.Turn) (<-chan StreamChunk, error) {
	return c.ChatStream(ctx, BuildMessages(systemPrompt, message, history))
}

func (c *OllamaClient) ChatStream(ctx context.Context, messages []Message) (<-chan StreamChunk, error) {
	resp, aiErr := c.doRequest(ctx, chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
		Options:  chatOptions{Temperature: c.temperature},
	})
	if aiErr != nil {
		return nil, aiErr
	}

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		send := func(chunk StreamChunk) bool {
			select {
			case ch <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			c.logger.WithField("raw", string(line)).Trace("Stream line")

			var event chatResponse
			if err := json.Unmarshal(line, &event); err != nil {
				c.logger.WithError(err).WithField("data", string(line)).Error("Stream decode error")
				continue
			}
			if event.Error != "" {
				send(StreamChunk{Error: c.newError(0, event.Error, nil)})
				return
			}

			chunk := StreamChunk{Content: event.Message.Content, Done: event.Done}
			if event.Done {
				chunk.Usage = &Usage{
					PromptTokens:     event.PromptEvalCount,
					CompletionTokens: event.EvalCount,
					Duration:         time.Duration(event.TotalDuration),
				}
			}
			if !send(chunk) || event.Done {
				return
			}
		}

		err := scanner.Err()
		if err == nil {
			err = ErrStreamClosed
		}
		send(StreamChunk{Error: c.newError(0, "stream read failed", err)})
	}()

	return ch, nil
}

// CollectStream drains a stream into one string.
func CollectStream(ch <-chan StreamChunk, onChunk func(string)) (string, error) {
	var buf bytes.Buffer
	for chunk := range ch {
		if chunk.Error != nil {
			return buf.String(), chunk.Error
		}
		buf.WriteString(chunk.Content)
		if onChunk != nil && chunk.Content != "" {
			onChunk(chunk.Content)
		}
		if chunk.Done {
			return buf.String(), nil
		}
	}
	return buf.String(), ErrStreamClosed
}

// ListModels returns the models installed on the backend.
func (c *OllamaClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tagsEndpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.newError(0, "network request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.newError(resp.StatusCode, fmt.Sprintf("HTTP request failed with status code: %d", resp.StatusCode), nil)
	}

	var result struct {
		Models []ModelInfo `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, c.newError(0, "failed to decode model list", err)
	}
	return result.Models, nil
}

func (c *OllamaClient) doRequest(ctx context.Context, body chatRequest) (*http.Response, *AIError) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, c.newError(0, "marshal error", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, chatEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, c.newError(0, "create request error", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.newError(0, "network request failed", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		aiErr := c.newError(resp.StatusCode, fmt.Sprintf("HTTP request failed with status code: %d", resp.StatusCode), nil)
		raw, _ := io.ReadAll(resp.Body)
		var providerError struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &providerError) == nil && providerError.Error != "" {
			aiErr.Message = providerError.Error
		}
		return nil, aiErr
	}
	return resp, nil
}

func (c *OllamaClient) newError(status int, msg string, cause error) *AIError {
	return &AIError{
		OriginalErr:    cause,
		ProviderName:   ProviderOllama,
		ModelName:      c.model,
		HTTPStatusCode: status,
		Message:        msg,
	}
}

// BuildMessages lays out a chat request: system prompt, history oldest-first,
// then the current message. Empty system prompt or message are skipped.
func BuildMessages(systemPrompt, message string, history []agent.Turn) []Message {
	messages := make([]Message, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, Message{Role: string(agent.RoleSystem), Content: systemPrompt})
	}
	for _, turn := range history {
		messages = append(messages, Message{Role: string(turn.Role), Content: turn.Content})
	}
	if message != "" {
		messages = append(messages, Message{Role: string(agent.RoleUser), Content: message})
	}
	return messages
}
