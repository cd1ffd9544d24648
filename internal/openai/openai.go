// Package openai adapts an OpenAI-compatible chat completions endpoint to
// the model.Provider interface.
package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/model"
)

// Client issues chat completions against one configured model.
type Client struct {
	client    *goopenai.Client
	model     string
	maxTokens int
}

// NewClient creates a provider for the endpoint at baseURL (e.g.
// "http://localhost:1234/v1"). maxTokens is passed through to the endpoint;
// -1 means unlimited on LM Studio style servers, 0 omits the field.
func NewClient(apiKey, baseURL, modelName string, maxTokens int, timeout time.Duration) *Client {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &Client{
		client:    goopenai.NewClientWithConfig(cfg),
		model:     modelName,
		maxTokens: maxTokens,
	}
}

// ChatCompletion sends the assembled request and returns the generated text
// with token usage. Failures are classified into model.Error kinds; context
// cancellation is passed through unclassified for the caller to detect.
func (c *Client) ChatCompletion(ctx context.Context, req model.Request) (model.CompletionResponse, error) {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	temperature := req.Temperature
	if temperature == 0 {
		// The SDK drops a zero temperature via omitempty; nudge it to the
		// smallest nonzero value so 0.0 still reaches the endpoint.
		temperature = math.SmallestNonzeroFloat32
	}

	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return model.CompletionResponse{}, err
		}
		return model.CompletionResponse{}, classify(err)
	}

	result := model.CompletionResponse{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}

	if len(resp.Choices) == 0 {
		return model.CompletionResponse{}, &model.Error{
			Kind: model.KindMalformed,
			Err:  fmt.Errorf("completion has no choices"),
		}
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return model.CompletionResponse{}, &model.Error{
			Kind: model.KindMalformed,
			Err:  fmt.Errorf("completion content is empty"),
		}
	}
	result.Content = content
	return result, nil
}

// classify maps SDK and transport failures onto the model error taxonomy.
func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return &model.Error{Kind: model.KindBadStatus, Status: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode > 0 {
			return &model.Error{Kind: model.KindBadStatus, Status: reqErr.HTTPStatusCode, Err: err}
		}
		return &model.Error{Kind: model.KindNetwork, Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &model.Error{Kind: model.KindNetwork, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &model.Error{Kind: model.KindNetwork, Err: err}
	}
	return &model.Error{Kind: model.KindMalformed, Err: err}
}
