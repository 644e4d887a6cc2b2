package clients

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// LLM is a chat-completion client for any OpenAI-compatible endpoint
// (OpenAI, vLLM, llama.cpp server, ...).
type LLM struct {
	client    openai.Client
	model     string
	maxTokens int
}

// NewLLM builds a client. An empty baseURL targets api.openai.com.
func NewLLM(baseURL, apiKey, model string, maxTokens int) *LLM {
	opts := []option.RequestOption{option.WithMaxRetries(1)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &LLM{client: openai.NewClient(opts...), model: model, maxTokens: maxTokens}
}

// Complete sends prompt as a single user message and returns the reply text.
func (l *LLM) Complete(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       l.model,
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Temperature: openai.Float(0.5),
		TopP:        openai.Float(0.95),
	}
	if l.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(l.maxTokens))
	}
	resp, err := l.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", modelErr("llm", err)
	}
	if len(resp.Choices) == 0 {
		return "", modelErr("llm", errors.New("no choices in reply"))
	}
	return resp.Choices[0].Message.Content, nil
}
