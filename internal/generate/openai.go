package generate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Defaults for OpenAIConfig fields left zero.
const (
	DefaultModel     = "gpt-4o-mini"
	DefaultMaxTokens = 1024
)

// OpenAIConfig configures OpenAIGenerator. BaseURL points the client at any
// OpenAI-compatible endpoint such as a local Ollama server.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Logger      *slog.Logger
}

// OpenAIGenerator generates documentation through the chat completions API.
type OpenAIGenerator struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

var _ Generator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator creates a generator. The client's own retries are
// disabled; Batch owns the retry policy.
func NewOpenAIGenerator(cfg OpenAIConfig) *OpenAIGenerator {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAIGenerator{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		logger:      logger,
	}
}

func (g *OpenAIGenerator) Model() string {
	return g.model
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	system, user, err := BuildPrompt(req)
	if err != nil {
		return Result{}, NewPermanentError(fmt.Errorf("build prompt: %w", err))
	}

	params := openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(g.temperature),
		MaxTokens:   openai.Int(int64(g.maxTokens)),
	}

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, NewTransientError(fmt.Errorf("openai chat completion: no choices in response"))
	}

	g.logger.DebugContext(ctx, "generation completed",
		"model", g.model,
		"entity", req.Gap.Entity.String(),
		"gap", req.Gap.Type,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	res := ParseResponse(resp.Choices[0].Message.Content)
	if res.Text == "" {
		return Result{}, NewTransientError(fmt.Errorf("openai chat completion: empty documentation"))
	}
	res.Model = g.model
	return res, nil
}
