package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"PatentReporter/internal/config"
	"PatentReporter/internal/ports"
)

const (
	summarySystemPrompt = `You are an expert patent analyst.
Summarize the given patent in 2-3 concise sentences.
- State the core technology and its purpose.
- Include the important technical features.
- Write clearly for a non-specialist reader.`

	classifySystemPrompt = `You are a patent classification expert.
Assign the given patent to exactly one of these categories:
%s

Answer with the category name only, copied exactly from the list.`

	defaultMaxTokens = 150
	requestTimeout   = 60 * time.Second
)

// ErrEmptyResponse is returned when the model answers without any choice.
var ErrEmptyResponse = errors.New("openai: response has no choices")

// OpenAIGenerator implements ports.TextGenerator with the Chat Completions API.
type OpenAIGenerator struct {
	client    openai.Client
	model     string
	maxTokens int64
}

var _ ports.TextGenerator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator builds a client from configuration; BaseURL targets any OpenAI-compatible server.
// Retries are left to the pipeline's fallback policy.
func NewOpenAIGenerator(cfg config.OpenAIConfig, httpClient *http.Client) *OpenAIGenerator {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &OpenAIGenerator{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: maxTokens,
	}
}

// GenerateSummary asks for a 2-3 sentence summary of the patent.
func (g *OpenAIGenerator) GenerateSummary(ctx context.Context, title, text string) (string, error) {
	user := fmt.Sprintf("Title: %s\nAbstract: %s\n\nSummarize this patent in 2-3 sentences:", title, text)
	return g.complete(ctx, summarySystemPrompt, user)
}

// ClassifyCategory asks for one label out of allowedLabels. The answer is returned as given;
// callers validate it against the taxonomy.
func (g *OpenAIGenerator) ClassifyCategory(ctx context.Context, title, text string, allowedLabels []string) (string, error) {
	system := fmt.Sprintf(classifySystemPrompt, strings.Join(allowedLabels, ", "))
	user := fmt.Sprintf("Title: %s\nSummary: %s\n\nCategory of this patent:", title, text)
	return g.complete(ctx, system, user)
}

func (g *OpenAIGenerator) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxCompletionTokens: openai.Int(g.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
