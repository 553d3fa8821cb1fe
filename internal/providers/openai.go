package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gavelhq/gavel/internal/graders"
	"github.com/gavelhq/gavel/internal/models"
	openai "github.com/sashabaranov/go-openai"
)

// chatClient is the subset of the OpenAI client the adapters use; tests
// substitute a fake.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

var _ chatClient = (*openai.Client)(nil)

// OpenAIProvider calls any OpenAI-compatible chat-completion endpoint.
type OpenAIProvider struct {
	id     string
	model  string
	client chatClient
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider builds an adapter for a provider reference like
// "openai:gpt-4o". baseURL overrides the endpoint for compatible servers;
// empty means the public API.
func NewOpenAIProvider(ref, apiKey, baseURL string) *OpenAIProvider {
	_, model := SplitRef(ref)
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		id:     ref,
		model:  model,
		client: openai.NewClientWithConfig(cfg),
	}
}

// ID implements Provider.
func (p *OpenAIProvider) ID() string { return p.id }

// CallAPI implements Provider.
func (p *OpenAIProvider) CallAPI(ctx context.Context, prompt string, config map[string]any, _ map[string]any) (*models.ProviderResponse, error) {
	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	applyChatConfig(&req, config)

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion for %s: %w", p.id, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion for %s returned no choices", p.id)
	}

	return &models.ProviderResponse{
		Output: resp.Choices[0].Message.Content,
		TokenUsage: &models.TokenUsage{
			Prompt:     resp.Usage.PromptTokens,
			Completion: resp.Usage.CompletionTokens,
			Total:      resp.Usage.TotalTokens,
		},
	}, nil
}

// applyChatConfig maps the merged prompt/test config onto the request.
// Unknown keys are ignored so provider-specific settings can coexist.
func applyChatConfig(req *openai.ChatCompletionRequest, config map[string]any) {
	if v, ok := numericConfig(config, "temperature"); ok {
		req.Temperature = float32(v)
	}
	if v, ok := numericConfig(config, "max_tokens"); ok {
		req.MaxTokens = int(v)
	}
	if v, ok := numericConfig(config, "top_p"); ok {
		req.TopP = float32(v)
	}
	if v, ok := config["system"].(string); ok && v != "" {
		req.Messages = append([]openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: v},
		}, req.Messages...)
	}
	if v, ok := config["model"].(string); ok && v != "" {
		req.Model = v
	}
}

func numericConfig(config map[string]any, key string) (float64, bool) {
	switch v := config[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case float32:
		return float64(v), true
	}
	return 0, false
}

// OpenAIJudge grades judge-delegated assertions with a chat model that
// returns a structured verdict.
type OpenAIJudge struct {
	model  string
	client chatClient
}

var _ graders.Judge = (*OpenAIJudge)(nil)

// NewOpenAIJudge builds a judge backed by an OpenAI-compatible endpoint.
func NewOpenAIJudge(model, apiKey, baseURL string) *OpenAIJudge {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIJudge{model: model, client: openai.NewClientWithConfig(cfg)}
}

// judgeInstructions frames each matcher kind for the judge model. Every kind
// demands the same JSON verdict shape.
var judgeInstructions = map[graders.JudgeKind]string{
	graders.JudgeRubric: "You are grading a model output against a rubric. " +
		"Decide whether the output satisfies the rubric.",
	graders.JudgeClassification: "You are classifying a model output. " +
		"Decide whether the output belongs to the expected class.",
	graders.JudgeFaithfulness: "You are checking faithfulness. Decide whether every claim " +
		"in the output is supported by the provided context.",
	graders.JudgeRecall: "You are checking recall. Decide whether the provided context " +
		"contains the expected ground-truth information.",
	graders.JudgeRelevance: "You are checking relevance. Decide whether the provided " +
		"context is relevant to the query.",
}

type judgeVerdict struct {
	Pass   bool    `json:"pass"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// Matches implements graders.Judge.
func (j *OpenAIJudge) Matches(ctx context.Context, kind graders.JudgeKind, expected, output string, threshold float64, cfg map[string]any) (*graders.MatchResult, error) {
	instructions, ok := judgeInstructions[kind]
	if !ok {
		return nil, fmt.Errorf("unknown judge kind %q", kind)
	}

	model := j.model
	if v, ok := cfg["model"].(string); ok && v != "" {
		model = v
	}

	system := instructions + ` Respond with only a JSON object: {"pass": bool, "score": number in [0,1], "reason": string}.`
	user := fmt.Sprintf("Criteria:\n%s\n\nSubject:\n%s", expected, output)

	resp, err := j.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("judge completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("judge completion returned no choices")
	}

	verdict, err := parseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	pass := verdict.Pass && verdict.Score >= threshold
	return &graders.MatchResult{Pass: pass, Score: verdict.Score, Reason: verdict.Reason}, nil
}

// parseVerdict extracts the JSON verdict, tolerating surrounding prose or a
// code fence.
func parseVerdict(content string) (*judgeVerdict, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("judge response contains no JSON verdict: %q", content)
	}

	var v judgeVerdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &v); err != nil {
		return nil, fmt.Errorf("parsing judge verdict: %w", err)
	}
	return &v, nil
}
