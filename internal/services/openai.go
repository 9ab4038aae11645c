package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bobarin/habitcast/internal/models"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIScriptGenerator writes habit scripts with the chat completions API.
// The API key is checked on every call so a missing credential fails a single
// habit instead of the process.
type OpenAIScriptGenerator struct {
	apiKey  string
	baseURL string
	model   string
	timeout time.Duration
}

var _ ScriptGenerator = (*OpenAIScriptGenerator)(nil)

func NewOpenAIScriptGenerator(apiKey, baseURL, model string, timeout time.Duration) *OpenAIScriptGenerator {
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIScriptGenerator{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		timeout: timeout,
	}
}

func (s *OpenAIScriptGenerator) client() *openai.Client {
	cfg := openai.DefaultConfig(s.apiKey)
	if s.baseURL != "" {
		cfg.BaseURL = strings.TrimRight(s.baseURL, "/")
	}
	return openai.NewClientWithConfig(cfg)
}

func (s *OpenAIScriptGenerator) GenerateScript(ctx context.Context, narrator *models.Narrator, habit models.Habit) (string, error) {
	if s.apiKey == "" {
		return "", fmt.Errorf("%w: OPENAI_API_KEY is not configured", models.ErrScriptGenerationFailed)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	system, user := buildScriptPrompts(narrator, habit)
	log.Printf("[Script] Requesting script for %s (%s) using narrator %q", habit.Key(), habit.Event, narrator.Name)

	resp, err := s.client().CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: float32(narrator.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("%w: openai request failed: %v", models.ErrScriptGenerationFailed, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no script returned from openai", models.ErrScriptGenerationFailed)
	}

	script := strings.TrimSpace(resp.Choices[0].Message.Content)
	if script == "" {
		return "", fmt.Errorf("%w: openai returned an empty script", models.ErrScriptGenerationFailed)
	}

	log.Printf("[Script] Generated for %s (%d chars): %s", habit.Key(), len(script), truncateString(oneLine(script), 180))
	return script, nil
}
