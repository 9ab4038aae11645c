package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bobarin/habitcast/internal/models"
	"google.golang.org/genai"
)

const defaultGeminiScriptModel = "gemini-2.5-flash"

// GeminiScriptGenerator is the alternative script provider, selected with
// SCRIPT_PROVIDER=gemini. The client is built lazily so an unset key only
// fails the habits that need it.
type GeminiScriptGenerator struct {
	apiKey  string
	model   string
	timeout time.Duration

	// newClient is swapped in tests.
	newClient func(ctx context.Context, apiKey string) (geminiModels, error)
}

// geminiModels is the slice of the genai client this generator uses.
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

var _ ScriptGenerator = (*GeminiScriptGenerator)(nil)

func NewGeminiScriptGenerator(apiKey, model string, timeout time.Duration) *GeminiScriptGenerator {
	if model == "" {
		model = defaultGeminiScriptModel
	}
	return &GeminiScriptGenerator{
		apiKey:    apiKey,
		model:     model,
		timeout:   timeout,
		newClient: newGenAIModels,
	}
}

func newGenAIModels(ctx context.Context, apiKey string) (geminiModels, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return client.Models, nil
}

func (s *GeminiScriptGenerator) GenerateScript(ctx context.Context, narrator *models.Narrator, habit models.Habit) (string, error) {
	if s.apiKey == "" {
		return "", fmt.Errorf("%w: GEMINI_API_KEY is not configured", models.ErrScriptGenerationFailed)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	client, err := s.newClient(ctx, s.apiKey)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create gemini client: %v", models.ErrScriptGenerationFailed, err)
	}

	system, user := buildScriptPrompts(narrator, habit)
	log.Printf("[Script] Requesting gemini script for %s (%s) using narrator %q", habit.Key(), habit.Event, narrator.Name)

	resp, err := client.GenerateContent(ctx, s.model, genai.Text(user), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(float32(narrator.Temperature)),
	})
	if err != nil {
		return "", fmt.Errorf("%w: gemini request failed: %v", models.ErrScriptGenerationFailed, err)
	}

	script := strings.TrimSpace(resp.Text())
	if script == "" {
		return "", fmt.Errorf("%w: gemini returned an empty script", models.ErrScriptGenerationFailed)
	}

	log.Printf("[Script] Generated for %s (%d chars): %s", habit.Key(), len(script), truncateString(oneLine(script), 180))
	return script, nil
}
