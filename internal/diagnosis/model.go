package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/medassist/internal/medapi"
	"github.com/fpang/medassist/internal/metrics"
)

// DefaultModelName is used unless GEMINI_MODEL overrides it.
const DefaultModelName = "gemini-2.5-flash"

// ModelName returns the Gemini model to use.
func ModelName() string {
	if env := os.Getenv("GEMINI_MODEL"); env != "" {
		return env
	}
	return DefaultModelName
}

// Model is the generative backend behind the service.
type Model interface {
	// DescribeImage sends one image with a system instruction and returns
	// the model's text answer.
	DescribeImage(ctx context.Context, system string, image []byte, mimeType string) (string, error)
	// Converse continues a conversation and returns the next assistant turn.
	Converse(ctx context.Context, system string, history []medapi.ChatMessage, message string) (string, error)
}

// GeminiModel implements Model with the Gemini API.
type GeminiModel struct {
	client *genai.Client
	name   string
}

// NewGeminiClient creates a Gemini API client for apiKey.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is empty")
	}
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

// NewGeminiModel wraps client. An empty name uses ModelName().
func NewGeminiModel(client *genai.Client, name string) *GeminiModel {
	if name == "" {
		name = ModelName()
	}
	return &GeminiModel{client: client, name: name}
}

// DescribeImage asks for a JSON answer about the inline image.
func (g *GeminiModel) DescribeImage(ctx context.Context, system string, image []byte, mimeType string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0.2),
	}
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: image}},
			{Text: "Analyze this medical image."},
		},
	}}
	return g.generate(ctx, "analyze", contents, config)
}

// Converse replays history as alternating user/model turns.
func (g *GeminiModel) Converse(ctx context.Context, system string, history []medapi.ChatMessage, message string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		Temperature:       genai.Ptr[float32](0.4),
	}
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, m := range history {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{{Text: m.Content}}})
	}
	contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: message}}})
	return g.generate(ctx, "chat", contents, config)
}

func (g *GeminiModel) generate(ctx context.Context, op string, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.name, contents, config)
	elapsed := time.Since(start)

	result := "success"
	if err != nil {
		result = string(Classify(err).Code)
	}
	metrics.New(metrics.Namespace).
		Dimension("Operation", op).
		Dimension("Result", result).
		Duration("GeminiLatencyMs", elapsed).
		Count("GeminiCalls").
		Property("model", g.name).
		Flush()

	if err != nil {
		log.Error().Err(err).Str("operation", op).Dur("duration", elapsed).Msg("Gemini request failed")
		return "", fmt.Errorf("gemini %s: %w", op, err)
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("gemini returned an empty response")
	}
	log.Debug().Str("operation", op).Dur("duration", elapsed).Int("chars", len(text)).Msg("Gemini response received")
	return text, nil
}
