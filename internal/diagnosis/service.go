// Package diagnosis analyses medical images and answers follow-up questions
// with a generative model, turning the model's free-form answers into the
// backend's wire types.
package diagnosis

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/medassist/internal/apierr"
	"github.com/fpang/medassist/internal/assets"
	"github.com/fpang/medassist/internal/medapi"
)

// Chat roles as stored in history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// maxHistoryTurns bounds how much of a conversation is replayed to the model.
const maxHistoryTurns = 20

// Service runs analyses and chat replies. All returned errors are
// *apierr.Error.
type Service struct {
	model Model
}

// NewService creates a Service backed by model.
func NewService(model Model) *Service {
	return &Service{model: model}
}

// Analyze diagnoses one image.
func (s *Service) Analyze(ctx context.Context, image []byte, mimeType string) (medapi.Diagnosis, error) {
	if len(image) == 0 {
		return medapi.Diagnosis{}, apierr.Validation("The uploaded file is empty.")
	}
	text, err := s.model.DescribeImage(ctx, assets.DiagnosisSystemPrompt, image, mimeType)
	if err != nil {
		return medapi.Diagnosis{}, Classify(err)
	}
	d := Parse(text)
	log.Info().
		Str("imageType", d.ImageType).
		Float64("confidence", d.ConfidenceScore).
		Int("findings", len(d.Findings)).
		Msg("Image analysed")
	return d, nil
}

// ReplyInput is one chat turn to answer.
type ReplyInput struct {
	Message   string
	Language  string
	History   []medapi.ChatMessage
	Diagnosis *medapi.Diagnosis
}

// Reply answers the next message in a conversation.
func (s *Service) Reply(ctx context.Context, in ReplyInput) (string, error) {
	history := in.History
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	data := assets.ChatPromptData{Language: in.Language}
	if in.Diagnosis != nil {
		data.DiagnosisContext = Summary(*in.Diagnosis, in.Language)
	}
	reply, err := s.model.Converse(ctx, assets.RenderChatSystemPrompt(data), history, in.Message)
	if err != nil {
		return "", Classify(err)
	}
	return strings.TrimSpace(reply), nil
}

// Summary renders a diagnosis as plain text for use as chat context.
func Summary(d medapi.Diagnosis, language string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Image type: %s\n", d.ImageType)
	if language == "ar" && d.DiagnosisArabic != "" {
		fmt.Fprintf(&b, "Diagnosis: %s\n", d.DiagnosisArabic)
	} else {
		fmt.Fprintf(&b, "Diagnosis: %s\n", d.DiagnosisEnglish)
	}
	fmt.Fprintf(&b, "Confidence: %.0f%%\n", d.ConfidenceScore*100)
	if len(d.Findings) > 0 {
		b.WriteString("Findings:\n")
		for _, f := range d.Findings {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	if d.Recommendations != "" {
		fmt.Fprintf(&b, "Recommendations: %s\n", d.Recommendations)
	}
	return strings.TrimRight(b.String(), "\n")
}
