package assets

import (
	"strings"
	"testing"
)

func TestDiagnosisPromptAsksForJSON(t *testing.T) {
	for _, field := range []string{"image_type", "diagnosis_english", "diagnosis_arabic", "confidence_score", "findings", "recommendations"} {
		if !strings.Contains(DiagnosisSystemPrompt, `"`+field+`"`) {
			t.Errorf("diagnosis prompt missing field %s", field)
		}
	}
}

func TestRenderChatSystemPrompt(t *testing.T) {
	en := RenderChatSystemPrompt(ChatPromptData{Language: "en"})
	if !strings.Contains(en, "Reply in English.") || strings.Contains(en, "earlier image analysis") {
		t.Errorf("english prompt:\n%s", en)
	}

	ar := RenderChatSystemPrompt(ChatPromptData{Language: "ar", DiagnosisContext: "Image type: X-ray"})
	if !strings.Contains(ar, "Reply in Arabic.") {
		t.Errorf("arabic prompt missing language rule:\n%s", ar)
	}
	if !strings.Contains(ar, "Image type: X-ray") {
		t.Errorf("context not rendered:\n%s", ar)
	}
}
