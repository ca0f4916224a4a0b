// Package assets provides the prompt templates embedded into the diagnosis
// server. Templates live as text files under prompts/ and are embedded at
// compile time.
package assets

import (
	"bytes"
	_ "embed"
	"text/template"
)

// DiagnosisSystemPrompt instructs the model to analyse one medical image and
// answer with a JSON object in both English and Arabic.
//
//go:embed prompts/diagnosis-system.txt
var DiagnosisSystemPrompt string

//go:embed prompts/chat-system.txt
var chatSystemTemplate string

var chatPromptTmpl = template.Must(template.New("chat").Parse(chatSystemTemplate))

// ChatPromptData holds the dynamic parts of the chat system prompt.
type ChatPromptData struct {
	// Language is "en" or "ar".
	Language string
	// DiagnosisContext summarises a stored analysis the chat refers to.
	// Empty when the chat is not tied to a record.
	DiagnosisContext string
}

// RenderChatSystemPrompt renders the chat system instruction.
func RenderChatSystemPrompt(data ChatPromptData) string {
	var buf bytes.Buffer
	_ = chatPromptTmpl.Execute(&buf, data)
	return buf.String()
}
