package app

import "fmt"

// composePrompt builds the single-shot prompt from the user's message and the
// extracted text of their latest document. Deterministic: same inputs yield
// the same prompt. The file-content section stays present even when empty so
// the model always sees the same shape.
func composePrompt(message, latestDocText string) string {
	return fmt.Sprintf(`You are a helpful AI assistant.
Answer clearly and concisely.

User question:
%s

File content (if any):
%s
`, message, latestDocText)
}
