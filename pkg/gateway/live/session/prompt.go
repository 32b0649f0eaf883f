package session

import (
	"fmt"
	"strings"
)

const conversationPreamble = "You are a helpful AI assistant. Be conversational and natural."

// buildPrompt assembles the generation prompt from the trimmed history
// window plus the new utterance. The window is taken before the utterance
// is appended, so the new input appears exactly once.
func buildPrompt(window []Entry, utterance string) string {
	var b strings.Builder
	b.WriteString(conversationPreamble)
	b.WriteString("\n\n")

	if len(window) > 0 {
		b.WriteString("Previous conversation:\n")
		for _, e := range window {
			b.WriteString(e.Role)
			b.WriteString(": ")
			b.WriteString(e.Content)
			b.WriteString("\n")
		}
	}

	b.WriteString("\nuser: ")
	b.WriteString(utterance)
	b.WriteString("\nassistant:")
	return b.String()
}

func confirmationPrompt(text string) string {
	return fmt.Sprintf("I will execute tools to handle: '%s'. Do you want me to proceed?", text)
}
