package session

import (
	"strings"
	"unicode"
)

// Intent is the routing label chosen for one utterance.
type Intent string

const (
	IntentConfirm      Intent = "CONFIRM"
	IntentCancel       Intent = "CANCEL"
	IntentTools        Intent = "TOOLS"
	IntentConversation Intent = "CONVERSATION"
)

var affirmativeTokens = []string{
	"yes", "yeah", "yep", "sure", "ok", "okay", "confirm", "go ahead", "do it", "proceed",
}

var negativeTokens = []string{
	"no", "nope", "cancel", "stop", "don't", "nevermind", "never mind",
}

// Short utterances make substring matching the reliable heuristic for tool
// keywords; tokenizing buys nothing for two-word voice commands.
var toolKeywordGroups = [][]string{
	{"send email", "email", "write email"},
	{"calendar", "schedule", "appointment", "meeting"},
	{"contact", "phone number", "address"},
	{"search", "look up", "find on internet", "google"},
}

// ClassifyIntent maps an utterance to an intent. Pure function of the text
// and the awaiting-confirmation flag; case-insensitive.
//
// Priority: confirmation tokens (only while awaiting confirmation), then
// tool keywords, then conversation. Input that matches neither confirm nor
// cancel while awaiting confirmation falls through to keyword matching.
func ClassifyIntent(text string, awaitingConfirmation bool) Intent {
	normalized := strings.ToLower(strings.TrimSpace(text))

	if awaitingConfirmation {
		// Yes/no tokens are matched on word boundaries; "ok" must not
		// fire inside "joke".
		words := splitWords(normalized)
		if matchesAnswerToken(normalized, words, affirmativeTokens) {
			return IntentConfirm
		}
		if matchesAnswerToken(normalized, words, negativeTokens) {
			return IntentCancel
		}
	}

	for _, group := range toolKeywordGroups {
		for _, keyword := range group {
			if strings.Contains(normalized, keyword) {
				return IntentTools
			}
		}
	}

	return IntentConversation
}

func matchesAnswerToken(text string, words []string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(token, " ") {
			if strings.Contains(text, token) {
				return true
			}
			continue
		}
		for _, word := range words {
			if word == token {
				return true
			}
		}
	}
	return false
}

func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}
