package prompt

import (
	"fmt"
	"strings"
)

// Message is one turn of conversation history.
type Message struct {
	Role    string
	Content string
}

// StringifyHistory renders history as "Role: message\n" lines, the form
// embedded directly into a prompt's {history} placeholder. roles is the
// set of identities the deployment accepts (e.g. "User", "AI").
func StringifyHistory(history []Message, roles map[string]bool) (string, error) {
	var b strings.Builder
	for _, m := range history {
		if !roles[m.Role] {
			return "", fmt.Errorf("prompt: unsupported role %q in chat history", m.Role)
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// TuplizeHistory parses the "Role: message" lines StringifyHistory
// produces back into a Message slice.
func TuplizeHistory(text string, roles map[string]bool) ([]Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	var out []Message
	for _, line := range strings.Split(text, "\n") {
		role, message, ok := strings.Cut(line, ": ")
		if !ok {
			return nil, fmt.Errorf("prompt: malformed history line, expected \"role: message\": %q", line)
		}
		if !roles[role] {
			return nil, fmt.Errorf("prompt: unsupported role %q in chat history", role)
		}
		out = append(out, Message{Role: role, Content: message})
	}
	return out, nil
}
