package conversation

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry in a thread's message history.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// LastUser returns the most recent user message text, or "" when the history
// contains none.
func LastUser(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Text
		}
	}
	return ""
}

// LastAssistant returns the most recent assistant message text, or "".
func LastAssistant(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleAssistant {
			return messages[i].Text
		}
	}
	return ""
}

// Window returns at most n of the most recent messages.
func Window(messages []Message, n int) []Message {
	if n <= 0 || len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}
