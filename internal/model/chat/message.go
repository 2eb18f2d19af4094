package chat

// Roles used in a transcript.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one entry of a conversation transcript.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserTurn wraps text typed by the user.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn wraps text produced by the persona.
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// CloneTranscript returns an independent copy of turns.
func CloneTranscript(turns []Turn) []Turn {
	copied := make([]Turn, len(turns))
	copy(copied, turns)
	return copied
}
