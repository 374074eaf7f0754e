package core

const (
	AppName    = "tazamem"
	AppVersion = "0.1.0"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is the flattened shape handed to the language-model caller.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
