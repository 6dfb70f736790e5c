package anthropic

// --- REQUEST ----------------------------------------------------------------

type request struct {
	Model     string          `json:"model"`
	System    string          `json:"system,omitempty"`
	Messages  []message       `json:"messages"`
	MaxTokens int             `json:"max_tokens"` // обязателен
	Thinking  *thinkingConfig `json:"thinking,omitempty"`
}

type thinkingConfig struct {
	Type         string `json:"type"` // "enabled"
	BudgetTokens int    `json:"budget_tokens"`
}

type message struct {
	Role    string         `json:"role"` // "user" | "assistant"
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string  `json:"type"` // "text" | "image"
	Text   string  `json:"text,omitempty"`
	Source *source `json:"source,omitempty"`
}

type source struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// --- RESPONSE ---------------------------------------------------------------

type response struct {
	Content    []responseBlock `json:"content"`
	StopReason string          `json:"stop_reason"`
}

type responseBlock struct {
	Type     string `json:"type"` // "text" | "thinking" | "redacted_thinking"
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`
}
