package storage

type Conversation struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type Message struct {
	ID             string  `json:"id"`
	ConversationID string  `json:"conversation_id"`
	Role           string  `json:"role"`
	Content        string  `json:"content"`
	Model          *string `json:"model"`
	TokensIn       int64   `json:"tokens_in"`
	TokensOut      int64   `json:"tokens_out"`
	CreatedAt      string  `json:"created_at"`
}

// AppendMessageParams carries one message append. Model and token counts
// are optional; absent token counts persist as zero.
type AppendMessageParams struct {
	ConversationID string
	Role           string
	Content        string
	Model          *string
	TokensIn       *int64
	TokensOut      *int64
}
