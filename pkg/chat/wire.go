package chat

// RegisterMessageRequest records one turn with the persistence backend.
// A nil SessionID asks the backend to allocate a new session. A non-nil
// MessageID re-records an existing turn in place.
type RegisterMessageRequest struct {
	Email      string    `json:"email"`
	Message    string    `json:"message"`
	Tokens     int       `json:"tokens"`
	TokenSpeed float64   `json:"tokenSpeed"`
	Role       Role      `json:"role"`
	SessionID  *int64    `json:"session_id,omitempty"`
	MessageID  *int64    `json:"message_id,omitempty"`
	Model      ModelName `json:"model"`
}

type RegisterMessageResponse struct {
	Message   string `json:"message"`
	SessionID int64  `json:"session_id"`
	MessageID int64  `json:"message_id"`
}

type PreferenceRequest struct {
	MessageID  int64  `json:"message_id"`
	Preference string `json:"preference"`
}

type PreferenceResponse struct {
	Success bool `json:"success"`
}

// PersistedMessage is a message as stored by the persistence backend.
type PersistedMessage struct {
	ID          int64   `json:"id"`
	Role        string  `json:"role"`
	Message     string  `json:"message"`
	TotalTokens int     `json:"total_tokens"`
	TokenSpeed  float64 `json:"token_speed"`
	Preference  string  `json:"preference"`
}

// ToMessage converts a stored message into a complete transcript message.
// Unknown preferences fall back to neutral.
func (p PersistedMessage) ToMessage() Message {
	role, err := ParseRole(p.Role)
	if err != nil {
		role = RoleUser
	}
	pref, err := ParsePreference(p.Preference)
	if err != nil {
		pref = PreferenceNeutral
	}
	id := p.ID
	return Message{
		Content:    p.Message,
		IsBot:      role == RoleAssistant,
		TokenCount: p.TotalTokens,
		TokenRate:  RoundRate(p.TokenSpeed),
		MessageID:  &id,
		Preference: pref,
		Status:     StatusComplete,
	}
}

// ClientMessage is the shape the relay returns for session history.
type ClientMessage struct {
	MessageID  int64   `json:"message_id"`
	IsBot      bool    `json:"isbot"`
	Content    string  `json:"content"`
	Tokens     int     `json:"tokens"`
	TokenSpeed float64 `json:"tokenSpeed"`
	Preference string  `json:"preference"`
}

// ToClient converts a stored message to the relay's history shape.
func (p PersistedMessage) ToClient() ClientMessage {
	role, _ := ParseRole(p.Role)
	return ClientMessage{
		MessageID:  p.ID,
		IsBot:      role == RoleAssistant,
		Content:    p.Message,
		Tokens:     p.TotalTokens,
		TokenSpeed: p.TokenSpeed,
		Preference: p.Preference,
	}
}

// SessionSummary is one entry of a user's chat history.
type SessionSummary struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type RegisterUserRequest struct {
	Email string `json:"email"`
}

type RegisterUserResponse struct {
	Message string `json:"message"`
	UserID  int64  `json:"user_id"`
	Email   string `json:"email"`
}
