package store

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultChatTitle is the title every chat starts with. The client overwrites
// it with a prefix of the first assistant reply once the first exchange ends.
const DefaultChatTitle = "New conversation"

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name,omitempty"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt    time.Time `json:"created_at"`
}

// Session is one issued credential. A JWT is only honored while its session
// row exists, which is what makes sign-out effective.
type Session struct {
	ID        string    `json:"id"` // UUID, carried in the token's jti claim
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Chat struct {
	ID        string    `json:"id"` // UUID
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	ID        string    `json:"id"` // UUID
	ChatID    string    `json:"chat_id"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
