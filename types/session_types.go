package types

import (
	"context"
	"fmt"
	"time"
)

// SessionKey identifies the single live conversation of an actor in a role.
type SessionKey struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%s:%d", k.Role, k.UserID)
}

type Collected struct {
	SelectedPlan  string      `json:"selected_plan,omitempty"`
	Purpose       PaymentType `json:"purpose,omitempty"`
	PaymentID     string      `json:"payment_id,omitempty"`
	ShopName      string      `json:"shop_name,omitempty"`
	BotToken      string      `json:"bot_token,omitempty"`
	Phone         string      `json:"phone,omitempty"`
	BroadcastText string      `json:"broadcast_text,omitempty"`
}

type Session struct {
	Key            SessionKey   `json:"key"`
	ChatID         int64        `json:"chat_id"`
	State          SessionState `json:"state"`
	Collected      Collected    `json:"collected"`
	CreatedAt      time.Time    `json:"created_at"`
	LastActivityAt time.Time    `json:"last_activity_at"`
}

// Stale reports whether the session has been idle for at least timeout.
func (s *Session) Stale(now time.Time, timeout time.Duration) bool {
	return !now.Before(s.LastActivityAt.Add(timeout))
}

type SessionStore interface {
	GetSession(ctx context.Context, key SessionKey) (*Session, error)
	// SaveSession overwrites whatever session is stored under the same key.
	SaveSession(ctx context.Context, session *Session) error
	DeleteSession(ctx context.Context, key SessionKey) error
	ListSessions(ctx context.Context) ([]*Session, error)
}
