package types

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Subscription struct {
	Plan      string    `json:"plan"`
	ExpiresAt time.Time `json:"expires_at"`
	IsActive  bool      `json:"is_active"`
	AutoRenew bool      `json:"auto_renew"`
	CreatedAt time.Time `json:"created_at"`
	// PaymentID is the last payment applied to the subscription.
	PaymentID string `json:"payment_id,omitempty"`
}

// Active reports whether the plan is usable at now.
func (s Subscription) Active(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}

type UserStatistics struct {
	TotalShops       int             `json:"total_shops"`
	TotalOrders      int             `json:"total_orders"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	ReferralEarnings decimal.Decimal `json:"referral_earnings"`
}

type User struct {
	UserID       int64
	Username     string
	FirstName    string
	LanguageCode string
	Phone        string
	ReferralCode string
	ReferredBy   string
	Subscription Subscription
	Statistics   UserStatistics
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type UserStore interface {
	// InsertUser creates the user unless one with the same id exists.
	InsertUser(ctx context.Context, user *User) (inserted bool, err error)
	GetUser(ctx context.Context, userID int64) (*User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*User, error)
	UpdatePhone(ctx context.Context, userID int64, phone string) error
	SetUserStatus(ctx context.Context, userID int64, status UserStatus) error

	// MutateSubscription applies fn to the stored subscription atomically and persists the result.
	MutateSubscription(ctx context.Context, userID int64, fn func(sub *Subscription) error) (*Subscription, error)

	ListUsers(ctx context.Context, offset, limit int) ([]User, int, error)
	ListActiveUserIDs(ctx context.Context) ([]int64, error)
}
