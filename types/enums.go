package types

type SessionState string

const (
	StateIdle                  SessionState = "idle"
	StateAwaitingPlanSelection SessionState = "awaiting_plan_selection"
	StateAwaitingShopName      SessionState = "awaiting_shop_name"
	StateAwaitingBotToken      SessionState = "awaiting_bot_token"
	StateAwaitingPhone         SessionState = "awaiting_phone"
	StateAwaitingPaymentAck    SessionState = "awaiting_payment_ack"
	StateAwaitingReceipt       SessionState = "awaiting_receipt_upload"
	StateCompleted             SessionState = "completed"
	StateCancelled             SessionState = "cancelled"

	StateAwaitingBroadcastText    SessionState = "awaiting_broadcast_text"
	StateAwaitingBroadcastConfirm SessionState = "awaiting_broadcast_confirm"
)

// Terminal reports whether the state ends a flow. Terminal sessions are never persisted.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type UserStatus string

const (
	UserActive  UserStatus = "active"
	UserBlocked UserStatus = "blocked"
)

type ShopStatus string

const (
	ShopPending   ShopStatus = "pending"
	ShopActive    ShopStatus = "active"
	ShopSuspended ShopStatus = "suspended"
	ShopDeleted   ShopStatus = "deleted"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentRejected  PaymentStatus = "rejected"
)

type PaymentType string

const (
	PaymentSubscription PaymentType = "subscription"
	PaymentRenewal      PaymentType = "renewal"
)

type Decision string

const (
	DecisionConfirm Decision = "confirm"
	DecisionReject  Decision = "reject"
)

type ReferralStatus string

const (
	ReferralPending  ReferralStatus = "pending"
	ReferralCredited ReferralStatus = "credited"
)

const PlanFree = "free"
