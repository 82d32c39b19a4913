package types

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Payment struct {
	ID          string
	UserID      int64
	ShopID      string
	Plan        string
	Amount      decimal.Decimal
	PaymentType PaymentType
	Status      PaymentStatus
	ReceiptRef  string
	VerifiedBy  int64
	VerifiedAt  *time.Time
	// SettledAt is set once every effect of a confirmation (plan, referral credits) is applied.
	SettledAt *time.Time
	CreatedAt time.Time
}

// Receipt references are Telegram file ids. Photos are stored bare; files sent as a
// document carry the documentReceiptPrefix, since Telegram will not resend a document
// id as a photo.
const documentReceiptPrefix = "document:"

func DocumentReceipt(fileID string) string {
	return documentReceiptPrefix + fileID
}

// ParseReceipt splits a receipt reference into its file id and whether it is a document.
func ParseReceipt(ref string) (fileID string, document bool) {
	if id, ok := strings.CutPrefix(ref, documentReceiptPrefix); ok {
		return id, true
	}
	return ref, false
}

type PaymentStore interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
	// DecidePayment moves a pending payment to status. When the payment is no longer
	// pending it returns an AlreadyDecidedError and leaves the record untouched.
	DecidePayment(ctx context.Context, paymentID string, status PaymentStatus, adminID int64, at time.Time) (*Payment, error)
	// SettlePayment records that the effects of a confirmed payment were applied.
	SettlePayment(ctx context.Context, paymentID string, at time.Time) error
	AttachShop(ctx context.Context, paymentID, shopID string) error
	// UnprovisionedPayment returns the latest settled subscription payment of userID
	// that has no shop attached yet, or a NotFoundError.
	UnprovisionedPayment(ctx context.Context, userID int64) (*Payment, error)
	ListPendingPayments(ctx context.Context, limit int) ([]Payment, error)
}
