package types

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type ShopSettings struct {
	Currency    string `json:"currency"`
	Language    string `json:"language"`
	MaxProducts int    `json:"max_products"`
}

type ShopStatistics struct {
	TotalOrders   int             `json:"total_orders"`
	TotalProducts int             `json:"total_products"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
}

type Shop struct {
	ID         string
	OwnerID    int64
	Name       string
	BotToken   string
	Plan       string
	Status     ShopStatus
	Settings   ShopSettings
	Statistics ShopStatistics
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type ShopStore interface {
	// CreateShop inserts the shop and bumps the owner's shop counter. A duplicate bot
	// token yields a ConflictError of kind ConflictBotToken.
	CreateShop(ctx context.Context, shop *Shop) error
	GetShop(ctx context.Context, shopID string) (*Shop, error)
	// GetOwnerShop returns the owner's non-deleted shop, or a NotFoundError.
	GetOwnerShop(ctx context.Context, ownerID int64) (*Shop, error)
	BotTokenInUse(ctx context.Context, token string) (bool, error)
	SetShopStatus(ctx context.Context, shopID string, status ShopStatus) (*Shop, error)
	ListShops(ctx context.Context, offset, limit int) ([]Shop, int, error)
}
