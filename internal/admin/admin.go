// Package admin is the administrator control surface: payment decisions, shop moderation
// and paged listings.
package admin

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/BatmanBruc/mother-bot/internal/events"
	"github.com/BatmanBruc/mother-bot/internal/payments"
	"github.com/BatmanBruc/mother-bot/types"
)

const PageSize = 10

type Decider interface {
	Decide(ctx context.Context, paymentID string, decision types.Decision, adminID int64) (*payments.Outcome, error)
	Pending(ctx context.Context, limit int) ([]types.Payment, error)
}

// OwnerNotifier tells a shop owner that an administrator changed their shop.
type OwnerNotifier interface {
	ShopStatusChanged(ctx context.Context, shop *types.Shop) error
}

type Page[T any] struct {
	Items []T
	Page  int
	Pages int
	Total int
}

type Service struct {
	admins   map[int64]bool
	users    types.UserStore
	shops    types.ShopStore
	decider  Decider
	notifier OwnerNotifier
	events   events.Publisher
	log      logrus.FieldLogger
}

func NewService(adminIDs []int64, users types.UserStore, shops types.ShopStore, decider Decider, notifier OwnerNotifier, pub events.Publisher, log logrus.FieldLogger) *Service {
	admins := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		admins:   admins,
		users:    users,
		shops:    shops,
		decider:  decider,
		notifier: notifier,
		events:   pub,
		log:      log,
	}
}

func (s *Service) IsAdmin(userID int64) bool {
	return s.admins[userID]
}

func (s *Service) AdminIDs() []int64 {
	ids := make([]int64, 0, len(s.admins))
	for id := range s.admins {
		ids = append(ids, id)
	}
	return ids
}

// DecidePayment confirms or rejects a pending payment. Deciding twice returns the
// first decision as *types.AlreadyDecidedError.
func (s *Service) DecidePayment(ctx context.Context, adminID int64, paymentID string, decision types.Decision) (*payments.Outcome, error) {
	if !s.IsAdmin(adminID) {
		return nil, ErrForbidden
	}
	return s.decider.Decide(ctx, paymentID, decision, adminID)
}

func (s *Service) PendingPayments(ctx context.Context, adminID int64) ([]types.Payment, error) {
	if !s.IsAdmin(adminID) {
		return nil, ErrForbidden
	}
	return s.decider.Pending(ctx, PageSize)
}

func (s *Service) ApproveShop(ctx context.Context, adminID int64, shopID string) (*types.Shop, error) {
	return s.setShopStatus(ctx, adminID, shopID, types.ShopActive, events.ShopApproved)
}

func (s *Service) SuspendShop(ctx context.Context, adminID int64, shopID string) (*types.Shop, error) {
	return s.setShopStatus(ctx, adminID, shopID, types.ShopSuspended, events.ShopSuspended)
}

func (s *Service) setShopStatus(ctx context.Context, adminID int64, shopID string, status types.ShopStatus, subject string) (*types.Shop, error) {
	if !s.IsAdmin(adminID) {
		return nil, ErrForbidden
	}
	shop, err := s.shops.SetShopStatus(ctx, shopID, status)
	if err != nil {
		return nil, fmt.Errorf("set shop status: %w", err)
	}
	log := s.log.WithFields(logrus.Fields{"shop_id": shop.ID, "admin_id": adminID, "status": status})
	log.Info("shop status changed")

	payload := map[string]any{"shop_id": shop.ID, "owner_id": shop.OwnerID, "status": status, "admin_id": adminID}
	if err := s.events.Publish(ctx, subject, payload); err != nil {
		log.WithError(err).Warn("publish shop event")
	}
	if s.notifier != nil {
		if err := s.notifier.ShopStatusChanged(ctx, shop); err != nil {
			log.WithError(err).Warn("notify shop owner")
		}
	}
	return shop, nil
}

// ListUsers returns the 1-based page of users.
func (s *Service) ListUsers(ctx context.Context, adminID int64, page int) (Page[types.User], error) {
	if !s.IsAdmin(adminID) {
		return Page[types.User]{}, ErrForbidden
	}
	page = clampPage(page)
	items, total, err := s.users.ListUsers(ctx, (page-1)*PageSize, PageSize)
	if err != nil {
		return Page[types.User]{}, fmt.Errorf("list users: %w", err)
	}
	return newPage(items, page, total), nil
}

func (s *Service) ListShops(ctx context.Context, adminID int64, page int) (Page[types.Shop], error) {
	if !s.IsAdmin(adminID) {
		return Page[types.Shop]{}, ErrForbidden
	}
	page = clampPage(page)
	items, total, err := s.shops.ListShops(ctx, (page-1)*PageSize, PageSize)
	if err != nil {
		return Page[types.Shop]{}, fmt.Errorf("list shops: %w", err)
	}
	return newPage(items, page, total), nil
}

func clampPage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func newPage[T any](items []T, page, total int) Page[T] {
	pages := (total + PageSize - 1) / PageSize
	if pages == 0 {
		pages = 1
	}
	return Page[T]{Items: items, Page: page, Pages: pages, Total: total}
}
