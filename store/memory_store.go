package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/BatmanBruc/mother-bot/types"
)

// MemoryStore is a process-local implementation of every store interface. It backs
// STORAGE=memory and the package tests.
type MemoryStore struct {
	mu        sync.Mutex
	users     map[int64]*types.User
	shops     map[string]*types.Shop
	payments  map[string]*types.Payment
	referrals map[string]*types.ReferralRecord
	sessions  map[types.SessionKey]*types.Session
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[int64]*types.User),
		shops:     make(map[string]*types.Shop),
		payments:  make(map[string]*types.Payment),
		referrals: make(map[string]*types.ReferralRecord),
		sessions:  make(map[types.SessionKey]*types.Session),
		now:       time.Now,
	}
}

func userIDString(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (m *MemoryStore) InsertUser(_ context.Context, user *types.User) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.UserID]; ok {
		return false, nil
	}
	for _, u := range m.users {
		if u.ReferralCode == user.ReferralCode {
			return false, &types.ConflictError{Kind: "referral_code"}
		}
	}
	now := m.now()
	cp := *user
	cp.CreatedAt = now
	cp.UpdatedAt = now
	if cp.Status == "" {
		cp.Status = types.UserActive
	}
	m.users[user.UserID] = &cp
	*user = cp
	return true, nil
}

func (m *MemoryStore) GetUser(_ context.Context, userID int64) (*types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, types.NotFound("user", userIDString(userID))
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) GetUserByReferralCode(_ context.Context, code string) (*types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.ReferralCode == code {
			cp := *u
			return &cp, nil
		}
	}
	return nil, types.NotFound("referral code", code)
}

func (m *MemoryStore) UpdatePhone(_ context.Context, userID int64, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return types.NotFound("user", userIDString(userID))
	}
	u.Phone = phone
	u.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) SetUserStatus(_ context.Context, userID int64, status types.UserStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return types.NotFound("user", userIDString(userID))
	}
	u.Status = status
	u.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) MutateSubscription(_ context.Context, userID int64, fn func(sub *types.Subscription) error) (*types.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, types.NotFound("user", userIDString(userID))
	}
	sub := u.Subscription
	if err := fn(&sub); err != nil {
		return nil, err
	}
	u.Subscription = sub
	u.UpdatedAt = m.now()
	return &sub, nil
}

func (m *MemoryStore) ListUsers(_ context.Context, offset, limit int) ([]types.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]types.User, 0, len(m.users))
	for _, u := range m.users {
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UserID < all[j].UserID })
	return page(all, offset, limit), len(all), nil
}

func (m *MemoryStore) ListActiveUserIDs(_ context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, 0, len(m.users))
	for id, u := range m.users {
		if u.Status == types.UserActive {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *MemoryStore) CreateShop(_ context.Context, shop *types.Shop) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.shops {
		if s.BotToken == shop.BotToken {
			return &types.ConflictError{Kind: types.ConflictBotToken}
		}
		if s.OwnerID == shop.OwnerID && s.Status != types.ShopDeleted {
			return &types.ConflictError{Kind: types.ConflictHasShop}
		}
	}
	owner, ok := m.users[shop.OwnerID]
	if !ok {
		return types.NotFound("user", userIDString(shop.OwnerID))
	}
	if shop.ID == "" {
		shop.ID = uuid.New().String()
	}
	now := m.now()
	shop.CreatedAt = now
	shop.UpdatedAt = now
	cp := *shop
	m.shops[shop.ID] = &cp
	owner.Statistics.TotalShops++
	return nil
}

func (m *MemoryStore) GetShop(_ context.Context, shopID string) (*types.Shop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.shops[shopID]
	if !ok {
		return nil, types.NotFound("shop", shopID)
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) GetOwnerShop(_ context.Context, ownerID int64) (*types.Shop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.shops {
		if s.OwnerID == ownerID && s.Status != types.ShopDeleted {
			cp := *s
			return &cp, nil
		}
	}
	return nil, types.NotFound("shop of owner", userIDString(ownerID))
}

func (m *MemoryStore) BotTokenInUse(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.shops {
		if s.BotToken == token {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) SetShopStatus(_ context.Context, shopID string, status types.ShopStatus) (*types.Shop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.shops[shopID]
	if !ok {
		return nil, types.NotFound("shop", shopID)
	}
	s.Status = status
	s.UpdatedAt = m.now()
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) ListShops(_ context.Context, offset, limit int) ([]types.Shop, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]types.Shop, 0, len(m.shops))
	for _, s := range m.shops {
		all = append(all, *s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return page(all, offset, limit), len(all), nil
}

func (m *MemoryStore) CreatePayment(_ context.Context, p *types.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = m.now()
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *MemoryStore) GetPayment(_ context.Context, paymentID string) (*types.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[paymentID]
	if !ok {
		return nil, types.NotFound("payment", paymentID)
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) DecidePayment(_ context.Context, paymentID string, status types.PaymentStatus, adminID int64, at time.Time) (*types.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[paymentID]
	if !ok {
		return nil, types.NotFound("payment", paymentID)
	}
	if p.Status != types.PaymentPending {
		decided := &types.AlreadyDecidedError{PaymentID: p.ID, Status: p.Status, By: p.VerifiedBy}
		if p.VerifiedAt != nil {
			decided.At = *p.VerifiedAt
		}
		return nil, decided
	}
	p.Status = status
	p.VerifiedBy = adminID
	verifiedAt := at
	p.VerifiedAt = &verifiedAt
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) AttachShop(_ context.Context, paymentID, shopID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[paymentID]
	if !ok {
		return types.NotFound("payment", paymentID)
	}
	p.ShopID = shopID
	return nil
}

func (m *MemoryStore) SettlePayment(_ context.Context, paymentID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[paymentID]
	if !ok {
		return types.NotFound("payment", paymentID)
	}
	settledAt := at
	p.SettledAt = &settledAt
	return nil
}

func (m *MemoryStore) UnprovisionedPayment(_ context.Context, userID int64) (*types.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *types.Payment
	for _, p := range m.payments {
		if p.UserID != userID || p.Status != types.PaymentConfirmed || p.PaymentType != types.PaymentSubscription ||
			p.ShopID != "" || p.SettledAt == nil {
			continue
		}
		if latest == nil || p.VerifiedAt.After(*latest.VerifiedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, types.NotFound("unprovisioned payment", userIDString(userID))
	}
	cp := *latest
	return &cp, nil
}

func (m *MemoryStore) ListPendingPayments(_ context.Context, limit int) ([]types.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.Payment, 0)
	for _, p := range m.payments {
		if p.Status == types.PaymentPending {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, 0, limit), nil
}

func (m *MemoryStore) CreateReferral(_ context.Context, rec *types.ReferralRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.referrals {
		if r.ReferredID == rec.ReferredID && r.Level == rec.Level {
			return &types.ConflictError{Kind: "referral"}
		}
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Status == "" {
		rec.Status = types.ReferralPending
	}
	rec.CreatedAt = m.now()
	cp := *rec
	m.referrals[rec.ID] = &cp
	return nil
}

func (m *MemoryStore) PendingReferrals(_ context.Context, referredID int64) ([]types.ReferralRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.ReferralRecord, 0)
	for _, r := range m.referrals {
		if r.ReferredID == referredID && r.Status == types.ReferralPending {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}

func (m *MemoryStore) CountCredited(_ context.Context, referrerID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, r := range m.referrals {
		if r.ReferrerID == referrerID && r.Level == 1 && r.Status == types.ReferralCredited {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CreditReferral(_ context.Context, recordID string, bonus decimal.Decimal, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.referrals[recordID]
	if !ok {
		return false, types.NotFound("referral", recordID)
	}
	if r.Status != types.ReferralPending {
		return false, nil
	}
	r.Status = types.ReferralCredited
	r.BonusAmount = bonus
	creditedAt := at
	r.CreditedAt = &creditedAt
	if u, ok := m.users[r.ReferrerID]; ok {
		u.Statistics.ReferralEarnings = u.Statistics.ReferralEarnings.Add(bonus)
	}
	return true, nil
}

// Referral returns a copy of a referral record; used by tests and admin views.
func (m *MemoryStore) Referral(recordID string) (types.ReferralRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.referrals[recordID]
	if !ok {
		return types.ReferralRecord{}, false
	}
	return *r, true
}

func (m *MemoryStore) GetSession(_ context.Context, key types.SessionKey) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		return nil, types.NotFound("session", key.String())
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) SaveSession(_ context.Context, session *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *session
	m.sessions[session.Key] = &cp
	return nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, key types.SessionKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, key)
	return nil
}

func (m *MemoryStore) ListSessions(_ context.Context) ([]*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*types.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
