package admin

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/mother-bot/internal/events"
	"github.com/BatmanBruc/mother-bot/internal/payments"
	"github.com/BatmanBruc/mother-bot/store"
	"github.com/BatmanBruc/mother-bot/types"
)

const adminID = 900

type fakeDecider struct {
	decided map[string]int64
}

func (f *fakeDecider) Decide(_ context.Context, id string, d types.Decision, by int64) (*payments.Outcome, error) {
	if prev, ok := f.decided[id]; ok {
		return nil, &types.AlreadyDecidedError{PaymentID: id, Status: types.PaymentConfirmed, By: prev, At: time.Unix(0, 0)}
	}
	f.decided[id] = by
	return &payments.Outcome{Payment: &types.Payment{ID: id, Status: types.PaymentConfirmed, VerifiedBy: by}}, nil
}

func (f *fakeDecider) Pending(context.Context, int) ([]types.Payment, error) {
	return []types.Payment{{ID: "p1"}}, nil
}

type fakeNotifier struct {
	shops []types.ShopStatus
}

func (f *fakeNotifier) ShopStatusChanged(_ context.Context, shop *types.Shop) error {
	f.shops = append(f.shops, shop.Status)
	return nil
}

func newService(t *testing.T) (*Service, *store.MemoryStore, *fakeNotifier, *events.Recorder) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	m := store.NewMemoryStore()
	n := &fakeNotifier{}
	rec := &events.Recorder{}
	return NewService([]int64{adminID}, m, m, &fakeDecider{decided: map[string]int64{}}, n, rec, log), m, n, rec
}

func addShop(t *testing.T, m *store.MemoryStore, owner int64) *types.Shop {
	t.Helper()
	ctx := context.Background()
	_, err := m.InsertUser(ctx, &types.User{UserID: owner, ReferralCode: fmt.Sprintf("C%07d", owner), Status: types.UserActive})
	require.NoError(t, err)
	shop := &types.Shop{OwnerID: owner, Name: "Shop", BotToken: fmt.Sprintf("%d:tok", owner), Status: types.ShopPending}
	require.NoError(t, m.CreateShop(ctx, shop))
	return shop
}

func TestApproveAndSuspend(t *testing.T) {
	s, m, n, rec := newService(t)
	ctx := context.Background()
	shop := addShop(t, m, 1)

	got, err := s.ApproveShop(ctx, adminID, shop.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ShopActive, got.Status)

	got, err = s.SuspendShop(ctx, adminID, shop.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ShopSuspended, got.Status)

	assert.Equal(t, []types.ShopStatus{types.ShopActive, types.ShopSuspended}, n.shops)
	assert.Equal(t, []string{events.ShopApproved, events.ShopSuspended}, rec.Subjects())
}

func TestUnknownShop(t *testing.T) {
	s, _, n, rec := newService(t)
	_, err := s.ApproveShop(context.Background(), adminID, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Empty(t, n.shops)
	assert.Empty(t, rec.Subjects())
}

func TestNonAdminIsRejected(t *testing.T) {
	s, m, _, _ := newService(t)
	ctx := context.Background()
	shop := addShop(t, m, 1)

	_, err := s.ApproveShop(ctx, 1, shop.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = s.DecidePayment(ctx, 1, "p1", types.DecisionConfirm)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = s.ListUsers(ctx, 1, 1)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDecidePaymentTwice(t *testing.T) {
	s, _, _, _ := newService(t)
	ctx := context.Background()

	out, err := s.DecidePayment(ctx, adminID, "p1", types.DecisionConfirm)
	require.NoError(t, err)
	assert.Equal(t, int64(adminID), out.Payment.VerifiedBy)

	_, err = s.DecidePayment(ctx, adminID, "p1", types.DecisionReject)
	var already *types.AlreadyDecidedError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, int64(adminID), already.By)
}

func TestListShopsPaging(t *testing.T) {
	s, m, _, _ := newService(t)
	for i := int64(1); i <= 23; i++ {
		addShop(t, m, i)
	}

	tests := []struct {
		page  int
		items int
		want  int
	}{
		{1, 10, 1},
		{3, 3, 3},
		{0, 10, 1},
		{4, 0, 4},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("page %d", tt.page), func(t *testing.T) {
			p, err := s.ListShops(context.Background(), adminID, tt.page)
			require.NoError(t, err)
			assert.Len(t, p.Items, tt.items)
			assert.Equal(t, tt.want, p.Page)
			assert.Equal(t, 3, p.Pages)
			assert.Equal(t, 23, p.Total)
		})
	}
}

func TestListUsersEmpty(t *testing.T) {
	s, _, _, _ := newService(t)
	p, err := s.ListUsers(context.Background(), adminID, 1)
	require.NoError(t, err)
	assert.Empty(t, p.Items)
	assert.Equal(t, 1, p.Pages)
}
