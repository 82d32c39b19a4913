package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/BatmanBruc/mother-bot/types"
)

//go:embed migrations/*.sql
var migrations embed.FS

const uniqueViolation = "23505"

type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pool and applies pending migrations unless skipMigrations is set.
func NewPostgresStore(ctx context.Context, dsn string, skipMigrations bool) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{pool: pool}
	if !skipMigrations {
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	db := stdlib.OpenDB(*s.pool.Config().ConnConfig)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

func conflictFrom(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case "shops_bot_token_key":
		return &types.ConflictError{Kind: types.ConflictBotToken}
	case "shops_owner_active_idx":
		return &types.ConflictError{Kind: types.ConflictHasShop}
	case "users_referral_code_key":
		return &types.ConflictError{Kind: "referral_code"}
	case "referrals_referred_level_key":
		return &types.ConflictError{Kind: "referral"}
	}
	return err
}

func parseDecimal(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

const userColumns = `user_id, username, first_name, language_code, phone, referral_code, referred_by,
  sub_plan, sub_expires_at, sub_is_active, sub_auto_renew, sub_created_at, sub_payment_id,
  total_shops, total_orders, total_revenue::text, referral_earnings::text,
  status, created_at, updated_at`

func scanUser(row pgx.Row) (*types.User, error) {
	var (
		u                 types.User
		revenue, earnings string
	)
	err := row.Scan(&u.UserID, &u.Username, &u.FirstName, &u.LanguageCode, &u.Phone, &u.ReferralCode, &u.ReferredBy,
		&u.Subscription.Plan, &u.Subscription.ExpiresAt, &u.Subscription.IsActive, &u.Subscription.AutoRenew, &u.Subscription.CreatedAt,
		&u.Subscription.PaymentID, &u.Statistics.TotalShops, &u.Statistics.TotalOrders, &revenue, &earnings,
		&u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Statistics.TotalRevenue = parseDecimal(revenue)
	u.Statistics.ReferralEarnings = parseDecimal(earnings)
	return &u, nil
}

func (s *PostgresStore) InsertUser(ctx context.Context, user *types.User) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := user.Status
	if status == "" {
		status = types.UserActive
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO users (user_id, username, first_name, language_code, referral_code, referred_by, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (user_id) DO NOTHING
RETURNING `+userColumns,
		user.UserID, strings.TrimSpace(user.Username), strings.TrimSpace(user.FirstName),
		strings.TrimSpace(user.LanguageCode), user.ReferralCode, user.ReferredBy, status)
	created, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, conflictFrom(err)
	}
	*user = *created
	return true, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID int64) (*types.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NotFound("user", strconv.FormatInt(userID, 10))
	}
	return u, err
}

func (s *PostgresStore) GetUserByReferralCode(ctx context.Context, code string) (*types.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE referral_code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NotFound("referral code", code)
	}
	return u, err
}

func (s *PostgresStore) execUser(ctx context.Context, userID int64, sql string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := s.pool.Exec(ctx, sql, append([]any{userID}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return types.NotFound("user", strconv.FormatInt(userID, 10))
	}
	return nil
}

func (s *PostgresStore) UpdatePhone(ctx context.Context, userID int64, phone string) error {
	return s.execUser(ctx, userID, `UPDATE users SET phone = $2, updated_at = NOW() WHERE user_id = $1`, phone)
}

func (s *PostgresStore) SetUserStatus(ctx context.Context, userID int64, status types.UserStatus) error {
	return s.execUser(ctx, userID, `UPDATE users SET status = $2, updated_at = NOW() WHERE user_id = $1`, status)
}

func (s *PostgresStore) MutateSubscription(ctx context.Context, userID int64, fn func(sub *types.Subscription) error) (*types.Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var sub types.Subscription
	err = tx.QueryRow(ctx, `
SELECT sub_plan, sub_expires_at, sub_is_active, sub_auto_renew, sub_created_at, sub_payment_id
FROM users
WHERE user_id = $1
FOR UPDATE
`, userID).Scan(&sub.Plan, &sub.ExpiresAt, &sub.IsActive, &sub.AutoRenew, &sub.CreatedAt, &sub.PaymentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NotFound("user", strconv.FormatInt(userID, 10))
	}
	if err != nil {
		return nil, err
	}

	if err := fn(&sub); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
UPDATE users SET
  sub_plan = $2,
  sub_expires_at = $3,
  sub_is_active = $4,
  sub_auto_renew = $5,
  sub_created_at = $6,
  sub_payment_id = $7,
  updated_at = NOW()
WHERE user_id = $1
`, userID, sub.Plan, sub.ExpiresAt, sub.IsActive, sub.AutoRenew, sub.CreatedAt, sub.PaymentID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context, offset, limit int) ([]types.User, int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY user_id OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := make([]types.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	return users, total, rows.Err()
}

func (s *PostgresStore) ListActiveUserIDs(ctx context.Context) ([]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT user_id FROM users WHERE status = 'active' ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

const shopColumns = `id::text, owner_id, name, bot_token, plan, status, settings,
  total_orders, total_products, total_revenue::text, created_at, updated_at`

func scanShop(row pgx.Row) (*types.Shop, error) {
	var (
		sh       types.Shop
		settings []byte
		revenue  string
	)
	err := row.Scan(&sh.ID, &sh.OwnerID, &sh.Name, &sh.BotToken, &sh.Plan, &sh.Status, &settings,
		&sh.Statistics.TotalOrders, &sh.Statistics.TotalProducts, &revenue, &sh.CreatedAt, &sh.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &sh.Settings); err != nil {
			return nil, fmt.Errorf("shop %s settings: %w", sh.ID, err)
		}
	}
	sh.Statistics.TotalRevenue = parseDecimal(revenue)
	return &sh, nil
}

func (s *PostgresStore) CreateShop(ctx context.Context, shop *types.Shop) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if shop.ID == "" {
		shop.ID = uuid.New().String()
	}
	settings, err := json.Marshal(shop.Settings)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
INSERT INTO shops (id, owner_id, name, bot_token, plan, status, settings)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at, updated_at
`, shop.ID, shop.OwnerID, shop.Name, shop.BotToken, shop.Plan, shop.Status, settings).Scan(&shop.CreatedAt, &shop.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return types.NotFound("user", strconv.FormatInt(shop.OwnerID, 10))
		}
		return conflictFrom(err)
	}
	if _, err := tx.Exec(ctx, `UPDATE users SET total_shops = total_shops + 1, updated_at = NOW() WHERE user_id = $1`, shop.OwnerID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetShop(ctx context.Context, shopID string) (*types.Shop, error) {
	if _, err := uuid.Parse(shopID); err != nil {
		return nil, types.NotFound("shop", shopID)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	sh, err := scanShop(s.pool.QueryRow(ctx, `SELECT `+shopColumns+` FROM shops WHERE id = $1`, shopID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NotFound("shop", shopID)
	}
	return sh, err
}

func (s *PostgresStore) GetOwnerShop(ctx context.Context, ownerID int64) (*types.Shop, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	sh, err := scanShop(s.pool.QueryRow(ctx, `
SELECT `+shopColumns+`
FROM shops
WHERE owner_id = $1 AND status <> 'deleted'
LIMIT 1
`, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NotFound("shop of owner", strconv.FormatInt(ownerID, 10))
	}
	return sh, err
}

func (s *PostgresStore) BotTokenInUse(ctx context.Context, token string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var ok bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM shops WHERE bot_token = $1)`, token).Scan(&ok)
	return ok, err
}

func (s *PostgresStore) SetShopStatus(ctx context.Context, shopID string, status types.ShopStatus) (*types.Shop, error) {
	if _, err := uuid.Parse(shopID); err != nil {
		return nil, types.NotFound("shop", shopID)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	sh, err := scanShop(s.pool.QueryRow(ctx, `
UPDATE shops SET status = $2, updated_at = NOW()
WHERE id = $1
RETURNING `+shopColumns, shopID, status))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NotFound("shop", shopID)
	}
	return sh, err
}

func (s *PostgresStore) ListShops(ctx context.Context, offset, limit int) ([]types.Shop, int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM shops`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx, `SELECT `+shopColumns+` FROM shops ORDER BY created_at OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	shops := make([]types.Shop, 0, limit)
	for rows.Next() {
		sh, err := scanShop(rows)
		if err != nil {
			return nil, 0, err
		}
		shops = append(shops, *sh)
	}
	return shops, total, rows.Err()
}

const paymentColumns = `id::text, user_id, COALESCE(shop_id::text, ''), plan, amount::text, payment_type, status,
  receipt_ref, COALESCE(verified_by, 0), verified_at, settled_at, created_at`

func scanPayment(row pgx.Row) (*types.Payment, error) {
	var (
		p      types.Payment
		amount string
	)
	err := row.Scan(&p.ID, &p.UserID, &p.ShopID, &p.Plan, &amount, &p.PaymentType, &p.Status,
		&p.ReceiptRef, &p.VerifiedBy, &p.VerifiedAt, &p.SettledAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Amount = parseDecimal(amount)
	return &p, nil
}

func nullableUUID(id string) any {
	if id == "" {
		return nil
	}
	return id
}

func (s *PostgresStore) CreatePayment(ctx context.Context, p *types.Payment) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = types.PaymentPending
	}
	return s.pool.QueryRow(ctx, `
INSERT INTO payments (id, user_id, shop_id, plan, amount, payment_type, status, receipt_ref)
VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7, $8)
RETURNING created_at
`, p.ID, p.UserID, nullableUUID(p.ShopID), p.Plan, p.Amount.String(), p.PaymentType, p.Status, p.ReceiptRef).Scan(&p.CreatedAt)
}

func (s *PostgresStore) GetPayment(ctx context.Context, paymentID string) (*types.Payment, error) {
	if _, err := uuid.Parse(paymentID); err != nil {
		return nil, types.NotFound("payment", paymentID)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p, err := scanPayment(s.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, paymentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NotFound("payment", paymentID)
	}
	return p, err
}

func (s *PostgresStore) DecidePayment(ctx context.Context, paymentID string, status types.PaymentStatus, adminID int64, at time.Time) (*types.Payment, error) {
	if _, err := uuid.Parse(paymentID); err != nil {
		return nil, types.NotFound("payment", paymentID)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p, err := scanPayment(s.pool.QueryRow(ctx, `
UPDATE payments SET status = $2, verified_by = $3, verified_at = $4
WHERE id = $1 AND status = 'pending'
RETURNING `+paymentColumns, paymentID, status, adminID, at))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	current, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	decided := &types.AlreadyDecidedError{PaymentID: current.ID, Status: current.Status, By: current.VerifiedBy}
	if current.VerifiedAt != nil {
		decided.At = *current.VerifiedAt
	}
	return nil, decided
}

func (s *PostgresStore) AttachShop(ctx context.Context, paymentID, shopID string) error {
	if _, err := uuid.Parse(paymentID); err != nil {
		return types.NotFound("payment", paymentID)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `UPDATE payments SET shop_id = $2 WHERE id = $1`, paymentID, shopID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return types.NotFound("payment", paymentID)
	}
	return nil
}

func (s *PostgresStore) SettlePayment(ctx context.Context, paymentID string, at time.Time) error {
	if _, err := uuid.Parse(paymentID); err != nil {
		return types.NotFound("payment", paymentID)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `UPDATE payments SET settled_at = $2 WHERE id = $1 AND settled_at IS NULL`, paymentID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetPayment(ctx, paymentID); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) UnprovisionedPayment(ctx context.Context, userID int64) (*types.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p, err := scanPayment(s.pool.QueryRow(ctx, `
SELECT `+paymentColumns+`
FROM payments
WHERE user_id = $1
  AND status = 'confirmed'
  AND payment_type = 'subscription'
  AND shop_id IS NULL
  AND settled_at IS NOT NULL
ORDER BY verified_at DESC
LIMIT 1
`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NotFound("unprovisioned payment", strconv.FormatInt(userID, 10))
	}
	return p, err
}

func (s *PostgresStore) ListPendingPayments(ctx context.Context, limit int) ([]types.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
SELECT `+paymentColumns+`
FROM payments
WHERE status = 'pending'
ORDER BY created_at
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]types.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateReferral(ctx context.Context, rec *types.ReferralRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Status == "" {
		rec.Status = types.ReferralPending
	}
	err := s.pool.QueryRow(ctx, `
INSERT INTO referrals (id, referrer_id, referred_id, status, level)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at
`, rec.ID, rec.ReferrerID, rec.ReferredID, rec.Status, rec.Level).Scan(&rec.CreatedAt)
	return conflictFrom(err)
}

func (s *PostgresStore) PendingReferrals(ctx context.Context, referredID int64) ([]types.ReferralRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
SELECT id::text, referrer_id, referred_id, status, bonus_amount::text, level, created_at, credited_at
FROM referrals
WHERE referred_id = $1 AND status = 'pending'
ORDER BY level
`, referredID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]types.ReferralRecord, 0)
	for rows.Next() {
		var (
			r     types.ReferralRecord
			bonus string
		)
		if err := rows.Scan(&r.ID, &r.ReferrerID, &r.ReferredID, &r.Status, &bonus, &r.Level, &r.CreatedAt, &r.CreditedAt); err != nil {
			return nil, err
		}
		r.BonusAmount = parseDecimal(bonus)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountCredited(ctx context.Context, referrerID int64) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var n int
	err := s.pool.QueryRow(ctx, `
SELECT COUNT(*) FROM referrals
WHERE referrer_id = $1 AND level = 1 AND status = 'credited'
`, referrerID).Scan(&n)
	return n, err
}

func (s *PostgresStore) CreditReferral(ctx context.Context, recordID string, bonus decimal.Decimal, at time.Time) (bool, error) {
	if _, err := uuid.Parse(recordID); err != nil {
		return false, types.NotFound("referral", recordID)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var referrerID int64
	err = tx.QueryRow(ctx, `
UPDATE referrals SET status = 'credited', bonus_amount = $2::text::numeric, credited_at = $3
WHERE id = $1 AND status = 'pending'
RETURNING referrer_id
`, recordID, bonus.String(), at).Scan(&referrerID)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM referrals WHERE id = $1)`, recordID).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			return false, types.NotFound("referral", recordID)
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}

	_, err = tx.Exec(ctx, `
UPDATE users SET referral_earnings = referral_earnings + $2::text::numeric, updated_at = NOW()
WHERE user_id = $1
`, referrerID, bonus.String())
	if err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}
