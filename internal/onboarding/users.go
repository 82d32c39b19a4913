package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/BatmanBruc/mother-bot/internal/referral"
	"github.com/BatmanBruc/mother-bot/types"
)

// Profile is what the transport knows about the sender of an update.
type Profile struct {
	UserID       int64
	Username     string
	FirstName    string
	LanguageCode string
}

// EnsureUser returns the stored user, creating it on first contact. startCode is the
// deep-link referral code and only matters for a new user.
func (s *Service) EnsureUser(ctx context.Context, p Profile, startCode string) (*types.User, bool, error) {
	u, err := s.users.GetUser(ctx, p.UserID)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return nil, false, fmt.Errorf("get user: %w", err)
	}

	now := s.now().UTC()
	u = &types.User{
		UserID:       p.UserID,
		Username:     p.Username,
		FirstName:    p.FirstName,
		LanguageCode: p.LanguageCode,
		ReferralCode: referral.NewCode(),
		ReferredBy:   strings.ToUpper(strings.TrimSpace(startCode)),
		Status:       types.UserActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	inserted, err := s.users.InsertUser(ctx, u)
	if err != nil {
		return nil, false, fmt.Errorf("insert user: %w", err)
	}
	if !inserted {
		u, err = s.users.GetUser(ctx, p.UserID)
		return u, false, err
	}

	log := s.log.WithField("user_id", u.UserID)
	log.Info("user registered")
	if u.ReferredBy != "" && s.referrals != nil {
		levels, err := s.referrals.Enroll(ctx, u)
		if err != nil {
			log.WithError(err).Error("enroll referral")
		} else {
			log.WithFields(logrus.Fields{"code": u.ReferredBy, "levels": levels}).Info("referral enrolled")
		}
	}
	return u, true, nil
}
