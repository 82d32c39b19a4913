package onboarding

import (
	"context"
	"fmt"

	"github.com/BatmanBruc/mother-bot/internal/metrics"
	"github.com/BatmanBruc/mother-bot/internal/workflow"
	"github.com/BatmanBruc/mother-bot/types"
)

// Sweep times out every session idle for longer than the configured timeout. Each
// candidate is re-read under its actor lock, so a session touched meanwhile survives.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	sessions, err := s.sessions.ListSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}

	swept := 0
	for _, candidate := range sessions {
		if err := ctx.Err(); err != nil {
			return swept, err
		}
		if !candidate.Stale(s.now().UTC(), s.timeout) {
			continue
		}
		ok, err := s.expire(ctx, candidate.Key)
		if err != nil {
			s.log.WithError(err).WithField("user_id", candidate.Key.UserID).Warn("expire session")
			continue
		}
		if ok {
			swept++
		}
	}
	metrics.RecordSwept(swept)
	if swept > 0 {
		s.log.WithField("swept", swept).Info("stale sessions expired")
	}
	return swept, nil
}

func (s *Service) expire(ctx context.Context, key types.SessionKey) (bool, error) {
	unlock, err := s.locks.Lock(ctx, key.String())
	if err != nil {
		return false, err
	}
	defer unlock()

	session, err := s.loadSession(ctx, key)
	if err != nil || session == nil {
		return false, err
	}
	now := s.now().UTC()
	if !session.Stale(now, s.timeout) {
		return false, nil
	}

	res := s.engine.Transition(workflow.Input{
		Key:     key,
		ChatID:  session.ChatID,
		Session: session,
		Event:   workflow.EvTimeout{},
		Now:     now,
	})
	if err := s.persist(ctx, key, session, res); err != nil {
		return false, err
	}
	s.present(ctx, session.ChatID, key.UserID, res.Prompts)
	return true, nil
}
