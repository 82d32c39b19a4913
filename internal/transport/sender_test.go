package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testSender() *Sender {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Sender{
		log: log,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewConstant(time.Millisecond))
		},
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"blocked", fmt.Errorf("%w, Forbidden: bot was blocked by the user", bot.ErrorForbidden), ErrBlocked},
		{"deactivated", fmt.Errorf("%w, Forbidden: user is deactivated", bot.ErrorForbidden), ErrDeactivated},
		{"chat not found", fmt.Errorf("%w, Bad Request: chat not found", bot.ErrorBadRequest), ErrBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Classify(tt.in), tt.want)
		})
	}

	assert.NoError(t, Classify(nil))

	rl, ok := AsRateLimited(Classify(&bot.TooManyRequestsError{Message: "Too Many Requests", RetryAfter: 7}))
	assert.True(t, ok)
	assert.Equal(t, 7*time.Second, rl.RetryAfter)

	other := errors.New("connection reset")
	assert.Same(t, other, Classify(other))
}

func TestDo_RetriesTransientErrors(t *testing.T) {
	s := testSender()
	calls := 0
	err := s.do(context.Background(), true, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorsAreNotRetried(t *testing.T) {
	s := testSender()
	calls := 0
	err := s.do(context.Background(), true, func(context.Context) error {
		calls++
		return fmt.Errorf("%w, Forbidden: bot was blocked by the user", bot.ErrorForbidden)
	})
	assert.ErrorIs(t, err, ErrBlocked)
	assert.Equal(t, 1, calls)

	calls = 0
	err = s.do(context.Background(), true, func(context.Context) error {
		calls++
		return fmt.Errorf("%w, Bad Request: message text is empty", bot.ErrorBadRequest)
	})
	assert.ErrorIs(t, err, bot.ErrorBadRequest)
	assert.Equal(t, 1, calls)
}

func TestDo_FloodControl(t *testing.T) {
	s := testSender()
	calls := 0
	err := s.do(context.Background(), false, func(context.Context) error {
		calls++
		return &bot.TooManyRequestsError{RetryAfter: 1}
	})
	_, ok := AsRateLimited(err)
	assert.True(t, ok, "broadcast path hands flood control back to the caller")
	assert.Equal(t, 1, calls)

	calls = 0
	err = s.do(context.Background(), true, func(context.Context) error {
		calls++
		if calls == 1 {
			return &bot.TooManyRequestsError{RetryAfter: 0}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestIsMember(t *testing.T) {
	assert.False(t, IsMember(nil))
	assert.True(t, IsMember(&models.ChatMember{Type: models.ChatMemberTypeMember}))
	assert.True(t, IsMember(&models.ChatMember{Type: models.ChatMemberTypeOwner}))
	assert.False(t, IsMember(&models.ChatMember{Type: models.ChatMemberTypeLeft}))
	assert.False(t, IsMember(&models.ChatMember{Type: models.ChatMemberTypeBanned}))
	assert.True(t, IsMember(&models.ChatMember{
		Type:       models.ChatMemberTypeRestricted,
		Restricted: &models.ChatMemberRestricted{IsMember: true},
	}))
}
