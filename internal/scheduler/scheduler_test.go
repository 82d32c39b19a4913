package scheduler

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls    atomic.Int32
	err      error
	deadline atomic.Bool
}

func (c *countingSweeper) Sweep(ctx context.Context) (int, error) {
	c.calls.Add(1)
	_, ok := ctx.Deadline()
	c.deadline.Store(ok)
	return 2, c.err
}

func quiet() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestAddSweep_InvalidSpec(t *testing.T) {
	s := New(quiet())
	err := s.AddSweep("every now and then", &countingSweeper{}, time.Second)
	assert.Error(t, err)
}

func TestRunSweep(t *testing.T) {
	s := New(quiet())
	sw := &countingSweeper{}
	s.runSweep(sw, time.Second)
	assert.EqualValues(t, 1, sw.calls.Load())
	assert.True(t, sw.deadline.Load())

	sw.err = errors.New("redis down")
	s.runSweep(sw, 0)
	assert.EqualValues(t, 2, sw.calls.Load())
	assert.False(t, sw.deadline.Load())
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	s := New(quiet())
	sw := &countingSweeper{}
	require.NoError(t, s.AddSweep("@every 1s", sw, time.Second))
	s.Start()

	assert.Eventually(t, func() bool { return sw.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
