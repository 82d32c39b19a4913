// Package scheduler runs periodic maintenance jobs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Sweeper expires sessions idle past their timeout and reports how many it closed.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
	stop context.CancelFunc
	log  logrus.FieldLogger
}

func New(log logrus.FieldLogger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	printf := cron.PrintfLogger(log)
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.Recover(printf), cron.SkipIfStillRunning(printf))),
		ctx:  ctx,
		stop: cancel,
		log:  log,
	}
}

// AddSweep registers the inactivity sweep. Each run gets at most timeout to finish;
// a run still going when the next tick fires makes that tick a no-op.
func (s *Scheduler) AddSweep(spec string, sw Sweeper, timeout time.Duration) error {
	_, err := s.cron.AddFunc(spec, func() { s.runSweep(sw, timeout) })
	if err != nil {
		return fmt.Errorf("schedule sweep %q: %w", spec, err)
	}
	return nil
}

func (s *Scheduler) runSweep(sw Sweeper, timeout time.Duration) {
	ctx := s.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	started := time.Now()
	n, err := sw.Sweep(ctx)
	log := s.log.WithFields(logrus.Fields{"expired": n, "took": time.Since(started)})
	if err != nil {
		log.WithError(err).Error("session sweep failed")
		return
	}
	if n > 0 {
		log.Info("session sweep")
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	s.stop()
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
}
