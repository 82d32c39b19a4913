// Package broadcast fans one message out to many recipients under an outbound rate limit.
package broadcast

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/BatmanBruc/mother-bot/internal/metrics"
	"github.com/BatmanBruc/mother-bot/internal/transport"
	"github.com/BatmanBruc/mother-bot/types"
)

const defaultMaxAttempts = 5

type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// StatusSetter marks recipients that can no longer be reached.
type StatusSetter interface {
	SetUserStatus(ctx context.Context, userID int64, status types.UserStatus) error
}

// Report counts the outcome per recipient. Deferred recipients were still under flood
// control after every attempt; they are not failures and can be sent to again later.
type Report struct {
	Sent        int
	Failed      int
	FailedIDs   []int64
	Deferred    int
	DeferredIDs []int64
}

type Dispatcher struct {
	sender      Sender
	users       StatusSetter
	limiter     *rate.Limiter
	workers     int
	maxAttempts int
	log         logrus.FieldLogger
}

// New builds a dispatcher sending at most perSecond messages per second over workers
// goroutines. perSecond <= 0 disables the limit.
func New(sender Sender, users StatusSetter, perSecond float64, workers int, log logrus.FieldLogger) *Dispatcher {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		sender:      sender,
		users:       users,
		limiter:     rate.NewLimiter(limit, 1),
		workers:     workers,
		maxAttempts: defaultMaxAttempts,
		log:         log,
	}
}

// gate pauses every worker after a flood-control signal.
type gate struct {
	mu    sync.Mutex
	until time.Time
}

func (g *gate) pause(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t := time.Now().Add(d); t.After(g.until) {
		g.until = t
	}
}

func (g *gate) wait(ctx context.Context) error {
	g.mu.Lock()
	until := g.until
	g.mu.Unlock()

	d := time.Until(until)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Broadcast delivers text to every recipient. Permanent failures are counted and
// skipped; flood control pauses the whole pipeline and retries the same recipient,
// which ends up Deferred if the limit outlasts every attempt.
// The returned error is non-nil only when ctx ends before all recipients were tried.
func (d *Dispatcher) Broadcast(ctx context.Context, text string, recipients []int64) (Report, error) {
	var (
		mu     sync.Mutex
		report Report
		fl     gate
	)
	record := func(id int64, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			report.Sent++
			metrics.RecordDelivery("sent")
			return
		}
		if _, ok := transport.AsRateLimited(err); ok {
			report.Deferred++
			report.DeferredIDs = append(report.DeferredIDs, id)
			metrics.RecordDelivery("deferred")
			return
		}
		report.Failed++
		report.FailedIDs = append(report.FailedIDs, id)
		if transport.IsPermanent(err) {
			metrics.RecordDelivery("unreachable")
		} else {
			metrics.RecordDelivery("failed")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for _, id := range recipients {
		if gctx.Err() != nil {
			break
		}
		id := id
		g.Go(func() error {
			err := d.deliver(gctx, &fl, id, text)
			if gctx.Err() != nil && err != nil && !transport.IsPermanent(err) {
				return gctx.Err()
			}
			record(id, err)
			return nil
		})
	}
	err := g.Wait()

	sort.Slice(report.FailedIDs, func(i, j int) bool { return report.FailedIDs[i] < report.FailedIDs[j] })
	sort.Slice(report.DeferredIDs, func(i, j int) bool { return report.DeferredIDs[i] < report.DeferredIDs[j] })
	d.log.WithFields(logrus.Fields{
		"recipients": len(recipients),
		"sent":       report.Sent,
		"failed":     report.Failed,
		"deferred":   report.Deferred,
	}).Info("broadcast finished")
	return report, err
}

func (d *Dispatcher) deliver(ctx context.Context, fl *gate, id int64, text string) error {
	var err error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if err := fl.wait(ctx); err != nil {
			return err
		}
		if err := d.limiter.Wait(ctx); err != nil {
			// the limiter refuses early when the deadline cannot be met
			<-ctx.Done()
			return ctx.Err()
		}

		err = d.sender.Send(ctx, id, text)
		if err == nil {
			return nil
		}
		if rl, ok := transport.AsRateLimited(err); ok {
			metrics.RecordFloodPause()
			d.log.WithFields(logrus.Fields{"user_id": id, "retry_after": rl.RetryAfter}).Warn("flood control, pausing broadcast")
			fl.pause(rl.RetryAfter)
			continue
		}
		if transport.IsPermanent(err) {
			if d.users != nil {
				if serr := d.users.SetUserStatus(ctx, id, types.UserBlocked); serr != nil {
					d.log.WithError(serr).WithField("user_id", id).Warn("mark user blocked")
				}
			}
			return err
		}
		d.log.WithError(err).WithField("user_id", id).Warn("broadcast delivery failed")
		return err
	}
	return err
}
