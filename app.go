package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/BatmanBruc/mother-bot/internal/admin"
	"github.com/BatmanBruc/mother-bot/internal/broadcast"
	"github.com/BatmanBruc/mother-bot/internal/config"
	"github.com/BatmanBruc/mother-bot/internal/events"
	"github.com/BatmanBruc/mother-bot/internal/handlers"
	"github.com/BatmanBruc/mother-bot/internal/ledger"
	"github.com/BatmanBruc/mother-bot/internal/messages"
	"github.com/BatmanBruc/mother-bot/internal/metrics"
	"github.com/BatmanBruc/mother-bot/internal/middleware"
	"github.com/BatmanBruc/mother-bot/internal/onboarding"
	"github.com/BatmanBruc/mother-bot/internal/payments"
	"github.com/BatmanBruc/mother-bot/internal/referral"
	"github.com/BatmanBruc/mother-bot/internal/scheduler"
	"github.com/BatmanBruc/mother-bot/internal/transport"
	"github.com/BatmanBruc/mother-bot/internal/workflow"
	"github.com/BatmanBruc/mother-bot/store"
	"github.com/BatmanBruc/mother-bot/types"
)

type stores struct {
	users     types.UserStore
	shops     types.ShopStore
	payments  types.PaymentStore
	referrals types.ReferralStore
	sessions  types.SessionStore
	checks    map[string]metrics.Pinger
	closers   []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*stores, error) {
	s := &stores{checks: map[string]metrics.Pinger{}}

	if cfg.Storage == "memory" {
		log.Warn("STORAGE=memory: all data is lost on restart")
		mem := store.NewMemoryStore()
		s.users, s.shops, s.payments, s.referrals, s.sessions = mem, mem, mem, mem, mem
		return s, nil
	}

	pg, err := store.NewPostgresStore(ctx, cfg.DSN(), false)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s.closers = append(s.closers, pg.Close)
	s.users, s.shops, s.payments, s.referrals = pg, pg, pg, pg
	s.checks["postgres"] = pg

	rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr(), cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
	if err != nil {
		s.close()
		return nil, err
	}
	s.closers = append(s.closers, func() { _ = rdb.Close() })
	s.sessions = store.NewRedisSessionStore(rdb, cfg.SessionTimeout)
	s.checks["redis"] = rdb
	return s, nil
}

func migrate(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) error {
	pg, err := store.NewPostgresStore(ctx, cfg.DSN(), true)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()
	if err := pg.Migrate(ctx); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	var pub events.Publisher = events.Nop{}
	if cfg.NATSURL != "" {
		nc, err := events.NewNATSPublisher(cfg.NATSURL, "motherbot", log)
		if err != nil {
			return err
		}
		defer nc.Close()
		pub = nc
		st.checks["nats"] = nc
	}

	httpClient := &http.Client{Timeout: 2 * time.Minute}
	b, err := bot.New(cfg.BotToken, bot.WithHTTPClient(50*time.Second, httpClient))
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}
	me, err := b.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("get bot identity: %w", err)
	}
	sender := transport.NewSender(b, log)

	adminIDs := cfg.AdminIDs()
	if len(adminIDs) == 0 {
		log.Warn("ADMIN_USER_IDS is empty: receipts cannot be reviewed")
	}

	presenter := handlers.NewPresenter(sender, st.users, messages.NewRenderer(catalog, cfg.PaymentCard), catalog, adminIDs, log)
	dispatcher := broadcast.New(sender, st.users, cfg.BroadcastRate, cfg.BroadcastWorkers, log)
	subs := ledger.New(st.users, time.Now, log)
	refs := referral.NewEngine(st.users, st.referrals, catalog.Referral, time.Now, log)

	queue := payments.NewQueue(payments.Deps{
		Payments:  st.payments,
		Catalog:   catalog,
		Ledger:    subs,
		Referrals: refs,
		Notifier:  presenter,
		Events:    pub,
		Log:       log,
	})
	svc := onboarding.NewService(onboarding.Deps{
		Sessions:    st.sessions,
		Users:       st.users,
		Shops:       st.shops,
		Payments:    st.payments,
		Engine:      workflow.NewEngine(catalog),
		Queue:       queue,
		Ledger:      subs,
		Referrals:   refs,
		Broadcaster: dispatcher,
		Presenter:   presenter,
		Receipts:    presenter,
		Reports:     presenter,
		Events:      pub,
		Timeout:     cfg.SessionTimeout,
		Log:         log,
	})
	queue.SetResumer(svc)
	adm := admin.NewService(adminIDs, st.users, st.shops, queue, presenter, pub, log)

	h := handlers.NewHandlers(handlers.Deps{
		Flow:        svc,
		Admin:       adm,
		Sessions:    st.sessions,
		Shops:       st.shops,
		Out:         sender,
		Presenter:   presenter,
		BotUsername: me.Username,
		Log:         log,
	})
	mw := middleware.New(svc, st.users, sender, cfg.RequiredChannel, sender, log)
	handlerChain := mw.AnalyzeMessageMiddleware(
		mw.ResolveUserMiddleware(
			mw.MembershipGateMiddleware(
				h.MainHandler,
			),
		),
	)
	b.RegisterHandlerMatchFunc(func(update *models.Update) bool {
		return update.Message != nil
	}, handlerChain)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, handlerChain)

	sched := scheduler.New(log)
	if err := sched.AddSweep(cfg.SweepSpec, svc, time.Minute); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return metrics.Serve(gctx, cfg.MetricsAddr, metrics.Router(st.checks), log)
	})
	g.Go(func() error {
		sched.Start()
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sched.Stop(stopCtx)
		return nil
	})
	g.Go(func() error {
		log.WithField("bot", me.Username).Info("bot started")
		b.Start(gctx)
		return nil
	})

	err = g.Wait()
	svc.Wait()
	log.Info("bot stopped")
	return err
}
