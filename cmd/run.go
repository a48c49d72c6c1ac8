package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"banker/config"
	"banker/database"
	"banker/events"
	"banker/infrastructure"
	"banker/policy"
	"banker/repository"
	"banker/service"
)

// Run initializes and starts the interest service
func Run(ctx context.Context) error {
	cfg := config.Get()
	if err := cfg.ConfigureLogging(); err != nil {
		return err
	}

	log.WithField("environment", cfg.Environment).Info("Starting banker...")

	location, err := cfg.Location()
	if err != nil {
		return err
	}

	// Policy defaults
	store, err := loadPolicies(cfg.PolicyFile)
	if err != nil {
		return err
	}

	// Database
	log.Info("Connecting to database...")
	db, err := database.NewConnectionWithRetry(ctx, cfg.GetDatabaseURL(), 10, 3*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	log.Info("Database connection established successfully")

	// Presence
	redisClient, err := infrastructure.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()
	presence := infrastructure.NewRedisPresence(redisClient, cfg.PresenceTTL)

	eventBus := events.NewBus()
	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)

	// NATS is optional: without it events stay in process and presence is
	// only as fresh as whatever else writes to redis
	var nc *nats.Conn
	if cfg.NATSServers != "" {
		nc, err = infrastructure.ConnectNATS(cfg.NATSServers)
		if err != nil {
			return err
		}
		defer nc.Close()

		infrastructure.NewNATSBridge(nc).Attach(eventBus)

		sub, err := infrastructure.NewPresenceListener(presence).Subscribe(ctx, nc)
		if err != nil {
			return err
		}
		defer func() {
			if err := sub.Drain(); err != nil {
				log.WithError(err).Warn("Failed to drain presence subscription")
			}
		}()
	} else {
		log.Warn("NATS_SERVERS not set, event bridge and admin requests disabled")
	}

	metrics := infrastructure.NewMetrics()

	scheduler := service.NewInterestScheduler(
		store,
		service.NewWalletPaymentService(uowFactory),
		repository.NewPersistence(db),
		presence,
		eventBus,
	)
	scheduler.SetRunRepository(repository.NewInterestRunRepository(db))
	scheduler.SetObserver(metrics)

	if cfg.DiscordToken != "" {
		session, err := infrastructure.NewDiscordSession(cfg.DiscordToken)
		if err != nil {
			return err
		}
		defer session.Close()
		scheduler.SetNotifier(infrastructure.NewDiscordNotifier(session))
	} else {
		log.Warn("DISCORD_TOKEN not set, player notifications disabled")
	}

	trigger := service.NewPayoutTrigger(uowFactory, store, scheduler, location)

	// Payout time changes take effect without a restart
	eventBus.Subscribe(events.EventTypePolicyChanged, func(_ context.Context, event events.Event) {
		changed, ok := event.(events.PolicyChangedEvent)
		if !ok || changed.Policy != string(policy.InterestPayoutTimes) {
			return
		}
		if err := trigger.ReloadBank(ctx, changed.BankID); err != nil {
			log.WithFields(log.Fields{
				"bank_id": changed.BankID,
				"error":   err,
			}).Error("Failed to reschedule bank after payout time change")
		}
	})

	if nc != nil {
		admin := infrastructure.NewAdminHandler(infrastructure.AdminServices{
			Banks:    service.NewBankService(uowFactory, store),
			Accounts: service.NewAccountService(uowFactory, store),
			Schedule: trigger,
			Runs:     repository.NewInterestRunRepository(db),
			Wallets:  repository.NewWalletRepository(db),
			Presence: presence,
		})
		subs, err := admin.Subscribe(ctx, nc)
		if err != nil {
			return err
		}
		defer func() {
			for _, sub := range subs {
				if err := sub.Drain(); err != nil {
					log.WithFields(log.Fields{
						"subject": sub.Subject,
						"error":   err,
					}).Warn("Failed to drain admin subscription")
				}
			}
		}()
	}

	stopTrigger, err := trigger.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start payout trigger: %w", err)
	}

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux(metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.WithField("addr", cfg.MetricsAddr).Info("Serving metrics")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server failed")
		}
	}()

	log.Info("Banker is running")
	<-ctx.Done()

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Error stopping metrics server")
	}

	done := make(chan struct{})
	go func() {
		stopTrigger()
		close(done)
	}()
	select {
	case <-done:
		log.Info("Shutdown completed")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout exceeded while waiting for payout cycle")
	}

	return nil
}

func loadPolicies(path string) (*policy.Store, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.WithField("path", path).Warn("Policy file not found, using built-in defaults")
		return policy.NewStore(), nil
	}

	store, err := policy.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load policies: %w", err)
	}
	log.WithFields(log.Fields{
		"path":               path,
		"stickyDefaults":     store.StickyDefaults(),
		"multipliersEnabled": store.MultipliersEnabled(),
	}).Info("Policies loaded")
	return store, nil
}

func metricsMux(metrics *infrastructure.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
