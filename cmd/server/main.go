// Command server runs the consent ledger API. Backends are optional: with
// no Postgres DSN the in-memory stores serve, with no Kafka brokers audit
// fan-out is disabled, with no Redis URL key resolution skips the cache.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"assent/internal/audit"
	"assent/internal/compliance"
	"assent/internal/keys"
	"assent/internal/ledger"
	"assent/internal/platform/config"
	"assent/internal/platform/httpserver"
	"assent/internal/platform/logger"
	"assent/internal/platform/metrics"
	platformredis "assent/internal/platform/redis"
	"assent/internal/storage"
	"assent/internal/storage/memory"
	"assent/internal/storage/postgres"
	httptransport "assent/internal/transport/http"
	"assent/internal/user"
	"assent/internal/withdrawal"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	var (
		stores storage.Stores
		tx     storage.Tx
	)
	if cfg.PostgresDSN != "" {
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return err
		}
		stores = postgres.NewStores(db)
		tx = postgres.NewTx(db)
		log.Info("using postgres storage")
	} else {
		stores = memory.NewStores()
		tx = memory.NewTx(stores)
		log.Info("using in-memory storage")
	}

	m := metrics.New()

	recorderOpts := []audit.Option{audit.WithLogger(log)}
	if len(cfg.KafkaBrokers) > 0 {
		recorderOpts = append(recorderOpts, audit.WithFanOut(1024))
	}
	recorder := audit.NewRecorder(stores.Audit, recorderOpts...)

	redisClient, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		log.Info("key resolution cache enabled")
	}

	crypter := keys.NewCrypter()
	keyManager := keys.NewManager(tx, stores, redisClient, crypter, log, m)

	ledgerSvc := ledger.NewService(tx, stores, recorder, log, m)
	engine := compliance.NewEngine(tx, stores, compliance.DefaultRegistry(), keyManager, recorder, log, m)
	processor := withdrawal.NewProcessor(tx, stores, recorder, log, m)
	users := user.NewService(tx, stores, log)

	handler := httptransport.NewHandler(log, ledgerSvc, engine, processor, users, keyManager, recorder)
	router := httptransport.NewRouter(handler, []byte(cfg.JWTSigningKey))
	srv := httpserver.New(cfg.Addr, router)

	group, ctx := errgroup.WithContext(ctx)

	if len(cfg.KafkaBrokers) > 0 {
		kafkaClient, err := audit.NewKafkaClient(cfg.KafkaBrokers)
		if err != nil {
			return err
		}
		defer kafkaClient.Close()
		worker := audit.NewWorker(audit.NewPublisher(kafkaClient, cfg.AuditTopic), recorder.Inbox(), log, m.AuditFanOutFailures.Inc)
		group.Go(func() error {
			err := worker.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		log.Info("audit fan-out enabled", "topic", cfg.AuditTopic)
	}

	group.Go(func() error {
		log.Info("consent ledger listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
