package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/hushline/hushline/internal/auth"
	"github.com/hushline/hushline/internal/blob"
	"github.com/hushline/hushline/internal/cache"
	"github.com/hushline/hushline/internal/config"
	"github.com/hushline/hushline/internal/crypto"
	"github.com/hushline/hushline/internal/mailer"
	"github.com/hushline/hushline/internal/metrics"
	"github.com/hushline/hushline/internal/pgp"
	"github.com/hushline/hushline/internal/store"
)

const (
	mailRate       = time.Second
	mailBuffer     = 100
	mailMaxRetry   = 3
	sessionSweep   = time.Hour
	shutdownPeriod = 30 * time.Second
)

type App struct {
	config   *config.Config
	logger   *slog.Logger
	db       *sqlx.DB
	store    *store.Store
	cache    *cache.RedisCache
	blobs    blob.Store
	assets   http.Handler
	crypter  *crypto.Crypter
	queue    *mailer.Queue
	notifier *mailer.Notifier
	proton   *pgp.ProtonClient
	metrics  *metrics.Metrics
}

func (app *App) Close() {
	if app.cache != nil {
		app.cache.Close()
	}
	app.db.Close()
}

func New(cfg *config.Config) (*App, error) {
	logger := newLogger(cfg)

	ctx := context.Background()
	db, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	app := &App{
		config:  cfg,
		logger:  logger,
		db:      db,
		proton:  pgp.NewProtonClient(cfg.ProtonKeyLookupURL),
		metrics: metrics.New(),
	}

	var settingsCache store.Cache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		app.cache = cache.NewRedisCache(rdb, cfg.Redis.TTL)
		settingsCache = app.cache
	}
	app.store = store.New(db, settingsCache)

	if err := app.openBlobs(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	app.crypter, err = crypto.New(cfg.EncryptionKey)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init crypter: %w", err)
	}

	app.queue = mailer.NewQueue(mailer.New(), mailRate, mailBuffer, mailMaxRetry)
	app.queue.OnResult(app.metrics.NotificationResult)
	app.notifier = mailer.NewNotifier(app.queue, defaultRelay(cfg.SMTP), app.crypter.DecryptString)

	err = app.store.InTx(ctx, func(tx *store.Store) error {
		return auth.SeedFirstAdmin(ctx, tx.Users, cfg.Seed.Username, cfg.Seed.Password)
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("seed first admin: %w", err)
	}

	return app, nil
}

func (app *App) openBlobs(ctx context.Context) error {
	bc := app.config.Blob
	switch bc.Driver {
	case "s3":
		s3Store, err := blob.NewS3Store(ctx, blob.S3Config{
			Bucket:         bc.S3Bucket,
			Region:         bc.S3Region,
			AccessKeyID:    bc.S3AccessKey,
			SecretKey:      bc.S3SecretKey,
			Endpoint:       bc.S3Endpoint,
			BaseURL:        bc.PublicURL,
			ForcePathStyle: bc.S3UsePathStyle,
		})
		if err != nil {
			return err
		}
		app.blobs = s3Store
	default:
		local, err := blob.NewLocalStore(bc.FileRoot, bc.PublicURL)
		if err != nil {
			return err
		}
		app.blobs = local
		app.assets = local.Handler()
	}
	return nil
}

// defaultRelay is nil when no instance SMTP server is configured, leaving
// only users with their own server able to receive notifications.
func defaultRelay(c config.SMTPConfig) *mailer.Config {
	if !c.Enabled() {
		return nil
	}
	return &mailer.Config{
		Host:        c.Host,
		Port:        c.Port,
		Username:    c.Username,
		Password:    c.Password,
		FromName:    "Hush Line",
		FromAddress: c.Sender,
		Encryption:  c.Encryption,
	}
}

func (app *App) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", app.config.Port),
		Handler:      app.routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(app.logger.Handler(), slog.LevelError),
	}

	g.Go(func() error {
		app.logger.Info("starting server", "addr", srv.Addr, "env", app.config.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		app.queue.Start(gctx)
		return nil
	})

	g.Go(func() error {
		app.sweepSessions(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		app.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownPeriod)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	app.logger.Info("stopped server")
	return nil
}

// sweepSessions removes expired sessions until ctx is cancelled.
func (app *App) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(sessionSweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.store.Sessions.DeleteExpired(ctx)
			if err != nil {
				app.logger.Warn("session sweep failed", "err", err)
				continue
			}
			if n > 0 {
				app.logger.Debug("expired sessions removed", "count", n)
			}
		}
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	logLevel := slog.LevelInfo

	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))

	slog.SetDefault(logger)
	return logger
}
