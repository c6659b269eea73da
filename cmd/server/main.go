// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jason-s-yu/scribble/internal/auth"
	"github.com/jason-s-yu/scribble/internal/cache"
	"github.com/jason-s-yu/scribble/internal/config"
	"github.com/jason-s-yu/scribble/internal/database"
	"github.com/jason-s-yu/scribble/internal/handlers"
	"github.com/jason-s-yu/scribble/internal/identity"
	"github.com/jason-s-yu/scribble/internal/room"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	logger := cfg.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("server exited")
		os.Exit(1)
	}
	logger.Info("server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	issuer, err := newIssuer(cfg)
	if err != nil {
		return err
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	hasher := auth.NewHasher(auth.DefaultParams)
	players := database.NewPlayers(pool, hasher)

	// Redis is optional: without it names come straight from Postgres and
	// room events are not archived.
	var (
		nameCache identity.NameCache
		sink      room.EventSink
	)
	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.WithError(err).Warn("redis unavailable, running without name cache and room events")
	} else {
		defer rdb.Close()
		nameCache = cache.NewNameCache(rdb, cfg.NameCacheTTL)
		sink = cache.NewEventQueue(rdb, cfg.RoomEventQueue)
	}
	names := identity.NewCachedResolver(nameCache, players, logger)

	rooms := room.NewRegistry(room.Options{
		GracePeriod:     cfg.RoomGracePeriod,
		DefaultCapacity: cfg.RoomDefaultCapacity,
		DefaultRounds:   cfg.RoomDefaultRounds,
		Hasher:          hasher,
		Names:           names,
		Sink:            sink,
		Logger:          logger,
	})

	srv := &handlers.Server{
		Rooms:          rooms,
		Players:        players,
		Names:          names,
		Issuer:         issuer,
		Log:            logger,
		OriginPatterns: originPatterns(cfg.AllowedOrigins),
	}
	httpSrv := &http.Server{
		Addr: cfg.Addr(),
		Handler: handlers.NewRouter(srv, handlers.RouterOptions{
			AllowedOrigins:     cfg.AllowedOrigins,
			RateLimitPerMinute: cfg.RateLimitPerMinute,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Running on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newIssuer(cfg *config.Config) (*auth.Issuer, error) {
	if cfg.AuthPrivateKeyPath != "" {
		return auth.NewIssuerFromFile(cfg.AuthPrivateKeyPath, cfg.PlayerTokenTTL, cfg.RoomTokenTTL)
	}
	return auth.NewIssuer(cfg.PlayerTokenTTL, cfg.RoomTokenTTL)
}

// originPatterns converts CORS origins to websocket host patterns.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if i := strings.Index(o, "://"); i >= 0 {
			o = o[i+3:]
		}
		patterns = append(patterns, o)
	}
	return patterns
}
