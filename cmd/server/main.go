package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"duahabit/content"
	"duahabit/internal/auth"
	"duahabit/internal/catalog"
	"duahabit/internal/config"
	"duahabit/internal/db"
	api "duahabit/internal/http"
	"duahabit/internal/practice"
	"duahabit/internal/service"
	"duahabit/internal/storage"
	"duahabit/migrations"

	"github.com/rs/zerolog"
)

func main() {
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)

	pack, err := loadPack(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load content pack")
	}

	ctx := context.Background()
	var store storage.Store
	switch cfg.Store {
	case "memory":
		store = storage.NewMemory()
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect db")
		}
		defer pool.Close()
		if err := db.RunMigrations(ctx, pool, migrations.FS); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
		store = storage.NewPostgres(pool)
	}

	if err := store.SeedCatalog(ctx, *pack); err != nil {
		log.Fatal().Err(err).Msg("failed to seed catalog")
	}

	authManager := auth.NewManager(cfg.JWTSecret)
	svc := service.New(store, authManager)
	engine := practice.New(store)

	handler := &api.API{
		Store:     store,
		Service:   svc,
		Engine:    engine,
		Auth:      authManager,
		Origins:   splitOrigins(cfg.CORSOrigin),
		Log:       log,
		RateRPS:   cfg.RateLimitRPS,
		RateBurst: cfg.RateLimitBurst,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.Store).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
}

func loadPack(cfg config.Config) (*catalog.Pack, error) {
	if cfg.ContentFile != "" {
		return catalog.Load(cfg.ContentFile)
	}
	return content.Default()
}

func splitOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
