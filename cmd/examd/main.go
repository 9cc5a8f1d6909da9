package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	api "github.com/mind-engage/mindengage-exams/internal/api/http"
	auth "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/cache"
	"github.com/mind-engage/mindengage-exams/internal/config"
	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/storage"
	syncx "github.com/mind-engage/mindengage-exams/internal/sync"
)

func main() {
	cfg := config.FromEnv()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	driver := db.Normalize(cfg.DBDriver)
	dbh, err := db.Open(ctx, driver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	store := exam.NewSQLStore(dbh, driver)
	hostname, _ := os.Hostname()
	events := syncx.NewEventRepo(dbh, hostname)

	// --- Listing cache ---
	var listings exam.ListingCache
	switch cfg.CacheDriver {
	case "redis":
		rdb, err := cache.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		listings = cache.NewRedis(rdb, "examd", cfg.CacheTTL)
	case "none", "off":
	default:
		listings = cache.NewMemory(cfg.CacheTTL)
	}

	// --- Attachments ---
	var files storage.Resolver
	if cfg.AttachmentBaseURL != "" {
		files, err = storage.NewURLSigner(cfg.AttachmentBaseURL, cfg.AuthHMACSecret, storage.DefaultURLTTL)
	} else {
		files, err = storage.NewFSStore(cfg.BlobBasePath)
	}
	if err != nil {
		log.Fatalf("attachments: %v", err)
	}

	opts := []exam.Option{
		exam.WithLogger(logger),
		exam.WithEvents(events),
		exam.WithAttachments(files),
	}
	if listings != nil {
		opts = append(opts, exam.WithCache(listings))
	}
	engine := exam.NewEngine(store, opts...)

	// --- Auth (local JWT for offline/dev) ---
	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)

	h := api.NewRouter(api.RouterDeps{
		Engine:      engine,
		Events:      events,
		Attachments: files,
		Auth:        authSvc,
		Login: auth.LoginConfig{
			AdminUser:       cfg.AdminUser,
			AdminPassHash:   cfg.AdminPassHash,
			EnableLocalAuth: cfg.EnableLocalAuth,
		},
		CORSOrigins: cfg.CORSOrigins,
		DB:          dbh,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("listening on %s (mode=%s, db=%s, cache=%s)", cfg.HTTPAddr, cfg.Mode, driver, cfg.CacheDriver)
	log.Fatal(srv.ListenAndServe())
}
