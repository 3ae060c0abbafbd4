package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/provtax/backend/internal/handler"
	"github.com/provtax/backend/internal/service"
	"github.com/provtax/backend/internal/store"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if os.Getenv("LOG_PRETTY") == "true" {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8111"
	}

	ctx := context.Background()

	useMemoryStore := os.Getenv("USE_MEMORY_STORE") == "true" || os.Getenv("ENV") == "local"

	var storeImpl store.Store
	if useMemoryStore {
		log.Info().Msg("using in-memory store for local development")
		storeImpl = store.NewMemoryStore()
	} else {
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			log.Fatal().Msg("DATABASE_URL is required unless USE_MEMORY_STORE=true")
		}
		pg, err := store.NewPostgresStore(ctx, dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("connecting to postgres failed")
		}
		storeImpl = pg
	}
	defer storeImpl.Close()

	if err := store.Seed(ctx, storeImpl); err != nil {
		log.Fatal().Err(err).Msg("seeding failed")
	}

	ingest := service.NewIngestService(storeImpl, log)
	transactions := service.NewTransactionService(storeImpl, log)
	reports := service.NewReportService(storeImpl, log)

	e := echo.New()
	e.HideBanner = true
	handler.New(ingest, transactions, reports, log).Register(e)

	allowedOrigins := []string{"http://localhost:1234", "http://127.0.0.1:1234"}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		allowedOrigins = strings.Split(v, ",")
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "User-Agent"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: h2c.NewHandler(c.Handler(e), &http2.Server{}),
	}

	go func() {
		log.Info().Str("port", port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}
