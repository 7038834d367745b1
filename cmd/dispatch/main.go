package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/schedule-dispatch/internal/api"
	"github.com/LeventeLantos/schedule-dispatch/internal/auditlog"
	"github.com/LeventeLantos/schedule-dispatch/internal/client"
	"github.com/LeventeLantos/schedule-dispatch/internal/config"
	"github.com/LeventeLantos/schedule-dispatch/internal/dispatch"
	"github.com/LeventeLantos/schedule-dispatch/internal/scheduler"
	"github.com/LeventeLantos/schedule-dispatch/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	db, err := sql.Open("pgx", cfg.Database.PostgresURL)
	if err != nil {
		slog.Error("failed to open postgres", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			slog.Error("postgres unreachable", "err", err)
			os.Exit(1)
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("redis unreachable", "err", err)
			os.Exit(1)
		}
	}

	schedules := store.NewPostgresScheduleStore(db)
	audit := auditlog.NewRedisAuditLog(rdb, int64(cfg.Dispatch.LogCap))
	gateway := client.NewGatewayClient(cfg.Gateway.BaseURL, cfg.Gateway.InstanceID, cfg.Gateway.Token, cfg.Gateway.Timeout)
	watermarker := client.NewWatermarkClient(cfg.Watermark.URL, cfg.Watermark.Timeout)

	log := slog.Default()
	throttler := dispatch.NewThrottler(gateway, watermarker, audit, cfg.Dispatch.SendDelay, log)
	engine := dispatch.NewEngine(schedules, throttler, log)

	sched, err := scheduler.New(cfg.Scheduler.Interval, engine.Tick)
	if err != nil {
		slog.Error("failed to create scheduler", "err", err)
		os.Exit(1)
	}
	sched.AlignToMinute()
	sched.Start()

	h := api.NewHandler(sched, engine, schedules, audit, gateway)
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: loggingMiddleware(api.Router(h)),
	}

	go func() {
		slog.Info("dispatch service listening",
			"addr", cfg.Server.Address,
			"tick_interval", cfg.Scheduler.Interval.String(),
			"send_delay", cfg.Dispatch.SendDelay.String(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)

	// A dispatch pass started before the signal still runs every
	// recipient to completion, so hold the exit until it drains.
	engine.Wait()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
