package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"gatecheck/internal/checkin"
	"gatecheck/internal/events"
	"gatecheck/internal/guestlist/enrich"
	"gatecheck/internal/guestlist/metrics"
	"gatecheck/internal/guestlist/ports"
	"gatecheck/internal/guestlist/store"
	"gatecheck/internal/identity"
	"gatecheck/internal/notify"
	"gatecheck/internal/platform/config"
	"gatecheck/internal/platform/httpserver"
	"gatecheck/internal/platform/logger"
	platformredis "gatecheck/internal/platform/redis"
	"gatecheck/internal/session"
	httptransport "gatecheck/internal/transport/http"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis setup failed", "error", err)
		os.Exit(1)
	}
	var guestStore ports.GuestStore
	if redisClient != nil {
		guestStore = store.NewRedis(redisClient.Client, store.WithLogger(log))
		defer redisClient.Close()
		log.Info("guest store: redis")
	} else {
		guestStore = store.NewMemory()
		log.Info("guest store: in-memory (single instance)")
	}

	var notifier ports.Notifier
	if len(cfg.Kafka.Seeds) > 0 {
		kafka, err := notify.NewKafka(ctx, cfg.Kafka.Seeds, cfg.Kafka.Topic, notify.WithKafkaLogger(log))
		if err != nil {
			log.Error("kafka setup failed", "error", err)
			os.Exit(1)
		}
		defer kafka.Close()
		notifier = kafka
		log.Info("notifier: kafka", "topic", cfg.Kafka.Topic)
	} else {
		notifier = notify.NewLog(log)
		log.Info("notifier: log only")
	}

	// TODO: swap the in-memory directory and event source for the campus
	// directory and events-service clients once their APIs stabilize.
	directory := identity.NewMemoryDirectory()
	eventSource := events.NewMemorySource()

	resolver := identity.NewResolver(directory, identity.WithLogger(log))
	machine, err := checkin.New(guestStore, eventSource, resolver,
		checkin.WithLogger(log),
		checkin.WithNotifier(notifier),
		checkin.WithMetrics(m),
	)
	if err != nil {
		log.Error("check-in service setup failed", "error", err)
		os.Exit(1)
	}
	enricher := enrich.New(directory, enrich.WithLogger(log), enrich.WithMetrics(m))
	sessions := session.NewManager(guestStore, eventSource, machine, enricher,
		session.WithManagerLogger(log),
		session.WithManagerMetrics(m),
	)
	defer sessions.CloseAll()

	handler := httptransport.NewHandler(sessions, log)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler, log))

	go func() {
		log.Info("starting gatecheck", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
