// README: Entry point; loads config, wires services, starts the realtime relay and the HTTP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"medtrans/internal/config"
	httptransport "medtrans/internal/http"
	"medtrans/internal/http/middleware"
	"medtrans/internal/infra"
	applog "medtrans/internal/log"
	"medtrans/internal/modules/booking"
	"medtrans/internal/modules/driver"
	"medtrans/internal/modules/realtime"
	"medtrans/internal/modules/timeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		base := applog.Base()
		base.Fatal().Err(err).Msg("load config")
	}
	applog.Configure(applog.Config{Level: cfg.LogLevel, Service: "medtrans-api"})
	log := applog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Firebase.ProjectID == "" {
		log.Fatal().Msg("MEDTRANS_FIREBASE_PROJECT_ID is required")
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("firebase init")
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres")
	}
	defer dbPool.Close()

	hub := realtime.NewHub()
	var broker realtime.Broker = hub
	if cfg.Redis.Addr != "" {
		redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			log.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		relay := realtime.NewRedisBroker(redisClient, cfg.Redis.Channel, hub)
		broker = relay
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error().Err(err).Msg("realtime relay stopped")
			}
		}()
	} else {
		log.Warn().Msg("no redis configured; realtime events reach this instance only")
	}

	var sinks []realtime.Sink
	if cfg.AMQP.URL != "" {
		pub, err := infra.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.Fatal().Err(err).Msg("rabbitmq")
		}
		defer pub.Close()
		sinks = append(sinks, realtime.NewAMQPSink(pub))
	}
	notifier := realtime.NewNotifier(broker, sinks...)

	banPolicy, err := driver.ParseBanPolicy(cfg.Driver.BanPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("driver config")
	}

	timelineStore := timeline.NewStore(dbPool)
	bookingStore := booking.NewStore(dbPool, timelineStore, cfg.DB.LockTimeout)
	bookingSvc := booking.NewService(bookingStore, notifier)

	driverStore := driver.NewStore(dbPool)
	driverSvc := driver.NewService(driverStore, bookingSvc, banPolicy)

	gin.SetMode(gin.ReleaseMode)
	router := httptransport.NewRouter(httptransport.RouterDeps{
		Booking:       bookingSvc,
		Driver:        driverSvc,
		Hub:           hub,
		Verifier:      verifier,
		StatusLimiter: middleware.NewKeyedLimiter(cfg.Driver.StatusRate, cfg.Driver.StatusBurst),
	})

	log.Info().Str("ban_policy", string(driverSvc.Policy())).Msg("services ready")
	if err := httptransport.NewServer(cfg.HTTP.Addr, router).Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("http server")
	}
}
