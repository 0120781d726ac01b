// README: Entry point; loads config, wires services, starts HTTP server and background schedulers.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"buggy/internal/config"
	httptransport "buggy/internal/http"
	"buggy/internal/infra"
	"buggy/internal/logger"
	"buggy/internal/maps"
	"buggy/internal/modules/driver"
	"buggy/internal/modules/location"
	"buggy/internal/modules/matching"
	"buggy/internal/modules/notify"
	"buggy/internal/modules/ride"
	"buggy/internal/modules/shift"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	lg := logger.New(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, err := location.LoadCatalog(cfg.Locations.File)
	if err != nil {
		log.Fatalf("location catalog: %v", err)
	}
	shiftTZ, err := shift.LoadLocation(cfg.Shift.Timezone)
	if err != nil {
		log.Fatal(err)
	}

	var app *firebase.App
	if !cfg.Firebase.AuthDisabled || cfg.Notify.FCM {
		app, err = infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			log.Fatalf("firebase init: %v", err)
		}
	}
	var verifier infra.TokenVerifier = infra.DevVerifier{}
	if cfg.Firebase.AuthDisabled {
		lg.Warning("auth disabled, accepting uid:role bearer tokens")
	} else {
		verifier, err = infra.NewFirebaseVerifier(ctx, app)
		if err != nil {
			log.Fatalf("firebase auth: %v", err)
		}
	}

	var (
		rideStore  ride.Store
		roster     driver.Roster
		liveness   driver.Liveness
		shiftStore shift.Store
		settings   matching.SettingsStore
		cooldown   matching.CooldownStore
		subs       notify.SubscriptionStore
	)
	switch cfg.Store {
	case config.StorePostgres:
		dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			log.Fatal(err)
		}
		defer dbPool.Close()
		redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal(err)
		}
		defer redisClient.Close()
		rideStore, roster, liveness, shiftStore = postgresStores(dbPool, redisClient)
		settings = matching.NewRedisSettings(redisClient)
		cooldown = matching.NewRedisCooldown(redisClient)
		subs = notify.NewRedisSubscriptions(redisClient)
	default:
		mem := driver.NewMemoryStore()
		rideStore, roster, liveness = ride.NewMemoryStore(), mem, mem
		shiftStore = shift.NewMemoryStore()
		settings = matching.NewMemorySettings()
		cooldown = matching.NewMemoryCooldown(time.Now)
		subs = notify.NewMemorySubscriptions()
		lg.Warning("running with in-memory stores, state is lost on restart")
	}

	webpushOptions := &webpush.Options{
		VAPIDPublicKey:  cfg.WebPush.PublicKey,
		VAPIDPrivateKey: cfg.WebPush.PrivateKey,
		Subscriber:      cfg.WebPush.Subscriber,
		TTL:             300,
	}
	sinks := []notify.Notifier{notify.NewLogNotifier(lg)}
	if cfg.WebPush.PublicKey != "" && cfg.WebPush.PrivateKey != "" {
		sinks = append(sinks, notify.NewWebPushNotifier(subs, webpushOptions, lg))
	}
	if cfg.Notify.FCM {
		client, err := infra.NewMessaging(ctx, app)
		if err != nil {
			log.Fatal(err)
		}
		sinks = append(sinks, notify.NewFCMNotifier(client))
	}
	dispatcher := notify.NewDispatcher(cfg.Notify.Workers, cfg.Notify.QueueSize, lg, sinks...)
	dispatcher.Start(ctx)

	rideSvc := ride.NewService(rideStore, dispatcher, lg, cfg.Ride)
	resolver := driver.NewResolver(catalog, driver.ThresholdsFromConfig(cfg.Driver))
	driverSvc := driver.NewService(roster, liveness, rideSvc, resolver, cfg.Driver, lg)
	shiftSvc := shift.NewService(shiftStore, shiftTZ)

	var eta matching.ETAEstimator = matching.NewCatalogETA(catalog, cfg.Matching.BuggySpeedKmh)
	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			log.Fatal(err)
		}
		eta = matching.NewRouteETA(catalog, routes, eta, lg)
	}
	matchingSvc := matching.NewService(matching.Deps{
		Rides:    rideSvc,
		Drivers:  driverSvc,
		Shifts:   shiftSvc,
		Settings: settings,
		Cooldown: cooldown,
		ETA:      eta,
		Distance: catalog,
		Log:      lg,
	}, cfg.Matching)

	router := httptransport.NewRouter(httptransport.ServerDeps{
		Rides:         rideSvc,
		Drivers:       driverSvc,
		Matching:      matchingSvc,
		Shifts:        shiftSvc,
		Catalog:       catalog,
		Subscriptions: subs,
		WebPush:       webpushOptions,
		Verifier:      verifier,
		Log:           lg,
		RateLimit:     cfg.HTTP.RateLimit,
		RateBurst:     cfg.HTTP.RateBurst,
		BoardCache:    cfg.HTTP.BoardCache,
	})
	server := httptransport.NewServer(cfg.HTTP.Addr, router)

	go matchingSvc.RunScheduler(ctx)

	go func() {
		lg.Info("http server starting", logger.String("addr", cfg.HTTP.Addr), logger.String("store", cfg.Store))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	lg.Info("shutdown signal received, stopping services")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error("http server shutdown", logger.Error(err))
	}
	lg.Info("server gracefully stopped")
}

func postgresStores(db *pgxpool.Pool, rdb *redis.Client) (ride.Store, driver.Roster, driver.Liveness, shift.Store) {
	return ride.NewPostgresStore(db), driver.NewPostgresRoster(db), driver.NewRedisLiveness(rdb), shift.NewPostgresStore(db)
}
