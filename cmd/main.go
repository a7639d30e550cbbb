package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stovewatch/internal/detection"
	"stovewatch/internal/handlers"
	"stovewatch/internal/keepalive"
	"stovewatch/internal/location"
	"stovewatch/internal/logger"
	"stovewatch/internal/notify"
	"stovewatch/internal/repository"
	"stovewatch/internal/server"
	"stovewatch/internal/service"

	"github.com/spf13/viper"
)

func main() {
	// load config.yml first so the logger level is configurable
	if err := loadConfig(); err != nil {
		fallback := logger.New(logger.InfoLevel)
		fallback.Fatalw("error reading config", "err", err)
	}

	log := logger.New(viper.GetString("log.level"))

	// open DB
	db, err := openDB(log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// wire dependencies
	repos := repository.NewRepository(db)
	relay, provider := buildLocationSource(log)
	notifier, closeNotifier := buildNotifier(log)
	defer closeNotifier()

	detector := detection.NewClient(
		viper.GetString("detection.url"),
		viper.GetString("detection.api_key"),
		detection.Options{
			SensitivityTolerance: viper.GetFloat64("detection.sensitivity_tolerance"),
			AngleThreshold:       viper.GetFloat64("detection.angle_threshold"),
			Verbose:              viper.GetBool("detection.verbose"),
		},
		nil,
	)

	services := service.NewService(
		repos,
		provider,
		detector,
		notifier,
		keepalive.NewLogKeepAlive(log),
		geofenceConfig(),
		log,
	)
	apiHandler := handlers.NewHandler(services, relay, viper.GetString("auth.token"), log)

	// resume monitoring if it was enabled before the last shutdown
	resumeMonitoring(services, log)

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("port"), apiHandler, log)

	// graceful shutdown
	waitForShutdown(services, srv, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	return viper.ReadInConfig()
}

// openDB initializes the SQLite database using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "stovewatch.db")
		dbPath = "stovewatch.db"
	}
	return repository.InitDB(dbPath)
}

// buildLocationSource picks the position source from config. "relay" (the
// default) accepts pushed fixes on the API; "poll" fetches them from an
// external endpoint and registers no push route.
func buildLocationSource(log *logger.Logger) (*location.Relay, location.Provider) {
	switch mode := viper.GetString("location.mode"); mode {
	case "poll":
		url := viper.GetString("location.poll_url")
		if url == "" {
			log.Fatalw("location.mode is poll but location.poll_url is not set")
		}
		log.Infow("using polled location source", "url", url)
		return nil, location.NewHTTPProvider(url, nil)
	case "", "relay":
		relay := location.NewRelay(viper.GetDuration("location.max_fix_age"))
		return relay, relay
	default:
		log.Fatalw("unknown location.mode", "mode", mode)
		return nil, nil
	}
}

// buildNotifier assembles the notification fan-out: structured logs always,
// MQTT when a broker is configured. The returned func releases the MQTT
// connection on shutdown.
func buildNotifier(log *logger.Logger) (notify.Notifier, func()) {
	notifiers := notify.Multi{notify.NewLogNotifier(log)}
	closeNotifier := func() {}

	if broker := viper.GetString("mqtt.broker"); broker != "" {
		mq, err := notify.NewMQTTNotifier(
			broker,
			viper.GetString("mqtt.client_id"),
			viper.GetString("mqtt.topic_root"),
			log,
		)
		if err != nil {
			log.Errorw("mqtt notifier unavailable, continuing without it", "err", err)
		} else {
			notifiers = append(notifiers, mq)
			closeNotifier = mq.Close
		}
	}
	return notifiers, closeNotifier
}

func geofenceConfig() service.GeofenceConfig {
	return service.GeofenceConfig{
		RadiusMeters:   viper.GetFloat64("geofence.radius_meters"),
		SampleInterval: viper.GetDuration("geofence.sample_interval"),
		RetryBaseDelay: viper.GetDuration("geofence.retry_base_delay"),
		MaxAttempts:    viper.GetInt("geofence.max_attempts"),
	}
}

// resumeMonitoring restores persisted state and restarts the monitor when it
// was enabled with a home location before the last shutdown.
func resumeMonitoring(services *service.Service, log *logger.Logger) {
	if !services.Geofence.Restore(context.Background()) {
		return
	}
	if err := services.Geofence.Start(context.Background()); err != nil {
		log.Errorw("failed to resume monitoring", "err", err)
		return
	}
	log.Infow("monitoring resumed from persisted state")
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(services *service.Service, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// halt the monitor loop; the enabled flag stays persisted for resume
	services.Geofence.Shutdown(context.Background())

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
