package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "cratebench/docs" // swagger spec registration
	"cratebench/internal/crate"
	"cratebench/internal/handlers"
	"cratebench/internal/logger"
	"cratebench/internal/models"
	"cratebench/internal/psu"
	"cratebench/internal/repository"
	repodb "cratebench/internal/repository/db"
	"cratebench/internal/server"
	"cratebench/internal/service"

	"github.com/spf13/viper"
)

// @title                      Crate Bench API
// @version                    1.0
// @description                Thermal-stress test bench: crate control, monitoring sessions and event log.
// @BasePath                   /
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
func main() {
	// load config.yml first; the logger needs log.level and log.file
	if err := loadConfig(); err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	// init logger
	log := logger.Init(viper.GetString("log.level"), viper.GetString("log.file"))

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
	reg, err := buildCrate(repos, log)
	if err != nil {
		log.Fatalw("failed to build crate registry", "err", err)
	}

	supply, err := dialSupply(log)
	if err != nil {
		log.Fatalw("failed to connect bench power supply", "err", err)
	}
	if supply != nil {
		defer func() { _ = supply.Close() }()
	}

	// *psu.Supply in an interface field must not wrap a nil pointer
	var fan service.FanSupply
	if supply != nil {
		fan = supply
	}

	services := service.NewService(reg, repos, fan, service.BenchConfig{
		ResultsDir:   viper.GetString("results.dir"),
		FanChannel:   viper.GetInt("psu.fan_channel"),
		FanCurrent:   viper.GetFloat64("psu.fan_current"),
		SigningKey:   signingKey(log),
		CardPollCost: viper.GetDuration("crate.card_poll_cost"),
	}, log)
	apiHandler := handlers.NewHandler(services, log)

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("port"), apiHandler, log)

	// graceful shutdown
	waitForShutdown(srv, services, reg, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	viper.SetDefault("log.level", logger.InfoLevel)
	viper.SetDefault("results.dir", "results")
	viper.SetDefault("psu.fan_channel", 1)
	viper.SetDefault("psu.fan_current", 2.0)
	return viper.ReadInConfig()
}

// signingKey prefers the SIGNING_KEY environment variable over the config
// file so the key can stay out of version control.
func signingKey(log *logger.Logger) string {
	if k := os.Getenv("SIGNING_KEY"); k != "" {
		return k
	}
	k := viper.GetString("auth.signing_key")
	if k == "" {
		log.Fatalw("no signing key configured; set SIGNING_KEY or auth.signing_key")
	}
	return k
}

// openDB initializes the SQLite database using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "bench.db")
		dbPath = "bench.db"
	}
	return repodb.InitDB(dbPath)
}

// buildCrate registers the configured cards as simulated cards and hooks
// registry events into the sqlite event log. A real bus connector would be
// chosen here once one exists.
func buildCrate(repos *repository.Repository, log *logger.Logger) (*crate.Registry, error) {
	reg := crate.NewRegistry(log)
	reg.SetEventFunc(func(e models.CrateEvent) {
		if err := repos.Events.Append(context.Background(), e); err != nil {
			log.Errorw("event append failed", "type", e.Type, "err", err)
		}
	})

	simCfg := crate.SimConfig{
		AmbientC:    viper.GetFloat64("crate.sim.ambient_c"),
		OTShutdownC: viper.GetFloat64("crate.sim.ot_shutdown_c"),
		GainCPerW:   viper.GetFloat64("crate.sim.gain_c_per_w"),
		TimeConstS:  viper.GetFloat64("crate.sim.time_const_s"),
	}
	for _, serial := range viper.GetStringSlice("crate.serials") {
		err := reg.AddCard(serial, func(s string) (crate.Card, error) {
			return crate.NewSimCard(s, simCfg), nil
		})
		if err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// dialSupply connects the bench power supply when psu.addr is configured.
// Without one the bench runs fine; scenario steps just skip the fan setting.
func dialSupply(log *logger.Logger) (*psu.Supply, error) {
	addr := viper.GetString("psu.addr")
	if addr == "" {
		log.Infow("psu.addr not set; running without bench power supply")
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), psu.DefaultTimeout)
	defer cancel()
	return psu.Dial(ctx, addr, psu.DefaultTimeout, log)
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

// waitForShutdown listens for termination signals and performs graceful
// shutdown: stop a running session, zero the loads, then drain HTTP.
func waitForShutdown(srv *server.Server, services *service.Service, reg *crate.Registry, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// a running session owns the loads; stopping it flushes results and
	// performs its own shutdown
	if _, err := services.Bench.StopSession(ctx); err != nil && !errors.Is(err, service.ErrNoSession) {
		log.Errorw("session stop on shutdown failed", "err", err)
	}
	if err := reg.ShutdownAllLoads(ctx); err != nil {
		log.Errorw("load shutdown on exit failed", "err", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
