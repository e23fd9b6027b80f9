package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/civicledger/participation/app/services/participation/handlers"
	"github.com/civicledger/participation/business/core/proposal"
	"github.com/civicledger/participation/business/core/proposal/registrar"
	"github.com/civicledger/participation/business/core/user"
	"github.com/civicledger/participation/business/core/vote"
	"github.com/civicledger/participation/business/sys/database"
	"github.com/civicledger/participation/foundation/events"
	"github.com/civicledger/participation/foundation/ledger"
	"github.com/civicledger/participation/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("PARTICIPATION")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	// This is all the configuration for the application and the default values.
	// Configuration values will be passed through the application as individual
	// values.
	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:120s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			APIHost         string        `conf:"default:0.0.0.0:3000"`
			DebugHost       string        `conf:"default:0.0.0.0:4000"`
		}
		DB struct {
			Path         string `conf:"default:data/participation.db"`
			MaxOpenConns int    `conf:"default:1"`
		}
		Ledger struct {
			RPCURL          string        `conf:"default:http://localhost:8545"`
			ContractAddress string        `conf:"default:0x0000000000000000000000000000000000000000"`
			KeyPath         string        `conf:"default:data/keys/participation.ecdsa"`
			ChainID         int64         `conf:"default:11155111"`
			QueryTimeout    time.Duration `conf:"default:10s"`
			ConfirmTimeout  time.Duration `conf:"default:90s"`
			ConfirmInterval time.Duration `conf:"default:2s"`
		}
		Registrar struct {
			Interval    time.Duration `conf:"default:10s"`
			Batch       int           `conf:"default:10"`
			MaxAttempts int           `conf:"default:5"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "copyright information here",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "PARTICIPATION"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Database Support

	log.Infow("startup", "status", "initializing database", "path", cfg.DB.Path)

	db, err := database.Open(database.Config{
		Path:         cfg.DB.Path,
		MaxOpenConns: cfg.DB.MaxOpenConns,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Infow("shutdown", "status", "stopping database")
		db.Close()
	}()

	migrateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := database.Migrate(migrateCtx, db); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	// =========================================================================
	// Ledger Support

	log.Infow("startup", "status", "initializing ledger client", "rpc", cfg.Ledger.RPCURL,
		"contract", cfg.Ledger.ContractAddress)

	lgr, err := ledger.New(log, ledger.Config{
		RPCURL:          cfg.Ledger.RPCURL,
		ContractAddress: cfg.Ledger.ContractAddress,
		KeyPath:         cfg.Ledger.KeyPath,
		ChainID:         cfg.Ledger.ChainID,
		ConfirmInterval: cfg.Ledger.ConfirmInterval,
	})
	if err != nil {
		return fmt.Errorf("constructing ledger client: %w", err)
	}
	defer lgr.Close()

	log.Infow("startup", "status", "ledger signing account", "address", lgr.SigningAddress())

	// =========================================================================
	// Core Support

	// The events value broadcasts vote and registration activity to any
	// websocket client connected through the events endpoint.
	evts := events.New()
	ev := func(kind string, proposalID uint64, format string, args ...any) {
		s := fmt.Sprintf(format, args...)
		log.Infow(s, "kind", kind, "proposalID", proposalID)
		evts.Send(kind, proposalID, "%s", s)
	}

	usrCore := user.NewCore(log, db)
	prpCore := proposal.NewCore(log, db, usrCore)

	voteCore := vote.NewCore(vote.Config{
		Log:            log,
		Store:          prpCore,
		Ledger:         lgr,
		EvHandler:      ev,
		QueryTimeout:   cfg.Ledger.QueryTimeout,
		ConfirmTimeout: cfg.Ledger.ConfirmTimeout,
	})

	// The registrar drains the on-chain registration queue in the
	// background so submissions never wait on the chain.
	reg := registrar.Run(registrar.Config{
		Log:            log,
		Store:          prpCore,
		Ledger:         lgr,
		EvHandler:      ev,
		Interval:       cfg.Registrar.Interval,
		Batch:          cfg.Registrar.Batch,
		MaxAttempts:    cfg.Registrar.MaxAttempts,
		ConfirmTimeout: cfg.Ledger.ConfirmTimeout,
	})
	defer reg.Shutdown()

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug router started", "host", cfg.Web.DebugHost)

	// The Debug function returns a mux to listen and serve on for all the debug
	// related endpoints. This includes the standard library endpoints.
	debugMux := handlers.DebugMux(build, log, db)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Start API Service

	log.Infow("startup", "status", "initializing V1 API support")

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Construct the mux for the API calls.
	apiMux := handlers.APIMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		User:     usrCore,
		Proposal: prpCore,
		Vote:     voteCore,
		Ledger:   lgr,
		Evts:     evts,
	})

	// Construct a server to service the requests against the mux.
	api := http.Server{
		Addr:         cfg.Web.APIHost,
		Handler:      apiMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "api router started", "host", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown api started")
		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop api service gracefully: %w", err)
		}
	}

	return nil
}
