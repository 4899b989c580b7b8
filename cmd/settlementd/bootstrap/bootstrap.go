package bootstrap

import (
	"context"
	"net/http"
	"time"

	"github.com/coincart/settlement-engine/cmd/settlementd/handlers"
	"github.com/coincart/settlement-engine/internal/escrow"
	"github.com/coincart/settlement-engine/internal/lightning"
	"github.com/coincart/settlement-engine/internal/order"
	"github.com/coincart/settlement-engine/internal/platform/db"
	"github.com/coincart/settlement-engine/internal/platform/web"
	"github.com/coincart/settlement-engine/internal/rates"
	"github.com/coincart/settlement-engine/internal/settlement"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/tokenized/logger"
)

// Server owns the API and the background sweeps.
type Server struct {
	Config   *Config
	MasterDB *db.DB

	api *http.Server
}

// Setup wires the database, external collaborators and handlers into a
// runnable server.
func Setup(ctx context.Context, cfg *Config) (*Server, error) {

	// ---------------------------------------------------------------------------------------------
	// Start Database / Storage

	masterDB, err := db.New(
		&db.DBConfig{
			Driver: cfg.Db.Driver,
			URL:    cfg.Db.URL,
		},
		&db.StorageConfig{
			Bucket: cfg.Storage.Bucket,
			Root:   cfg.Storage.Root,
		},
	)
	if err != nil {
		return nil, errors.Wrap(err, "register db")
	}

	// ---------------------------------------------------------------------------------------------
	// Price Oracle

	var redisClient *redis.Client
	if len(cfg.Redis.URL) > 0 {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			masterDB.Close()
			return nil, errors.Wrap(err, "parse redis url")
		}
		redisClient = redis.NewClient(opts)
	}

	prices := rates.NewCache(rates.NewHTTPSource(cfg.Rates.Host, cfg.Rates.RequestTimeout),
		redisClient, cfg.Rates.CacheTTL)

	// ---------------------------------------------------------------------------------------------
	// Lightning Node

	node := lightning.NewRESTClient(cfg.Lightning.Host, cfg.Lightning.AuthToken,
		cfg.Lightning.RequestTimeout)

	// ---------------------------------------------------------------------------------------------
	// Web Config

	webConfig := &web.Config{
		RootURL:          cfg.Web.RootURL,
		IsTest:           cfg.Settlement.IsTest,
		MinConfirmations: cfg.Settlement.MinConfirmations,
	}

	webHandler := handlers.API(webConfig, masterDB, node, prices, cfg.Settlement.InvoiceExpiry)

	api := &http.Server{
		Addr:           cfg.Web.APIHost,
		Handler:        webHandler,
		ReadTimeout:    cfg.Web.ReadTimeout,
		WriteTimeout:   cfg.Web.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	return &Server{
		Config:   cfg,
		MasterDB: masterDB,
		api:      api,
	}, nil
}

// WrapAPI layers an http.Handler middleware around the API, outermost.
func (s *Server) WrapAPI(wrap func(http.Handler) http.Handler) {
	s.api.Handler = wrap(s.api.Handler)
}

// Run serves the API and background sweeps until the context is cancelled or
// the listener fails. It owns graceful shutdown of both.
func (s *Server) Run(ctx context.Context) error {

	// Buffered so the listener goroutine can exit if the error is never
	// collected.
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info(ctx, "main : HTTP server Listening %s", s.Config.Web.APIHost)
		serverErrors <- s.api.ListenAndServe()
	}()

	sweepCtx, cancelSweeps := context.WithCancel(ctx)
	defer cancelSweeps()

	go s.runSweep(sweepCtx, "invoice expiry", s.Config.Settlement.ExpireSweepInterval,
		s.sweepInvoices)
	go s.runSweep(sweepCtx, "escrow auto release", s.Config.Settlement.AutoReleaseInterval,
		s.sweepAutoRelease)
	go s.runSweep(sweepCtx, "settlement repair", s.Config.Settlement.RepairInterval,
		s.repairSettlements)

	select {
	case err := <-serverErrors:
		if err == http.ErrServerClosed {
			return nil
		}
		return errors.Wrap(err, "http server")

	case <-ctx.Done():
		logger.Info(ctx, "main : Start shutdown...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			s.Config.Web.ShutdownTimeout)
		defer cancel()

		if err := s.api.Shutdown(shutdownCtx); err != nil {
			logger.Error(ctx, "main : Graceful HTTP server shutdown did not complete in %v : %v",
				s.Config.Web.ShutdownTimeout, err)
			if err := s.api.Close(); err != nil {
				return errors.Wrap(err, "close http server")
			}
		}
		return nil
	}
}

// runSweep drives one background pass on its interval until shutdown.
func (s *Server) runSweep(ctx context.Context, name string, interval time.Duration,
	pass func(ctx context.Context) error) {

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "%s sweep stopped", name)
			return

		case <-ticker.C:
			if err := pass(ctx); err != nil {
				logger.Error(ctx, "%s sweep : %s", name, err)
			}
		}
	}
}

func (s *Server) sweepInvoices(ctx context.Context) error {
	dbConn := s.MasterDB.Copy()
	defer dbConn.Close()

	count, err := lightning.ExpireSweep(ctx, dbConn, time.Now())
	if err != nil {
		return err
	}
	if count > 0 {
		logger.Info(ctx, "Expired %d invoices", count)
	}
	return nil
}

func (s *Server) sweepAutoRelease(ctx context.Context) error {
	dbConn := s.MasterDB.Copy()
	defer dbConn.Close()

	count, err := escrow.AutoReleaseSweep(ctx, dbConn, time.Now())
	if err != nil {
		return err
	}
	if count > 0 {
		logger.Info(ctx, "Auto released %d escrows", count)
	}
	return nil
}

func (s *Server) repairSettlements(ctx context.Context) error {
	dbConn := s.MasterDB.Copy()
	defer dbConn.Close()

	count, err := settlement.Repair(ctx, dbConn, &order.Store{DB: dbConn})
	if err != nil {
		return err
	}
	if count > 0 {
		logger.Info(ctx, "Repaired %d settlements", count)
	}
	return nil
}
