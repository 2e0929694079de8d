package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"tradeflow/config"
	"tradeflow/internal/venue"
	"tradeflow/internal/venue/binance"
	"tradeflow/internal/venue/bybit"
	"tradeflow/internal/venue/kraken"
	"tradeflow/internal/venue/okx"
	"tradeflow/internal/venue/paper"
	"tradeflow/internal/venue/tradestation"
	"tradeflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(config.DefaultConfigPath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Tradeflow.Name,
		"version":     cfg.Tradeflow.Version,
		"environment": config.AppEnvironment(),
	}).Info("starting tradeflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Enabled {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace, cfg.Logging.DashboardName)
		logger.StartReport(ctx, log, cfg.Metrics.ReportInterval)
	}

	registry := venue.NewRegistry()
	if err := buildVenues(cfg, registry); err != nil {
		log.WithError(err).Error("failed to build venue adapters")
		os.Exit(1)
	}
	if len(registry.Names()) == 0 {
		log.Error("no venues enabled in configuration")
		os.Exit(1)
	}

	// Probe each venue with an authenticated call so credential problems
	// surface at startup, not on the first order.
	connected := 0
	for _, name := range registry.Names() {
		v, _ := registry.Get(name)
		probeCtx, probeCancel := context.WithTimeout(ctx, cfg.Execution.RequestTimeout)
		ok, err := v.Connect(probeCtx)
		probeCancel()
		if err != nil || !ok {
			log.WithVenue(name).WithError(err).Warn("venue connect probe failed")
			continue
		}
		caps := v.Capabilities()
		log.WithVenue(name).WithFields(logger.Fields{
			"derivatives":  caps.Derivatives,
			"native_cloid": caps.NativeClientOrderID,
			"max_leverage": caps.MaxLeverage.String(),
			"streaming":    caps.Streaming,
		}).Info("venue connected")
		connected++
	}
	if connected == 0 {
		log.Error("no venue passed its connect probe")
		registry.CloseAll()
		os.Exit(1)
	}

	log.WithFields(logger.Fields{"venues": connected}).Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	if err := registry.CloseAll(); err != nil {
		log.WithError(err).Warn("error closing venues")
	}

	log.Info("tradeflow stopped")
}

// buildVenues constructs every enabled adapter, wraps it in the execution
// facade and registers it.
func buildVenues(cfg *config.Config, registry *venue.Registry) error {
	timeout := cfg.Execution.RequestTimeout

	register := func(v venue.Venue, limits config.VenueLimits) error {
		return registry.Register(venue.Wrap(v, limits, cfg.Execution))
	}

	if cfg.Venues.Kraken.Enabled {
		k, err := kraken.New(cfg.Venues.Kraken, timeout)
		if err != nil {
			return err
		}
		if err := register(k, cfg.Venues.Kraken.Limits); err != nil {
			return err
		}
	}
	if cfg.Venues.Binance.Enabled {
		if err := register(binance.New(cfg.Venues.Binance, timeout), cfg.Venues.Binance.Limits); err != nil {
			return err
		}
	}
	if cfg.Venues.Bybit.Enabled {
		if err := register(bybit.New(cfg.Venues.Bybit), cfg.Venues.Bybit.Limits); err != nil {
			return err
		}
	}
	if cfg.Venues.Okx.Enabled {
		if err := register(okx.New(cfg.Venues.Okx), cfg.Venues.Okx.Limits); err != nil {
			return err
		}
	}
	if cfg.Venues.Tradestation.Enabled {
		ts, err := tradestation.New(cfg.Venues.Tradestation, timeout)
		if err != nil {
			return err
		}
		if err := register(ts, cfg.Venues.Tradestation.Limits); err != nil {
			return err
		}
	}
	if cfg.Venues.Paper.Enabled {
		p, err := paper.New(cfg.Venues.Paper)
		if err != nil {
			return err
		}
		if err := register(p, cfg.Venues.Paper.Limits); err != nil {
			return err
		}
	}
	return nil
}
