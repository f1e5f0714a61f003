// Package service hosts the bridge's HTTP surfaces: health checks,
// prometheus metrics and the results API with its live display stream.
package service

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/vitest-bridge/metrics"
)

type HTTPConfig struct {
	Enabled bool
	Host    string
	Port    string
}

type Config struct {
	Healthz HTTPConfig
	Metrics HTTPConfig
	Results HTTPConfig
}

type Service struct {
	Config  Config
	Healthz *HealthzServer
	Metrics *MetricsServer
	Results *ResultsServer
}

func New(cfg Config) *Service {
	return &Service{
		Config:  cfg,
		Healthz: &HealthzServer{},
		Metrics: &MetricsServer{},
		Results: NewResultsServer(log.Root()),
	}
}

func (s *Service) Start(ctx context.Context) {
	log.Info("service starting")

	if s.Config.Healthz.Enabled {
		addr := net.JoinHostPort(s.Config.Healthz.Host, s.Config.Healthz.Port)
		log.Info("starting healthz server", "addr", addr)
		go func() {
			if err := s.Healthz.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("error starting healthz server", "err", err)
				metrics.RecordErrorDetails("error starting healthz server", err)
			}
		}()
	}

	if s.Config.Metrics.Enabled {
		addr := net.JoinHostPort(s.Config.Metrics.Host, s.Config.Metrics.Port)
		log.Info("starting metrics server", "addr", addr)
		go func() {
			if err := s.Metrics.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("error starting metrics server", "err", err)
				metrics.RecordErrorDetails("error starting metrics server", err)
			}
		}()
	}

	if s.Config.Results.Enabled {
		addr := net.JoinHostPort(s.Config.Results.Host, s.Config.Results.Port)
		log.Info("starting results server", "addr", addr)
		go func() {
			if err := s.Results.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("error starting results server", "err", err)
				metrics.RecordErrorDetails("error starting results server", err)
			}
		}()
	}

	log.Info("service started")
}

func (s *Service) Shutdown() {
	log.Info("service shutting down")

	if s.Config.Healthz.Enabled {
		_ = s.Healthz.Shutdown()
		log.Info("healthz stopped")
	}
	if s.Config.Metrics.Enabled {
		_ = s.Metrics.Shutdown()
		log.Info("metrics stopped")
	}
	if s.Config.Results.Enabled {
		_ = s.Results.Shutdown()
		log.Info("results stopped")
	}

	log.Info("service stopped")
}
