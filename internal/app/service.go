package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/buttons"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/config"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/dispatch"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/history"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/ingest"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/listener"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/logging"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/scm"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/settings"
)

const (
	buttonsPath        = "/api/buttons"
	buttonPressedPath  = "/api/buttons/pressed"
	outcomesPath       = "/admin/outcomes"
	defaultOutcomeRows = 50
)

// Service composes runtime dependencies and process lifecycle.
// Params: config source and shared runtime components.
// Returns: runnable notifier service.
type Service struct {
	source    config.ConfigSource
	cfg       config.Config
	logger    *slog.Logger
	closeLog  func()
	store     *settings.Store
	cache     *scm.SnapshotCache
	prs       scm.PullRequestService
	invoker   *dispatch.Invoker
	history   *history.Store
	listener  *listener.Listener
	buttons   *buttons.Service
	httpSrv   *http.Server
	natsSub   interface{ Close() error }
	readyFlag atomic.Bool
}

// NewService builds service instance from config source.
// Params: config source selected on the command line.
// Returns: initialized service or setup error.
func NewService(source config.ConfigSource) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	snapshot, err := config.BuildSnapshot(cfg)
	if err != nil {
		closeLog()
		return nil, err
	}

	service := &Service{
		source:   source,
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		store:    settings.NewStore(snapshot),
		cache:    scm.NewSnapshotCache(),
		invoker:  dispatch.NewInvoker(time.Duration(cfg.Service.DispatchTimeoutSec)*time.Second, logger),
		history:  history.NewStore(cfg.Service.HistorySize),
	}

	service.prs, err = buildPullRequestService(cfg, service.cache, logger)
	if err != nil {
		service.cleanupInitResources()
		return nil, err
	}

	service.listener = listener.New(service.store, service.prs, service.invoker, service.history, logger)
	service.buttons = buttons.NewService(service.store, service.prs, settings.AllowListCheck{}, service.listener, logger)

	if err := service.buildHTTPServer(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	if err := service.buildNATSSubscriber(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}

	return service, nil
}

// Run starts service lifecycle and blocks until shutdown signal.
// Params: root context for service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	shutdownCtx, shutdownCancel := context.WithCancel(ctx)
	defer shutdownCancel()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "listen", s.cfg.Service.Listen)
		err := s.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if s.cfg.Service.ReloadEnabled {
		reloadInterval := time.Duration(s.cfg.Service.ReloadIntervalSec) * time.Second
		reloadTicker := time.NewTicker(reloadInterval)
		defer reloadTicker.Stop()
		go func() {
			for {
				select {
				case <-shutdownCtx.Done():
					return
				case <-reloadTicker.C:
					if err := s.reloadSettings(); err != nil {
						s.logger.Error("settings reload failed", "error", err.Error())
					}
				}
			}
		}()
	}

	s.readyFlag.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errChan:
		_ = s.shutdown()
		return fmt.Errorf("http server failed: %w", err)
	case <-sigChan:
		return s.shutdown()
	}
}

// shutdown closes runtime resources in dependency order.
// Params: none.
// Returns: first close error.
func (s *Service) shutdown() error {
	s.readyFlag.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown failed", "error", err.Error())
		markErr(fmt.Errorf("http shutdown: %w", err))
	}
	if s.natsSub != nil {
		if err := s.natsSub.Close(); err != nil {
			s.logger.Error("nats subscriber close failed", "error", err.Error())
			markErr(fmt.Errorf("nats subscriber close: %w", err))
		}
	}
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
// Params: none.
// Returns: all acquired resources closed best-effort.
func (s *Service) cleanupInitResources() {
	if s.natsSub != nil {
		_ = s.natsSub.Close()
		s.natsSub = nil
	}
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
		s.httpSrv = nil
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// buildHTTPServer wires router with ingest, button, and admin endpoints.
// Params: none.
// Returns: setup error.
func (s *Service) buildHTTPServer() error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Ingest.HTTP.HealthPath, func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ok"))
	})
	mux.HandleFunc(s.cfg.Ingest.HTTP.ReadyPath, func(writer http.ResponseWriter, _ *http.Request) {
		if !s.readyFlag.Load() {
			writer.WriteHeader(http.StatusServiceUnavailable)
			_, _ = writer.Write([]byte("not-ready"))
			return
		}
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ready"))
	})
	mux.Handle(s.cfg.Ingest.HTTP.MetricsPath, promhttp.Handler())

	if s.cfg.Ingest.HTTP.Enabled {
		handler := ingest.NewHTTPHandler(s.listener, s.cache, s.cfg.Ingest.HTTP.MaxBodyBytes)
		mux.Handle(s.cfg.Ingest.HTTP.WebhookPath, handler)
	}

	mux.HandleFunc(buttonsPath, s.handleButtons)
	mux.HandleFunc(buttonPressedPath, s.handleButtonPressed)
	mux.HandleFunc(outcomesPath, s.handleOutcomes)

	s.httpSrv = &http.Server{
		Addr:              s.cfg.Service.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

// buildNATSSubscriber starts NATS ingest when enabled.
// Params: none.
// Returns: initialization error.
func (s *Service) buildNATSSubscriber() error {
	if !s.cfg.Ingest.NATS.Enabled {
		return nil
	}
	subscriber, err := ingest.NewNATSSubscriber(natsConfig(s.cfg.Ingest.NATS), s.listener, s.cache, s.logger)
	if err != nil {
		return err
	}
	s.natsSub = subscriber
	return nil
}

// reloadSettings rebuilds the notification snapshot from the config source.
// Only notification and button tables take effect without restart;
// transport and ingest changes require one.
// Params: none.
// Returns: load or validation error leaving the active snapshot in place.
func (s *Service) reloadSettings() error {
	nextCfg, err := config.LoadSnapshot(s.source)
	if err != nil {
		return err
	}
	snapshot, err := config.BuildSnapshot(nextCfg)
	if err != nil {
		return err
	}
	s.store.Replace(snapshot)
	s.logger.Info("settings reloaded",
		"notifications", len(snapshot.Notifications), "buttons", len(snapshot.Buttons))
	return nil
}

// buildPullRequestService selects the pull-request backend.
// Params: config snapshot, event-fed cache fallback, and logger.
// Returns: GitHub-backed service when a token is configured, the event
// snapshot cache otherwise.
func buildPullRequestService(cfg config.Config, cache *scm.SnapshotCache, logger *slog.Logger) (scm.PullRequestService, error) {
	if cfg.SCM.GitHub.Token == "" {
		return cache, nil
	}
	return scm.NewGitHubService(context.Background(), cfg.SCM.GitHub.Token, cfg.SCM.GitHub.BaseURL, logger)
}

// natsConfig maps config ingest settings onto the subscriber config.
// Params: decoded NATS ingest section.
// Returns: subscriber configuration.
func natsConfig(cfg config.NATSIngestConfig) ingest.NATSConfig {
	return ingest.NATSConfig{
		URL:           cfg.URL,
		Stream:        cfg.Stream,
		Subject:       cfg.Subject,
		DeliverGroup:  cfg.DeliverGroup,
		ConsumerName:  cfg.ConsumerName,
		AckWaitSec:    cfg.AckWaitSec,
		MaxDeliver:    cfg.MaxDeliver,
		MaxAckPending: cfg.MaxAckPending,
	}
}
