package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eatclean/mediagw/internal/batch"
	"github.com/eatclean/mediagw/internal/config"
	"github.com/eatclean/mediagw/internal/journal"
	"github.com/eatclean/mediagw/internal/logging"
	"github.com/eatclean/mediagw/internal/metrics"
	"github.com/eatclean/mediagw/internal/ocr"
	"github.com/eatclean/mediagw/internal/server/handler"
	"github.com/eatclean/mediagw/internal/server/router"
	"github.com/eatclean/mediagw/internal/server/service"
	"github.com/eatclean/mediagw/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// App is the assembled dependency chain.
type App struct {
	Handler http.Handler

	journal journal.Store
	logger  *zap.Logger
	cfg     *config.Config
}

// NewApp builds the dependency chain described by cfg.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	engine, err := ocr.NewEngine(cfg.OCR.Engine, ocr.EngineConfig{
		Binary:  cfg.OCR.Binary,
		Timeout: cfg.OCR.Timeout,
	})
	if err != nil {
		return nil, err
	}
	extractor := ocr.NewExtractor(engine, ocr.Options{
		Languages:          cfg.OCR.Languages,
		Accurate:           !cfg.OCR.Fast,
		LanguageCorrection: !cfg.OCR.DisableCorrection,
	})

	storageCfg := storage.Config{
		Provider:  cfg.Storage.Provider,
		Region:    cfg.Storage.Region,
		PathStyle: cfg.Storage.PathStyle,
	}
	uploader, err := storage.New(storageCfg)
	if err != nil {
		return nil, err
	}
	ossService, err := newOSSService(cfg, storageCfg, logger.Named("oss"))
	if err != nil {
		return nil, err
	}

	var store journal.Store = journal.Nop{}
	if cfg.Journal.Path != "" {
		bolt, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
		store = bolt
	}

	var metricsHandler http.Handler
	if !cfg.Server.DisableMetrics {
		metrics.Init()
		metricsHandler = metrics.Handler()
	}

	// Build dependency chain
	orch := batch.New(extractor, uploader, logger.Named("batch"),
		batch.WithParallelism(cfg.OCR.Parallelism))
	svc := service.NewGatewayService(orch, batch.Resolver{Root: cfg.Files.Root}, store,
		cfg.Server.MaxConcurrentBatches, logger.Named("service"))
	channelHandler := handler.NewChannelHandler(svc, logger.Named("handler"))

	ossHandler := handler.NewOSSHandler(ossService, logger.Named("handler"))

	r := router.New(cfg.Server.APIKey, channelHandler, ossHandler, logger.Named("http"), metricsHandler)

	logger.Info("gateway assembled",
		zap.String("ocr_engine", engine.Name()),
		zap.Strings("languages", cfg.OCR.Languages),
		zap.String("storage", cfg.Storage.Provider),
		zap.Int("max_concurrent_batches", cfg.Server.MaxConcurrentBatches),
		zap.Bool("journal", cfg.Journal.Path != ""))

	return &App{Handler: r, journal: store, logger: logger, cfg: cfg}, nil
}

// newOSSService wires the credential and signing routes. A missing account
// leaves them answering "not configured" instead of failing startup.
func newOSSService(cfg *config.Config, storageCfg storage.Config, logger *zap.Logger) (*service.OSSService, error) {
	a := cfg.Storage.Account
	acct := storage.Account{
		Endpoint:        a.Endpoint,
		Bucket:          a.Bucket,
		Region:          a.Region,
		AccessKeyID:     a.AccessKeyID,
		AccessKeySecret: a.AccessKeySecret,
	}

	signer, err := storage.NewSigner(storageCfg, acct)
	if errors.Is(err, storage.ErrNotConfigured) {
		signer = nil
	} else if err != nil {
		return nil, err
	}

	var issuer service.TokenIssuer
	if storageCfg.Provider == storage.ProviderOSS && a.RoleArn != "" {
		issuer = storage.NewSTSIssuer(storage.STSConfig{
			Endpoint:        a.STSEndpoint,
			AccessKeyID:     a.AccessKeyID,
			AccessKeySecret: a.AccessKeySecret,
			RoleArn:         a.RoleArn,
			Duration:        a.STSDuration,
		}, nil)
	}

	return service.NewOSSService(issuer, signer, acct, a.SignTTL, logger), nil
}

// PruneJournal drops records older than the configured retention every
// interval until ctx is done. It is a no-op without a bbolt journal.
func (a *App) PruneJournal(ctx context.Context, interval time.Duration) {
	bolt, ok := a.journal.(*journal.BoltStore)
	if !ok || a.cfg.Journal.Retention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := bolt.Prune(now.Add(-a.cfg.Journal.Retention))
			if err != nil {
				a.logger.Warn("journal prune failed", zap.Error(err))
				continue
			}
			if n > 0 {
				a.logger.Info("journal pruned", zap.Int("removed", n))
			}
		}
	}
}

// Close releases the journal.
func (a *App) Close() error {
	return a.journal.Close()
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Server.Mode, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Set Gin mode based on environment
	if cfg.Server.Mode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	if cfg.OCR.Engine == "cli" {
		if err := ocr.EnsureBinary(cfg.OCR.Binary); err != nil {
			return err
		}
		if abs, err := ocr.ResolveBinary(cfg.OCR.Binary); err == nil {
			cfg.OCR.Binary = abs
		}
	}

	app, err := NewApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go app.PruneJournal(ctx, time.Hour)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           app.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
