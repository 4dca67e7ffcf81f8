// Package tracker implements app.Runner for the bridge tracker process.
package tracker

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apphttp "github.com/chainsafe/bridge-tracker/pkg/app/http"
	"github.com/chainsafe/bridge-tracker/pkg/backfill"
	"github.com/chainsafe/bridge-tracker/pkg/config"
	"github.com/chainsafe/bridge-tracker/pkg/ethereum"
	"github.com/chainsafe/bridge-tracker/pkg/indexer"
	"github.com/chainsafe/bridge-tracker/pkg/kv"
	"github.com/chainsafe/bridge-tracker/pkg/pgutil"
	"github.com/chainsafe/bridge-tracker/pkg/poller"
	"github.com/chainsafe/bridge-tracker/pkg/resolver"
	"github.com/chainsafe/bridge-tracker/pkg/seen"
	trackerservice "github.com/chainsafe/bridge-tracker/pkg/tracker/service"
	"github.com/chainsafe/bridge-tracker/pkg/transfer"
	"github.com/chainsafe/bridge-tracker/pkg/transferstore"
)

const (
	defaultHTTPMiddlewareTimeout  = 60 * time.Second
	defaultStartupBackfillTimeout = 10 * time.Minute
)

// Server holds configuration for the tracker process.
type Server struct {
	cfg *config.Config
}

// NewServer initializes a new tracker Server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

type components struct {
	parent   *ethereum.Client
	child    *ethereum.Client
	store    *transferstore.Store
	seen     *seen.Ledger
	backfill *backfill.Reconciler
	poller   *poller.Poller
}

// Run loads the persisted transfers, reconciles recent history, starts the
// polling scheduler and serves the HTTP API.
// It blocks until an OS shutdown signal is received or a fatal server error occurs.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	account := common.HexToAddress(cfg.Session.Account)
	logger.Info("Starting bridge tracker",
		zap.String("account", account.Hex()),
		zap.String("storage", cfg.Storage.Driver),
		zap.Uint64("parent_chain_id", cfg.ParentChain.ChainID),
		zap.Uint64("child_chain_id", cfg.ChildChain.ChainID),
	)

	storage, closeStorage, err := s.openStorage(ctx, logger)
	if err != nil {
		return err
	}
	defer closeStorage()

	c, err := s.build(ctx, storage, logger)
	if err != nil {
		return err
	}
	defer c.parent.Close()
	defer c.child.Close()

	stopWatch := watchNewTransfers(ctx, c.store, c.seen, logger)
	defer stopWatch()

	if !cfg.Backfill.SkipOnStartup {
		s.runStartupBackfill(ctx, c, account, logger)
	}

	c.poller.Start(ctx)
	// Stopped explicitly after ServeAndWait returns; the defer is a safety net.
	defer c.poller.Stop()

	svc := trackerservice.NewService(trackerservice.Deps{
		Store:      c.store,
		Seen:       c.seen,
		Backfiller: c.backfill,
		Refresher:  c.poller,
		ParentHead: c.parent,
		ChildHead:  c.child,
	}, account, cfg.Backfill, logger)

	router := s.newRouter(trackerservice.NewLog(svc, logger), logger)

	err = apphttp.ServeAndWait(ctx, router, logger, &cfg.Server)

	c.poller.Stop()

	return err
}

func (s *Server) openStorage(ctx context.Context, logger *zap.Logger) (kv.Storage, func(), error) {
	if s.cfg.Storage.Driver == config.StorageDriverMemory {
		logger.Warn("Using in-memory storage, tracked transfers will not survive a restart")
		return kv.NewMemoryStorage(), func() {}, nil
	}

	db, err := pgutil.ConnectDB(ctx, &s.cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}
	logger.Info("Connected to database",
		zap.String("host", s.cfg.Database.Host),
		zap.String("database", s.cfg.Database.Database),
	)
	return kv.NewPGStorage(db), func() { _ = db.Close() }, nil
}

func (s *Server) build(ctx context.Context, storage kv.Storage, logger *zap.Logger) (*components, error) {
	cfg := s.cfg

	parent, err := ethereum.NewClient(ctx, ethereum.LayerParent, cfg.ParentChain, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize parent chain client: %w", err)
	}
	child, err := ethereum.NewClient(ctx, ethereum.LayerChild, cfg.ChildChain, logger)
	if err != nil {
		parent.Close()
		return nil, fmt.Errorf("initialize child chain client: %w", err)
	}

	closeClients := func() {
		parent.Close()
		child.Close()
	}

	deployment := ethereum.NewDeployment(cfg.Eras)

	store := transferstore.New(storage, logger.Named("store"))
	if err := store.Load(ctx); err != nil {
		closeClients()
		return nil, fmt.Errorf("load transfers: %w", err)
	}

	ledger := seen.New(storage, store, logger.Named("seen"))
	if _, err := ledger.GetSeen(ctx); err != nil {
		closeClients()
		return nil, fmt.Errorf("load seen transfers: %w", err)
	}

	res, err := resolver.New(
		ethereum.NewMessageLocator(parent, deployment),
		ethereum.NewStatusClient(child, logger.Named("status")),
		deployment.Schedule,
		store,
		logger.Named("resolver"),
	)
	if err != nil {
		closeClients()
		return nil, fmt.Errorf("create resolver: %w", err)
	}
	checker := resolver.NewSubmissionChecker(parent, child, deployment, logger.Named("checker"))

	fetchers := []backfill.Fetcher{backfill.NewEventFetcher(parent, child, deployment, logger)}
	if cfg.Indexer.Enabled {
		client := indexer.NewClient(cfg.Indexer, logger.Named("indexer"))
		fetchers = append(fetchers, backfill.NewIndexerFetcher(client, 0))
		logger.Info("Indexer backfill enabled", zap.String("url", cfg.Indexer.URL))
	}

	return &components{
		parent:   parent,
		child:    child,
		store:    store,
		seen:     ledger,
		backfill: backfill.New(store, cfg.Backfill, logger, fetchers...),
		poller:   poller.New(store, res, checker, cfg.Polling, logger),
	}, nil
}

// runStartupBackfill reconciles the configured lookback window. Failures are
// logged and left for a later manual backfill.
func (s *Server) runStartupBackfill(ctx context.Context, c *components, account common.Address, logger *zap.Logger) {
	startupCtx, cancel := context.WithTimeout(ctx, defaultStartupBackfillTimeout)
	defer cancel()

	parentHead, err := c.parent.LatestBlock(startupCtx)
	if err != nil {
		logger.Warn("Startup backfill skipped", zap.Error(err))
		return
	}
	childHead, err := c.child.LatestBlock(startupCtx)
	if err != nil {
		logger.Warn("Startup backfill skipped", zap.Error(err))
		return
	}

	ranges := backfill.Lookback(parentHead, s.cfg.Backfill.ParentLookback, childHead, s.cfg.Backfill.ChildLookback)
	if len(ranges) == 0 {
		return
	}
	for _, r := range ranges {
		logger.Info("Running startup backfill",
			zap.String("layer", string(r.Layer)),
			zap.Uint64("from", r.From),
			zap.Uint64("to", r.To),
		)
	}

	res, err := c.backfill.Backfill(startupCtx, account, ranges...)
	if err != nil {
		logger.Warn("Startup backfill incomplete",
			zap.Int("failed_pages", len(res.Failed)),
			zap.Error(err),
		)
	}
	logger.Info("Startup backfill finished",
		zap.Int("fetched", len(res.Transfers)),
		zap.Int("inserted", res.Inserted),
	)
}

type changeSource interface {
	Subscribe() (<-chan []transfer.Transfer, func())
}

type newTransferFilter interface {
	NewTransfers(ctx context.Context, transfers []transfer.Transfer) ([]transfer.Transfer, error)
}

// watchNewTransfers recomputes the unseen transfers after every store change
// so the new-transfers gauge follows the collection.
func watchNewTransfers(ctx context.Context, src changeSource, ledger newTransferFilter, logger *zap.Logger) func() {
	ch, unsubscribe := src.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for snapshot := range ch {
			fresh, err := ledger.NewTransfers(ctx, snapshot)
			if err != nil {
				logger.Warn("Failed to compute new transfers", zap.Error(err))
				continue
			}
			if len(fresh) > 0 {
				logger.Debug("Unseen transfers", zap.Int("count", len(fresh)))
			}
		}
	}()

	return func() {
		unsubscribe()
		<-done
	}
}

func (s *Server) newRouter(svc trackerservice.Service, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultHTTPMiddlewareTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	if !s.cfg.Monitoring.Disabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled", zap.String("path", "/metrics"))
	}

	r.Route("/api/v1", func(r chi.Router) {
		trackerservice.RegisterRoutes(r, svc, logger)
	})

	return r
}
