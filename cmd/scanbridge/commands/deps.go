package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/quantlab/scanbridge/internal/auth"
	"github.com/quantlab/scanbridge/internal/dhan"
	"github.com/quantlab/scanbridge/internal/external/news"
	"github.com/quantlab/scanbridge/internal/instruments"
	"github.com/quantlab/scanbridge/internal/scan"
	"github.com/quantlab/scanbridge/pkg/config"
	"github.com/quantlab/scanbridge/pkg/database"
	"github.com/quantlab/scanbridge/pkg/httputil"
	"github.com/quantlab/scanbridge/pkg/logger"
	"github.com/quantlab/scanbridge/pkg/redis"
)

// bridge wires the full dependency graph. Every command builds one and
// uses the pieces it needs.
type bridge struct {
	cfg *config.Config
	log *logger.Logger

	db    *database.DB  // nil without DATABASE_URL
	redis *redis.Client // disabled unless REDIS_ENABLED

	tokens   *auth.Manager
	master   *instruments.Master
	universe *instruments.Universe
	dhan     *dhan.Client
	cache    *scan.Cache
	engine   *scan.Engine
	news     *news.Client
}

// newBridge loads configuration and constructs the component graph.
func newBridge() (*bridge, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	// Two clients: dataset and headline downloads tolerate transparent
	// retries, but the broker paths (token refresh, quotes, orders) must
	// see every upstream status as-is so 429/5xx map to typed errors.
	fetchClient := httputil.New(log, 30*time.Second).WithRetry(3, 500*time.Millisecond)
	brokerClient := httputil.New(log, 30*time.Second).DisableRetry()

	b := &bridge{cfg: cfg, log: log}

	// Cross-process rate limiting is optional; without Redis the limiter
	// allows everything and the upstream 429 handling takes over.
	rdb, err := redis.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	b.redis = rdb
	if rdb.Enabled() {
		limiter := redis.NewRateLimiter(rdb, "ratelimit")
		brokerClient = brokerClient.WithRateLimiter(limiter, redis.DhanRateLimit)
		log.Info("Redis rate limiter enabled")
	}

	// Credential store: Postgres when configured, in-memory otherwise.
	var store auth.Store
	if cfg.Database.URL != "" {
		db, err := database.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		b.db = db

		pgStore := auth.NewPostgresStore(db.Pool, cfg.Dhan.ClientID)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := pgStore.EnsureSchema(ctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("ensure credential schema: %w", err)
		}
		store = pgStore
		log.Info("Using Postgres credential store")
	} else {
		store = auth.NewMemoryStore()
		log.Warn("No DATABASE_URL set, broker tokens will not survive restarts")
	}

	tokens, err := auth.NewManager(cfg.Dhan, store, brokerClient, log)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("init token manager: %w", err)
	}
	b.tokens = tokens

	b.master = instruments.NewMaster(cfg.Dhan.ScripMaster, cfg.Scan.DatasetTTL, fetchClient, log)
	b.universe = instruments.NewUniverse(b.master, log)
	b.dhan = dhan.NewClient(cfg.Dhan, cfg.Trade, tokens, brokerClient, log)
	b.cache = scan.NewCache(cfg.Scan.CacheTTL, log)
	b.engine = scan.NewEngine(b.universe, b.dhan, b.cache, cfg.Scan, cfg.Dhan.QuoteKey, log)
	b.news = news.NewClient(fetchClient, log)

	return b, nil
}

// Close releases held connections.
func (b *bridge) Close() {
	if b.db != nil {
		b.db.Close()
	}
	if b.redis != nil {
		b.redis.Close()
	}
}
