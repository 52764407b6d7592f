package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/VSydorenko/simplyCMS-core-sub001/internal/platform/config"
)

const (
	// DriverName is the database/sql driver registered by pgx.
	DriverName         = "pgx"
	defaultDialTimeout = 10 * time.Second
)

// ErrProviderClosed is returned once Close has been called.
var ErrProviderClosed = errors.New("postgres: provider is closed")

// Provider lazily opens and shares a pooled sqlx handle.
type Provider struct {
	cfg         config.DatabaseConfig
	dialTimeout time.Duration
	open        func(driverName, dsn string) (*sqlx.DB, error)

	mu     sync.Mutex
	db     *sqlx.DB
	closed bool
}

// ProviderOption customises the Provider behaviour.
type ProviderOption func(*Provider)

// WithDialTimeout overrides the timeout used for the initial ping.
func WithDialTimeout(timeout time.Duration) ProviderOption {
	return func(p *Provider) {
		if timeout > 0 {
			p.dialTimeout = timeout
		}
	}
}

// WithDB injects an already opened handle, typically sqlmock in tests.
func WithDB(db *sqlx.DB) ProviderOption {
	return func(p *Provider) {
		p.db = db
	}
}

// NewProvider constructs a Provider using the supplied configuration.
func NewProvider(cfg config.DatabaseConfig, opts ...ProviderOption) *Provider {
	p := &Provider{
		cfg:         cfg,
		dialTimeout: defaultDialTimeout,
		open:        sqlx.Open,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// DB returns the shared handle, opening and pinging it on first use.
func (p *Provider) DB(ctx context.Context) (*sqlx.DB, error) {
	if ctx == nil {
		return nil, errors.New("postgres: context is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrProviderClosed
	}
	if p.db != nil {
		return p.db, nil
	}

	dsn := strings.TrimSpace(p.cfg.URL)
	if dsn == "" {
		return nil, errors.New("postgres: database url is required")
	}
	db, err := p.open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if p.cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(p.cfg.MaxOpenConns)
	}
	if p.cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(p.cfg.MaxIdleConns)
	}
	if p.cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(p.cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, WrapError("postgres.ping", err)
	}

	p.db = db
	return db, nil
}

// Ping checks connectivity; used by readiness probes.
func (p *Provider) Ping(ctx context.Context) error {
	db, err := p.DB(ctx)
	if err != nil {
		return err
	}
	return WrapError("postgres.ping", db.PingContext(ctx))
}

// Close releases the pool. The Provider cannot be reused afterwards.
func (p *Provider) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}
