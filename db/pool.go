// Package db manages one shared connection pool per datasource, lazily
// opened on first use and torn down together at shutdown.
package db

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/netresearch/datamon/core"
)

// maxOpenConns bounds each pool; database/sql blocks acquires beyond it.
const maxOpenConns = 10

// Registry maps datasources to their pools. A job-level database override
// gets its own pool, keyed by name plus database.
type Registry struct {
	Logger core.Logger

	mu     sync.Mutex
	pools  map[string]*sqlx.DB
	closed bool
}

var _ core.PoolProvider = (*Registry)(nil)

func NewRegistry(logger core.Logger) *Registry {
	return &Registry{
		Logger: logger,
		pools:  make(map[string]*sqlx.DB),
	}
}

// DB returns the pool for a datasource, opening it on first use. It refuses
// new pools once the registry is closed.
func (r *Registry) DB(ds *core.DatasourceConfig) (*sqlx.DB, error) {
	key := ds.Name + "/" + ds.Database

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, core.ErrRegistryClosed
	}
	if pool, ok := r.pools[key]; ok {
		return pool, nil
	}

	pool, err := sqlx.Open("mysql", dsn(ds))
	if err != nil {
		return nil, fmt.Errorf("open datasource %q: %w", ds.Name, err)
	}
	pool.SetMaxOpenConns(maxOpenConns)
	pool.SetMaxIdleConns(maxOpenConns)

	r.Logger.Debugf("opened connection pool for datasource %q (database %q)", ds.Name, ds.Database)
	r.pools[key] = pool
	return pool, nil
}

func dsn(ds *core.DatasourceConfig) string {
	cfg := mysql.NewConfig()
	cfg.User = ds.User
	cfg.Passwd = ds.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", ds.Host, ds.Port)
	cfg.DBName = ds.Database
	cfg.ParseTime = true
	cfg.Loc = time.Local
	if ds.Charset != "" {
		cfg.Params = map[string]string{"charset": ds.Charset}
	}
	return cfg.FormatDSN()
}

// Close releases every pool and refuses further DB calls.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var firstErr error
	for key, pool := range r.pools {
		if err := pool.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close pool %q: %w", key, err)
		}
	}
	r.pools = nil
	return firstErr
}
