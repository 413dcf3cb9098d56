// Package backend selects and opens the persistence backend once, at
// construction time, from configuration.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/crosscam/internal/adapters/persistence"
	"github.com/okian/crosscam/internal/adapters/persistence/memory"
	"github.com/okian/crosscam/internal/adapters/persistence/sqlstore"
	"github.com/okian/crosscam/pkg/logger"
)

// Kind names a backend in configuration.
type Kind string

// Backend kinds.
const (
	KindAuto     Kind = "auto"
	KindMemory   Kind = "memory"
	KindSQLite   Kind = "sqlite"
	KindPostgres Kind = "postgres"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindAuto, KindMemory, KindSQLite, KindPostgres:
		return true
	}
	return false
}

// Config selects the backend.
type Config struct {
	Kind         Kind
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	Logger       logger.Logger
}

// Resolve maps auto onto a concrete kind: memory without a DSN, otherwise the
// dialect the DSN looks like.
func Resolve(kind Kind, dsn string) Kind {
	if kind != KindAuto && kind != "" {
		return kind
	}
	d := strings.TrimSpace(dsn)
	switch {
	case d == "":
		return KindMemory
	case strings.HasPrefix(d, "postgres://"), strings.HasPrefix(d, "postgresql://"), strings.Contains(d, "host="):
		return KindPostgres
	default:
		return KindSQLite
	}
}

// Open returns the configured store. A relational backend that cannot be
// opened is an error; there is no fallback to memory.
func Open(ctx context.Context, cfg Config) (persistence.Store, Kind, error) {
	if cfg.Kind != "" && !cfg.Kind.Valid() {
		return nil, "", fmt.Errorf("%w: %q", persistence.ErrUnknownBackend, cfg.Kind)
	}
	kind := Resolve(cfg.Kind, cfg.DSN)

	var opts []sqlstore.Option
	if cfg.Logger != nil {
		opts = append(opts, sqlstore.WithLogger(cfg.Logger))
	}
	sqlCfg := sqlstore.Config{DSN: cfg.DSN, MaxOpenConns: cfg.MaxOpenConns, MaxIdleConns: cfg.MaxIdleConns}

	switch kind {
	case KindMemory:
		return memory.New(), kind, nil
	case KindSQLite:
		sqlCfg.Dialect = sqlstore.DialectSQLite
	case KindPostgres:
		sqlCfg.Dialect = sqlstore.DialectPostgres
	}
	s, err := sqlstore.Open(ctx, sqlCfg, opts...)
	if err != nil {
		return nil, kind, err
	}
	return s, kind, nil
}
