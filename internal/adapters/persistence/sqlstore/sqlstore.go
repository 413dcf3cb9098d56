// Package sqlstore is the relational persistence backend. It runs on SQLite
// (pure Go driver) or PostgreSQL (pgx) through gorm, with goose migrations.
package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	_ "modernc.org/sqlite"

	"github.com/okian/crosscam/internal/adapters/persistence"
	"github.com/okian/crosscam/internal/domain/model"
	"github.com/okian/crosscam/pkg/logger"
)

// Dialect selects the relational engine.
type Dialect string

// Supported dialects.
const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) gooseDialect() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

func (d Dialect) migrationsDir() string {
	return "migrations/" + string(d)
}

// Valid reports whether d is a supported dialect.
func (d Dialect) Valid() bool { return d == DialectSQLite || d == DialectPostgres }

// Config holds connection parameters.
type Config struct {
	Dialect      Dialect
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Rows touched per IN (...) statement during cleanup.
const cleanupChunk = 500

// Store implements persistence.Store on a relational database.
type Store struct {
	db        *gorm.DB
	sqlDB     *sql.DB
	dialect   Dialect
	log       logger.Logger
	slowQuery time.Duration
}

var _ persistence.Store = (*Store)(nil)

var upsertRecord = clause.OnConflict{ //nolint:gochecknoglobals // immutable clause
	Columns:   []clause.Column{{Name: "tracking_id"}},
	UpdateAll: true,
}

var upsertEdge = clause.OnConflict{ //nolint:gochecknoglobals // immutable clause
	Columns:   []clause.Column{{Name: "scope"}, {Name: "camera_lo"}, {Name: "camera_hi"}},
	DoUpdates: clause.AssignmentColumns([]string{"camera_a_id", "camera_b_id", "transition_seconds", "direction"}),
}

// Open connects, applies migrations and returns a ready store.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if !cfg.Dialect.Valid() {
		return nil, errors.Wrapf(persistence.ErrUnknownBackend, "dialect %q", cfg.Dialect)
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, persistence.ErrMissingDSN
	}

	s := &Store{dialect: cfg.Dialect, slowQuery: 200 * time.Millisecond}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("sqlstore")
	}

	gcfg := &gorm.Config{
		Logger:                 newQueryLog(s.log, s.slowQuery),
		SkipDefaultTransaction: true,
	}

	var err error
	switch cfg.Dialect {
	case DialectSQLite:
		s.db, err = gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: sqliteDSN(cfg.DSN)}, gcfg)
	case DialectPostgres:
		var conn *sql.DB
		conn, err = sql.Open("pgx", cfg.DSN)
		if err == nil {
			s.db, err = gorm.Open(postgres.New(postgres.Config{Conn: conn}), gcfg)
		}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "sqlstore: open %s", cfg.Dialect)
	}

	s.sqlDB, err = s.db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore: underlying connection")
	}
	if cfg.Dialect == DialectSQLite {
		// One connection serializes writers and keeps :memory: databases shared.
		s.sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			s.sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			s.sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}

	if err := s.Ping(ctx); err != nil {
		_ = s.sqlDB.Close()
		return nil, err
	}
	if err := RunMigrations(ctx, s.db, cfg.Dialect); err != nil {
		_ = s.sqlDB.Close()
		return nil, err
	}

	s.log.Info(ctx, "relational store ready", logger.String("dialect", string(cfg.Dialect)))
	return s, nil
}

// sqliteDSN turns on foreign keys, which SQLite leaves off per connection.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Dialect returns the engine the store runs on.
func (s *Store) Dialect() Dialect { return s.dialect }

// DB exposes the underlying gorm handle for maintenance tasks.
func (s *Store) DB() *gorm.DB { return s.db }

// Apply writes the batch in order inside one transaction.
func (s *Store) Apply(ctx context.Context, b persistence.Batch) error {
	for i, op := range b.Ops {
		if (op.Record == nil) == (op.Point == nil) {
			return errors.Wrapf(persistence.ErrInvalidBatch, "op %d must set exactly one of record or point", i)
		}
		if op.Record != nil && op.Record.TrackingID == "" {
			return errors.Wrapf(persistence.ErrInvalidBatch, "op %d: empty tracking id", i)
		}
	}
	if b.Len() == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, op := range b.Ops {
			if op.Record != nil {
				m, err := fromRecord(*op.Record)
				if err != nil {
					return err
				}
				if err := tx.Clauses(upsertRecord).Create(&m).Error; err != nil {
					return errors.Wrapf(err, "upsert record %s", m.TrackingID)
				}
				continue
			}
			m := fromPoint(*op.Point)
			if err := tx.Create(&m).Error; err != nil {
				return errors.Wrapf(err, "append trajectory point for %s", m.TrackingID)
			}
		}
		return nil
	})
	return errors.Wrap(err, "sqlstore: apply batch")
}

// GetRecord returns a live record.
func (s *Store) GetRecord(ctx context.Context, trackingID string) (model.TrackingRecord, error) {
	var m TrackingRecordModel
	err := s.db.WithContext(ctx).
		Where("tracking_id = ? AND deleted_at IS NULL", trackingID).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.TrackingRecord{}, persistence.ErrNotFound
	}
	if err != nil {
		return model.TrackingRecord{}, errors.Wrap(err, "sqlstore: get record")
	}
	return m.toRecord()
}

// GetTrajectory returns points ascending by time, insertion order on ties.
func (s *Store) GetTrajectory(ctx context.Context, trackingID string) ([]model.TrajectoryPoint, error) {
	rows := make([]TrajectoryPointModel, 0)
	err := s.db.WithContext(ctx).
		Where("tracking_id = ?", trackingID).
		Order("observed_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore: get trajectory")
	}
	out := make([]model.TrajectoryPoint, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toPoint())
	}
	return out, nil
}

// likePattern escapes LIKE wildcards and wraps s for a substring match.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(strings.TrimSpace(s))) + "%"
}

// Search mirrors persistence.Matches in SQL.
func (s *Store) Search(ctx context.Context, q model.SearchQuery) ([]model.TrackingRecord, error) {
	tx := s.db.WithContext(ctx).Model(&TrackingRecordModel{}).Where("deleted_at IS NULL")
	switch {
	case strings.TrimSpace(q.Badge) != "":
		tx = tx.Where(`badge_number <> '' AND LOWER(badge_number) LIKE ? ESCAPE '\'`, likePattern(q.Badge))
	case strings.TrimSpace(q.ClothingColor) != "":
		p := likePattern(q.ClothingColor)
		tx = tx.Where(`(LOWER(clothing_upper) LIKE ? ESCAPE '\' OR LOWER(clothing_lower) LIKE ? ESCAPE '\')`, p, p)
	default:
		return []model.TrackingRecord{}, nil
	}

	rows := make([]TrackingRecordModel, 0)
	if err := tx.Order("last_seen_at DESC, tracking_id ASC").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "sqlstore: search")
	}
	return toRecords(rows)
}

func toRecords(rows []TrackingRecordModel) ([]model.TrackingRecord, error) {
	out := make([]model.TrackingRecord, 0, len(rows))
	for _, m := range rows {
		r, err := m.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

type cameraCount struct {
	Camera string
	N      int64
}

// Statistics aggregates inside one transaction so counts agree.
func (s *Store) Statistics(ctx context.Context, asOf time.Time, activeWindow time.Duration) (model.Statistics, error) {
	st := model.Statistics{PerCameraCounts: make(map[string]int)}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		live := func() *gorm.DB {
			return tx.Model(&TrackingRecordModel{}).Where("deleted_at IS NULL")
		}
		var total, active, linked, badged, points int64
		if err := live().Count(&total).Error; err != nil {
			return err
		}
		if err := live().Where("last_seen_at >= ?", toNanos(asOf.Add(-activeWindow))).Count(&active).Error; err != nil {
			return err
		}
		if err := live().Where("linked_worker_id IS NOT NULL").Count(&linked).Error; err != nil {
			return err
		}
		if err := live().Where("badge_number <> ''").Count(&badged).Error; err != nil {
			return err
		}
		if err := tx.Model(&TrajectoryPointModel{}).Count(&points).Error; err != nil {
			return err
		}
		var perCamera []cameraCount
		if err := live().
			Select("last_seen_camera_id AS camera, COUNT(*) AS n").
			Group("last_seen_camera_id").
			Scan(&perCamera).Error; err != nil {
			return err
		}

		st.TotalTracks = int(total)
		st.ActiveTracks = int(active)
		st.LinkedTracks = int(linked)
		st.BadgeIdentifiedTracks = int(badged)
		st.TotalTrajectoryPoints = int(points)
		for _, c := range perCamera {
			st.PerCameraCounts[c.Camera] = int(c.N)
		}
		return nil
	})
	if err != nil {
		return model.Statistics{}, errors.Wrap(err, "sqlstore: statistics")
	}
	return st, nil
}

// Cleanup soft-deletes (or deletes) stale records. Trajectories go with them:
// explicitly for soft deletes, through the foreign key cascade for hard ones.
func (s *Store) Cleanup(ctx context.Context, p persistence.CleanupParams) ([]string, int, error) {
	var (
		removed   []string
		remaining int64
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&TrackingRecordModel{}).
			Where("deleted_at IS NULL AND last_seen_at < ?", cutoffNanos(p.Cutoff))
		if p.KeepLinked {
			q = q.Where("linked_worker_id IS NULL")
		}
		if err := q.Order("tracking_id ASC").Pluck("tracking_id", &removed).Error; err != nil {
			return errors.Wrap(err, "select stale records")
		}

		deletedAt := p.Now.UnixNano()
		for start := 0; start < len(removed); start += cleanupChunk {
			end := min(start+cleanupChunk, len(removed))
			ids := removed[start:end]
			if p.Hard {
				if err := tx.Where("tracking_id IN ?", ids).Delete(&TrackingRecordModel{}).Error; err != nil {
					return errors.Wrap(err, "delete records")
				}
				continue
			}
			if err := tx.Model(&TrackingRecordModel{}).
				Where("tracking_id IN ?", ids).
				Update("deleted_at", deletedAt).Error; err != nil {
				return errors.Wrap(err, "mark records deleted")
			}
			if err := tx.Where("tracking_id IN ?", ids).Delete(&TrajectoryPointModel{}).Error; err != nil {
				return errors.Wrap(err, "delete trajectories")
			}
		}

		return tx.Model(&TrackingRecordModel{}).Where("deleted_at IS NULL").Count(&remaining).Error
	})
	if err != nil {
		return nil, 0, errors.Wrap(err, "sqlstore: cleanup")
	}
	if removed == nil {
		removed = []string{}
	}
	return removed, int(remaining), nil
}

// LiveSince returns live records last seen at or after cutoff, oldest first.
func (s *Store) LiveSince(ctx context.Context, cutoff time.Time) ([]model.TrackingRecord, error) {
	rows := make([]TrackingRecordModel, 0)
	err := s.db.WithContext(ctx).
		Where("deleted_at IS NULL AND last_seen_at >= ?", cutoffNanos(cutoff)).
		Order("last_seen_at ASC, tracking_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore: live since")
	}
	return toRecords(rows)
}

// LatestSighting returns the newest LastSeenTime among live records.
func (s *Store) LatestSighting(ctx context.Context) (time.Time, bool, error) {
	var latest sql.NullInt64
	err := s.db.WithContext(ctx).
		Model(&TrackingRecordModel{}).
		Select("MAX(last_seen_at)").
		Where("deleted_at IS NULL").
		Row().Scan(&latest)
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "sqlstore: latest sighting")
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return fromNanos(latest.Int64), true, nil
}

// SaveEdge upserts by (scope, unordered pair).
func (s *Store) SaveEdge(ctx context.Context, e model.CameraTopologyEdge) error {
	m := fromEdge(e)
	err := s.db.WithContext(ctx).Clauses(upsertEdge).Create(&m).Error
	return errors.Wrap(err, "sqlstore: save edge")
}

// ListEdges returns all edges ordered by scope then pair.
func (s *Store) ListEdges(ctx context.Context) ([]model.CameraTopologyEdge, error) {
	rows := make([]TopologyEdgeModel, 0)
	err := s.db.WithContext(ctx).
		Order("scope ASC, camera_lo ASC, camera_hi ASC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore: list edges")
	}
	out := make([]model.CameraTopologyEdge, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toEdge())
	}
	return out, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return errors.Wrap(s.sqlDB.PingContext(ctx), "sqlstore: ping")
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return errors.Wrap(s.sqlDB.Close(), "sqlstore: close")
}
