// Package sqlstore is the SQLite Store driver built on gorm and the pure-Go
// glebarez/sqlite dialector.
package sqlstore

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/IvanBrykalov/linkcache/cache"
	"github.com/IvanBrykalov/linkcache/internal/errs"
	"github.com/IvanBrykalov/linkcache/internal/logging"
	"github.com/IvanBrykalov/linkcache/store"
)

// Store implements store.Store on a gorm database.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open opens (creating its directory if needed) the SQLite database at dsn.
// The pool is limited to one connection: SQLite serializes writers anyway,
// and ":memory:" databases are per connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	logCtx := logging.WithAttrs(ctx, slog.String("component", "store.sqlite"))

	if err := ensureDirectory(dsn); err != nil {
		return nil, errs.Wrap(err, "ensure sqlite directory")
	}

	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, errs.Wrap(err, "open sqlite db")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errs.Wrap(err, "get sql db")
	}
	sqlDB.SetMaxOpenConns(1)

	logging.Info(logCtx, "database opened", slog.String("driver", "sqlite"), slog.String("dsn", dsn))
	return New(db, nil), nil
}

// New wraps an open gorm database. now overrides the clock; nil means
// time.Now.
func New(db *gorm.DB, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, now: now}
}

// Migrate creates or updates the links table and its indices.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Link{}); err != nil {
		return errs.Wrap(err, "auto migrate links")
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (cache.Record, error) {
	return s.find(ctx, "find link by id", "id = ?", id)
}

func (s *Store) FindByLocator(ctx context.Context, locator string) (cache.Record, error) {
	return s.find(ctx, "find link by locator", "locator = ?", locator)
}

func (s *Store) find(ctx context.Context, op, cond string, arg string) (cache.Record, error) {
	var row Link
	err := s.db.WithContext(ctx).
		Where(cond, arg).
		Where("expires_at > ?", s.now().UnixNano()).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return cache.Record{}, store.ErrNotFound
		}
		return cache.Record{}, store.Unavailable(err, op)
	}
	return row.record(), nil
}

// Create inserts rec inside a transaction. Expired rows holding the same id
// or locator are deleted first; a live one makes the insert a no-op, which
// is reported as store.ErrConflict.
func (s *Store) Create(ctx context.Context, rec cache.Record) error {
	row := fromRecord(rec)
	now := s.now().UnixNano()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("(id = ? OR locator = ?) AND expires_at <= ?", row.ID, row.Locator, now).
			Delete(&Link{}).Error; err != nil {
			return errs.Wrap(err, "delete expired blocking rows")
		}

		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if result.Error != nil {
			return errs.Wrap(result.Error, "insert link")
		}
		if result.RowsAffected == 0 {
			return store.ErrConflict
		}
		return nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrConflict):
		return err
	default:
		return store.Unavailable(err, "create link")
	}
}

func (s *Store) RefreshExpiration(ctx context.Context, id string, expiresAt time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&Link{}).
		Where("id = ? AND expires_at > ?", id, s.now().UnixNano()).
		Update("expires_at", expiresAt.UnixNano())
	if result.Error != nil {
		return store.Unavailable(result.Error, "refresh link expiration")
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", now.UnixNano()).
		Delete(&Link{})
	if result.Error != nil {
		return 0, store.Unavailable(result.Error, "delete expired links")
	}
	return result.RowsAffected, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errs.Wrap(err, "get sql db")
	}
	if err := sqlDB.Close(); err != nil {
		return errs.Wrap(err, "close sql db")
	}
	return nil
}

func ensureDirectory(dsn string) error {
	candidate := strings.TrimSpace(dsn)
	if candidate == "" || candidate == ":memory:" {
		return nil
	}
	if strings.HasPrefix(strings.ToLower(candidate), "file:") {
		candidate = candidate[len("file:"):]
	}
	if idx := strings.Index(candidate, "?"); idx >= 0 {
		candidate = candidate[:idx]
	}

	dir := filepath.Dir(candidate)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrapf(err, "create sqlite directory %q", dir)
	}
	return nil
}
