package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/wso2/consent-widget/internal/system/utils"
)

// SQL statements for the widget store table.
const (
	queryCreateStoreTable = `CREATE TABLE IF NOT EXISTS WIDGET_STORE (
		STORE_KEY VARCHAR(255) NOT NULL PRIMARY KEY,
		STORE_VALUE MEDIUMBLOB NOT NULL,
		EXPIRES_AT BIGINT NOT NULL DEFAULT 0,
		UPDATED_TIME BIGINT NOT NULL
	)`

	queryGetEntry = `SELECT STORE_VALUE, EXPIRES_AT FROM WIDGET_STORE WHERE STORE_KEY = ?`

	queryUpsertEntry = `INSERT INTO WIDGET_STORE (STORE_KEY, STORE_VALUE, EXPIRES_AT, UPDATED_TIME)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE STORE_VALUE = VALUES(STORE_VALUE),
			EXPIRES_AT = VALUES(EXPIRES_AT), UPDATED_TIME = VALUES(UPDATED_TIME)`

	queryDeleteEntry = `DELETE FROM WIDGET_STORE WHERE STORE_KEY = ?`
)

// MySQLStore is the sidecar backend: one shared database holds entries
// for many visitors, keyed externally by visitor-scoped keys.
type MySQLStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
	now    func() time.Time
}

// MySQLOptions holds the connection pool settings.
type MySQLOptions struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewMySQLStore connects to the database and ensures the store table.
func NewMySQLStore(ctx context.Context, opts MySQLOptions, logger *logrus.Logger) (*MySQLStore, error) {
	db, err := sqlx.Open("mysql", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := db.ExecContext(ctx, queryCreateStoreTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure store table: %w", err)
	}

	logger.Info("MySQL widget store initialized")
	return &MySQLStore{db: db, logger: logger, now: time.Now}, nil
}

func (s *MySQLStore) Get(ctx context.Context, key string) (*Entry, error) {
	var row struct {
		Value     []byte `db:"STORE_VALUE"`
		ExpiresAt int64  `db:"EXPIRES_AT"`
	}
	err := s.db.GetContext(ctx, &row, queryGetEntry, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store entry: %w", err)
	}

	entry := Entry{Value: row.Value}
	if row.ExpiresAt > 0 {
		entry.ExpiresAt = utils.MillisToTime(row.ExpiresAt)
	}
	if entry.Expired(s.now()) {
		return nil, nil
	}
	return &entry, nil
}

func (s *MySQLStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = utils.TimeToMillis(s.now().Add(ttl))
	}
	_, err := s.db.ExecContext(ctx, queryUpsertEntry, key, value, expiresAt, utils.TimeToMillis(s.now()))
	if err != nil {
		return fmt.Errorf("failed to write store entry: %w", err)
	}
	return nil
}

func (s *MySQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, queryDeleteEntry, key); err != nil {
		return fmt.Errorf("failed to delete store entry: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
