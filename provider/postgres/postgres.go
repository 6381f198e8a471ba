package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	pr "github.com/unkn0wn-root/expcache/provider"
)

// Postgres keeps the flat store in one table. Keys are enumerated in first-insert
// order (seq), matching the memory store. Over-quota writes are reported as
// provider.ErrQuotaExceeded: either the configured MaxBytes or the server running
// out of disk (SQLSTATE 53100) / hitting a size limit (54000).
type Postgres struct {
	db       *gorm.DB
	table    string
	maxBytes int64
	closeDB  bool
}

var (
	_ pr.Store        = (*Postgres)(nil)
	_ pr.PrefixLister = (*Postgres)(nil)
)

type Config struct {
	DSN      string   // used when DB is nil
	DB       *gorm.DB // existing handle; not closed by Close
	Table    string   // "" => "expcache_entries"
	MaxBytes int64    // 0 = unlimited
}

type row struct {
	Key   string `gorm:"primaryKey"`
	Value []byte `gorm:"not null"`
	Seq   int64  `gorm:"autoIncrement;not null;index"`
}

func Open(cfg Config) (*Postgres, error) {
	db := cfg.DB
	owned := false
	if db == nil {
		var err error
		db, err = gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("postgres: open: %w", err)
		}
		owned = true
	}
	table := cfg.Table
	if table == "" {
		table = "expcache_entries"
	}
	if err := db.Table(table).AutoMigrate(&row{}); err != nil {
		return nil, fmt.Errorf("postgres: migrate %s: %w", table, err)
	}
	return &Postgres{db: db, table: table, maxBytes: cfg.MaxBytes, closeDB: owned}, nil
}

func (p *Postgres) tx(ctx context.Context) *gorm.DB {
	return p.db.WithContext(ctx).Table(p.table)
}

func (p *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	var r row
	err := p.tx(ctx).Where("key = ?", key).Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(r.Value), true, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string) error {
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if p.maxBytes > 0 {
			var others int64
			err := tx.Table(p.table).
				Select("COALESCE(SUM(octet_length(key) + octet_length(value)), 0)").
				Where("key <> ?", key).
				Scan(&others).Error
			if err != nil {
				return err
			}
			if next := others + int64(len(key)+len(value)); next > p.maxBytes {
				return fmt.Errorf("postgres: set %q (%d/%d bytes): %w", key, next, p.maxBytes, pr.ErrQuotaExceeded)
			}
		}
		return tx.Table(p.table).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).Create(&row{Key: key, Value: []byte(value)}).Error
	})
	if isCapacity(err) {
		return fmt.Errorf("postgres: set %q: %w (%v)", key, pr.ErrQuotaExceeded, err)
	}
	return err
}

func isCapacity(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "53100", "54000": // disk_full, program_limit_exceeded
		return true
	}
	return false
}

func (p *Postgres) Del(ctx context.Context, key string) error {
	return p.tx(ctx).Where("key = ?", key).Delete(&row{}).Error
}

func (p *Postgres) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := p.tx(ctx).Order("seq").Pluck("key", &keys).Error
	return keys, err
}

func (p *Postgres) KeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := p.tx(ctx).Where("starts_with(key, ?)", prefix).Order("seq").Pluck("key", &keys).Error
	return keys, err
}

func (p *Postgres) Clear(ctx context.Context) error {
	return p.tx(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&row{}).Error
}

// Close closes the connection pool only when Open created it.
func (p *Postgres) Close(context.Context) error {
	if !p.closeDB {
		return nil
	}
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
