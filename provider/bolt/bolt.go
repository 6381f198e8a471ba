package bolt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall"
	"time"

	pr "github.com/unkn0wn-root/expcache/provider"
	bolt "go.etcd.io/bbolt"
)

// Bolt is a persistent store backed by one bbolt bucket. Bytes are accounted as
// len(key)+len(value) against MaxBytes; the file itself may be larger.
type Bolt struct {
	db       *bolt.DB
	bucket   []byte
	maxBytes int64
	closeDB  bool

	mu   sync.Mutex // guards used across the check-then-write in Set
	used int64
}

var (
	_ pr.Store        = (*Bolt)(nil)
	_ pr.PrefixLister = (*Bolt)(nil)
)

type Config struct {
	Path     string // used when DB is nil
	DB       *bolt.DB
	Bucket   string // "" => "expcache"
	MaxBytes int64  // 0 = unlimited
}

// Open opens (or creates) the database and bucket and measures current usage.
func Open(cfg Config) (*Bolt, error) {
	db := cfg.DB
	owned := false
	if db == nil {
		var err error
		db, err = bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
		if err != nil {
			return nil, err
		}
		owned = true
	}
	bucket := []byte("expcache")
	if cfg.Bucket != "" {
		bucket = []byte(cfg.Bucket)
	}

	var used int64
	err := db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucket)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			used += int64(len(k) + len(v))
			return nil
		})
	})
	if err != nil {
		if owned {
			_ = db.Close()
		}
		return nil, err
	}
	return &Bolt{db: db, bucket: bucket, maxBytes: cfg.MaxBytes, closeDB: owned, used: used}, nil
}

func (p *Bolt) Get(_ context.Context, key string) (string, bool, error) {
	var (
		out   string
		found bool
	)
	err := p.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(p.bucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		out = string(v) // copies; v is only valid inside the tx
		return nil
	})
	return out, found, err
}

func (p *Bolt) Set(_ context.Context, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var next int64
	err := p.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(p.bucket)
		next = p.used + int64(len(key)+len(value))
		if old := b.Get([]byte(key)); old != nil {
			next -= int64(len(key) + len(old))
		}
		if p.maxBytes > 0 && next > p.maxBytes {
			return fmt.Errorf("bolt: set %q (%d/%d bytes): %w", key, next, p.maxBytes, pr.ErrQuotaExceeded)
		}
		return b.Put([]byte(key), []byte(value))
	})
	if err != nil {
		if isDiskFull(err) {
			return fmt.Errorf("bolt: set %q: %w (%v)", key, pr.ErrQuotaExceeded, err)
		}
		return err
	}
	// usage follows the committed state only
	p.used = next
	return nil
}

func isDiskFull(err error) bool {
	return errors.Is(err, syscall.ENOSPC)
}

func (p *Bolt) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var freed int64
	err := p.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(p.bucket)
		old := b.Get([]byte(key))
		if old == nil {
			return nil
		}
		freed = int64(len(key) + len(old))
		return b.Delete([]byte(key))
	})
	if err != nil {
		return err
	}
	p.used -= freed
	return nil
}

// Keys returns keys in bbolt's byte order.
func (p *Bolt) Keys(ctx context.Context) ([]string, error) {
	return p.KeysWithPrefix(ctx, "")
}

func (p *Bolt) KeysWithPrefix(_ context.Context, prefix string) ([]string, error) {
	var out []string
	pfx := []byte(prefix)
	err := p.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(p.bucket).Cursor()
		for k, _ := c.Seek(pfx); k != nil && hasPrefix(k, pfx); k, _ = c.Next() {
			out = append(out, string(k))
		}
		return nil
	})
	return out, err
}

func hasPrefix(k, pfx []byte) bool {
	return len(k) >= len(pfx) && string(k[:len(pfx)]) == string(pfx)
}

// Clear drops and recreates the bucket.
func (p *Bolt) Clear(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(p.bucket); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket(p.bucket)
		return err
	})
	if err == nil {
		p.used = 0
	}
	return err
}

// Used reports the bytes currently accounted against MaxBytes.
func (p *Bolt) Used() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used
}

// Close closes the database only when Open created it.
func (p *Bolt) Close(_ context.Context) error {
	if p == nil || p.db == nil || !p.closeDB {
		return nil
	}
	return p.db.Close()
}
