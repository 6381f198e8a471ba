package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/expcache/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

// Redis stores entries as plain string keys. A server running with maxmemory and
// a noeviction policy answers writes over the limit with OOM, which is reported
// as provider.ErrQuotaExceeded.
type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
	scanCount   int64
}

var (
	_ pr.Store        = (*Redis)(nil)
	_ pr.PrefixLister = (*Redis)(nil)
)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool  // set true only if this provider exclusively owns the client
	ScanCount   int64 // SCAN COUNT hint; 0 => 512
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	n := cfg.ScanCount
	if n <= 0 {
		n = 512
	}
	return &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient, scanCount: n}, nil
}

func (p *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	s, err := p.rdb.Get(ctx, key).Result()
	if err == goredis.Nil {
		return "", false, nil // miss
	}
	if err != nil {
		return "", false, err // transport/server error
	}
	return s, true, nil
}

func (p *Redis) Set(ctx context.Context, key, value string) error {
	err := p.rdb.Set(ctx, key, value, 0).Err()
	if isOOM(err) {
		return fmt.Errorf("redis: set %q: %w (%v)", key, pr.ErrQuotaExceeded, err)
	}
	return err
}

func isOOM(err error) bool {
	var rerr goredis.Error
	return errors.As(err, &rerr) && strings.HasPrefix(rerr.Error(), "OOM ")
}

func (p *Redis) Del(ctx context.Context, key string) error {
	return p.rdb.Del(ctx, key).Err()
}

// Keys scans the whole database. Order is whatever SCAN yields.
func (p *Redis) Keys(ctx context.Context) ([]string, error) {
	return p.scan(ctx, "*")
}

func (p *Redis) KeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	return p.scan(ctx, escapeGlob(prefix)+"*")
}

func (p *Redis) scan(ctx context.Context, match string) ([]string, error) {
	var (
		out    []string
		cursor uint64
	)
	seen := make(map[string]struct{})
	for {
		keys, next, err := p.rdb.Scan(ctx, cursor, match, p.scanCount).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			// SCAN may return a key more than once
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

// escapeGlob quotes the characters SCAN MATCH treats as patterns.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\', '^', '-':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Clear flushes the selected database.
func (p *Redis) Clear(ctx context.Context) error {
	return p.rdb.FlushDB(ctx).Err()
}

// Close releases the underlying redis client only when this provider owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
