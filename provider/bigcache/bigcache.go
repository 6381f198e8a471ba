package bigcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	bc "github.com/allegro/bigcache/v3"

	pr "github.com/unkn0wn-root/expcache/provider"
)

// Provider keeps entries in BigCache's sharded byte queues.
//
// BigCache evicts the oldest entries of a shard on its own when the shard is
// full; only an entry that cannot fit even in an empty shard comes back as
// provider.ErrQuotaExceeded. Keys are enumerated in shard order.
type Provider struct {
	c *bc.BigCache
}

var _ pr.Store = (*Provider)(nil)

type Config struct {
	Shards             int           // power of two; 0 => 64
	LifeWindow         time.Duration // bigcache-level expiry; 0 => effectively never (10 years)
	MaxEntrySize       int           // initial shard sizing hint in bytes
	HardMaxCacheSizeMB int           // ~ memory limit; 0 = unlimited
}

func New(cfg Config) (*Provider, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		// expiration is handled by expcache markers
		life = 10 * 365 * 24 * time.Hour
	}
	conf := bc.DefaultConfig(life)
	conf.CleanWindow = 0
	conf.Verbose = false
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return &Provider{c: c}, nil
}

func (p *Provider) Get(_ context.Context, key string) (string, bool, error) {
	b, err := p.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

func (p *Provider) Set(_ context.Context, key, value string) error {
	err := p.c.Set(key, []byte(value))
	if err != nil && strings.Contains(err.Error(), "bigger than max shard size") {
		return fmt.Errorf("bigcache: set %q: %w", key, pr.ErrQuotaExceeded)
	}
	return err
}

func (p *Provider) Del(_ context.Context, key string) error {
	err := p.c.Delete(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil
	}
	return err
}

func (p *Provider) Keys(_ context.Context) ([]string, error) {
	out := make([]string, 0, p.c.Len())
	it := p.c.Iterator()
	for it.SetNext() {
		e, err := it.Value()
		if err != nil {
			// entry removed between SetNext and Value
			continue
		}
		out = append(out, e.Key())
	}
	return out, nil
}

func (p *Provider) Clear(_ context.Context) error {
	return p.c.Reset()
}

func (p *Provider) Close(_ context.Context) error {
	return p.c.Close()
}
