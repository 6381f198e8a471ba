package ristretto

import (
	"context"
	"errors"
	"fmt"
	"sync"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/expcache/provider"
)

// Provider stores entries in Ristretto with cost = len(key)+len(value).
//
// Ristretto admits writes asynchronously and may refuse them (TinyLFU). Set waits
// for the write buffer to drain and checks that the key landed; a refused write
// is reported as provider.ErrQuotaExceeded so expcache runs its own eviction pass.
// Ristretto cannot enumerate keys, so Provider keeps an insertion-ordered index
// that its eviction callbacks keep in sync.
type Provider struct {
	c *rc.Cache

	mu    sync.Mutex
	index map[string]struct{}
	order []string
}

var _ pr.Store = (*Provider)(nil)

type Config struct {
	NumCounters int64 // ~10x the expected number of entries
	MaxCost     int64 // bytes
	BufferItems int64 // 0 => 64
	Metrics     bool
}

// entry keeps the string key next to the value; eviction callbacks only see hashes.
type entry struct {
	key   string
	value string
}

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}
	p := &Provider{index: make(map[string]struct{})}
	c, err := rc.NewCache(&rc.Config{
		NumCounters:        cfg.NumCounters,
		MaxCost:            cfg.MaxCost,
		BufferItems:        cfg.BufferItems,
		Metrics:            cfg.Metrics,
		IgnoreInternalCost: true,
		OnEvict:            p.forgetItem,
		OnReject:           p.forgetItem,
	})
	if err != nil {
		return nil, err
	}
	p.c = c
	return p, nil
}

func (p *Provider) forgetItem(item *rc.Item) {
	if e, ok := item.Value.(entry); ok {
		p.forget(e.key)
	}
}

// remember indexes key and reports whether it was new.
func (p *Provider) remember(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.index[key]; ok {
		return false
	}
	p.index[key] = struct{}{}
	p.order = append(p.order, key)
	return true
}

func (p *Provider) forget(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.index[key]; !ok {
		return
	}
	delete(p.index, key)
	for i, k := range p.order {
		if k == key {
			p.order = append(p.order[:i], p.order[i+1:]...)
			return
		}
	}
}

func (p *Provider) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return "", false, nil
	}
	e, ok := v.(entry)
	if !ok || e.key != key {
		// self-heal: drop unexpected entry shape
		p.c.Del(key)
		p.forget(key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (p *Provider) Set(_ context.Context, key, value string) error {
	cost := int64(len(key) + len(value))
	if cost > p.c.MaxCost() {
		return fmt.Errorf("ristretto: set %q (cost %d): %w", key, cost, pr.ErrQuotaExceeded)
	}
	added := p.remember(key)
	if !p.c.Set(key, entry{key: key, value: value}, cost) {
		if added {
			p.forget(key)
		}
		return fmt.Errorf("ristretto: set %q dropped: %w", key, pr.ErrQuotaExceeded)
	}
	p.c.Wait()
	if v, ok := p.c.Get(key); !ok || v.(entry).value != value {
		if !ok {
			p.forget(key)
		}
		return fmt.Errorf("ristretto: set %q refused: %w", key, pr.ErrQuotaExceeded)
	}
	return nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	p.c.Wait()
	p.forget(key)
	return nil
}

func (p *Provider) Keys(_ context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out, nil
}

func (p *Provider) Clear(_ context.Context) error {
	p.c.Clear()
	p.mu.Lock()
	p.index = make(map[string]struct{})
	p.order = nil
	p.mu.Unlock()
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Metrics exposes Ristretto's counters when Config.Metrics is set.
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
