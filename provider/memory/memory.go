package memory

import (
	"context"
	"fmt"
	"sync"

	pr "github.com/unkn0wn-root/expcache/provider"
)

// Memory is an in-process store with insertion-ordered keys and a byte quota
// counted over len(key)+len(value), the way browser web storage accounts it.
type Memory struct {
	mu       sync.RWMutex
	m        map[string]string
	order    []string
	used     int
	maxBytes int
}

var _ pr.Store = (*Memory)(nil)

type Config struct {
	MaxBytes int // 0 = unlimited
}

func New(cfg Config) *Memory {
	return &Memory{m: make(map[string]string), maxBytes: cfg.MaxBytes}
}

func (p *Memory) Get(_ context.Context, key string) (string, bool, error) {
	p.mu.RLock()
	v, ok := p.m[key]
	p.mu.RUnlock()
	return v, ok, nil
}

func (p *Memory) Set(_ context.Context, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	old, exists := p.m[key]
	next := p.used + len(key) + len(value)
	if exists {
		next -= len(key) + len(old)
	}
	if p.maxBytes > 0 && next > p.maxBytes {
		return fmt.Errorf("memory: set %q (%d/%d bytes): %w", key, next, p.maxBytes, pr.ErrQuotaExceeded)
	}
	if !exists {
		p.order = append(p.order, key)
	}
	p.m[key] = value
	p.used = next
	return nil
}

func (p *Memory) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[key]
	if !ok {
		return nil
	}
	delete(p.m, key)
	p.used -= len(key) + len(v)
	for i, k := range p.order {
		if k == key {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return nil
}

func (p *Memory) Keys(_ context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out, nil
}

func (p *Memory) Clear(_ context.Context) error {
	p.mu.Lock()
	p.m = make(map[string]string)
	p.order = nil
	p.used = 0
	p.mu.Unlock()
	return nil
}

// Used reports the bytes currently accounted against the quota.
func (p *Memory) Used() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.used
}

func (p *Memory) Close(_ context.Context) error { return nil }
