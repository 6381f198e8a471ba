package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/expcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	EvictedEvery uint64
	ExpiredEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	evictedCtr atomic.Uint64
	expiredCtr atomic.Uint64
}

var _ expcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) StoreProbed(supported bool, err error) {
	if h.l == nil {
		return
	}
	if supported {
		h.l.Info("expcache.store_probed", "supported", true)
		return
	}
	h.l.Error("expcache.store_probed", "supported", false, "err", err)
}

func (h *Hooks) Expired(storageKey string) {
	if h.l == nil || !sample(h.opts.ExpiredEvery, &h.expiredCtr) {
		return
	}
	h.l.Debug("expcache.expired", "key", h.redact(storageKey))
}

func (h *Hooks) Evicted(storageKey string, size int, expiration int64) {
	if h.l == nil || !sample(h.opts.EvictedEvery, &h.evictedCtr) {
		return
	}
	h.l.Info("expcache.evicted",
		"key", h.redact(storageKey),
		"size", size,
		"expiration", expiration)
}

func (h *Hooks) SetAbandoned(storageKey, reason string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("expcache.set_abandoned",
		"key", h.redact(storageKey),
		"reason", reason,
		"err", err)
}
