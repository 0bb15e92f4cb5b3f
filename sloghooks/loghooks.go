package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/saint0x/stateless"
	"github.com/saint0x/stateless/layer"
	"github.com/saint0x/stateless/ownership"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery     uint64
	AccessDeniedEvery uint64
	WatchDropEvery    uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	deniedCtr   atomic.Uint64
	dropCtr     atomic.Uint64
}

var _ stateless.Hooks = (*Hooks)(nil)

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

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("stateless.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) AccessDenied(key string, from layer.ID, mode ownership.Mode) {
	if h.l == nil || !sample(h.opts.AccessDeniedEvery, &h.deniedCtr) {
		return
	}
	h.l.Info("stateless.access_denied",
		"key", h.redact(key),
		"from", from.String(),
		"mode", mode.String())
}

func (h *Hooks) RoutingDenied(key string, target layer.ID) {
	if h.l == nil {
		return
	}
	h.l.Warn("stateless.routing_denied",
		"key", h.redact(key),
		"target", target.String())
}

func (h *Hooks) StoreSetRejected(target layer.ID, storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("stateless.store_set_rejected",
		"tier", target.String(),
		"key", h.redact(storageKey))
}

func (h *Hooks) InvalidateFailed(target layer.ID, storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("stateless.invalidate_failed",
		"tier", target.String(),
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) WatchDropped(pattern string) {
	if h.l == nil || !sample(h.opts.WatchDropEvery, &h.dropCtr) {
		return
	}
	h.l.Debug("stateless.watch_dropped",
		"pattern", pattern)
}
