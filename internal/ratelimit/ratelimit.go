// Package ratelimit implements per-connection admission control: a token
// bucket per authenticated user for gateway events and authenticated HTTP
// requests, plus a
// maintenance-mode gate that rejects non-admin traffic outright.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ourchat/ourchat-server/internal/ids"
)

// Limiter hands out one token-bucket rate.Limiter per user, created lazily
// and kept until Forget drops it (the gateway hub calls Forget when a
// client unregisters).
type Limiter struct {
	mu       sync.Mutex
	buckets  map[ids.UserId]*rate.Limiter
	burst    int
	interval time.Duration
}

// NewLimiter creates a Limiter that allows burst tokens immediately and
// refills one token every interval thereafter.
func NewLimiter(burst int, interval time.Duration) *Limiter {
	return &Limiter{
		buckets:  make(map[ids.UserId]*rate.Limiter),
		burst:    burst,
		interval: interval,
	}
}

func (l *Limiter) bucketFor(userID ids.UserId) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[userID]
	if !ok {
		b = rate.NewLimiter(rate.Every(l.interval), l.burst)
		l.buckets[userID] = b
	}
	return b
}

// Allow reports whether the given user may send one more event right now,
// consuming a token if so.
func (l *Limiter) Allow(userID ids.UserId) bool {
	return l.bucketFor(userID).Allow()
}

// Forget drops a user's bucket, reclaiming memory once a connection closes.
func (l *Limiter) Forget(userID ids.UserId) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, userID)
}

// AdmissionGate decides whether a request is admitted while maintenance
// mode is active: only a caller flagged as server admin passes. The gate
// takes that flag as a bool; it does not look up any ServerPermission bit
// itself.
type AdmissionGate struct {
	maintenanceMode func() bool
}

func NewAdmissionGate(maintenanceMode func() bool) *AdmissionGate {
	return &AdmissionGate{maintenanceMode: maintenanceMode}
}

// Admit reports whether a request should proceed. isServerAdmin bypasses
// the maintenance gate entirely.
func (g *AdmissionGate) Admit(isServerAdmin bool) bool {
	if !g.maintenanceMode() {
		return true
	}
	return isServerAdmin
}
