/*
 * MIT License
 *
 * Copyright (c) 2026 Genesis Mesh Authors
 */

// Package certmanager polls a node's Join Certificate for expiry and drives
// its renewal: a renewal is triggered once the certificate's remaining
// validity fraction drops to or below half, with an escalating backoff on
// repeated renewal failure.
package certmanager

import (
	"context"
	"sync"
	"time"

	liberr "github.com/nabbar/genesis-mesh/errors"
	"github.com/nabbar/genesis-mesh/schema"
	libtck "github.com/nabbar/genesis-mesh/ticker"
)

// PollInterval is the cadence at which the certificate's remaining
// validity is checked.
const PollInterval = 60 * time.Second

// RenewAtFraction triggers a renewal attempt once remaining validity drops
// to or below this fraction of the total window.
const RenewAtFraction = 0.5

// MaxConsecutiveFailures is how many renewal attempts may fail in a row
// before OnFatal is invoked.
const MaxConsecutiveFailures = 5

// BackoffSchedule is the delay applied after each consecutive renewal
// failure, indexed by (failure count - 1); the last entry repeats for any
// further attempt beyond the schedule's length.
var BackoffSchedule = []time.Duration{
	30 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

// RenewFunc requests a fresh certificate from the Network Authority. The
// returned certificate replaces the currently held one on success.
type RenewFunc func(ctx context.Context, current schema.Certificate) (schema.Certificate, liberr.Error)

// OnRenewed observes a successful renewal.
type OnRenewed func(cert schema.Certificate)

// OnFatal is invoked once renewal has failed MaxConsecutiveFailures times
// in a row.
type OnFatal func(lastErr liberr.Error)

// Manager polls and renews a single certificate.
type Manager struct {
	mu   sync.RWMutex
	cert schema.Certificate

	renew     RenewFunc
	onRenewed OnRenewed
	onFatal   OnFatal

	consecutiveFailures int
	nextAttemptAt       time.Time

	ticker libtck.Ticker
}

// New constructs a Manager holding the initial certificate.
func New(cert schema.Certificate, renew RenewFunc, onRenewed OnRenewed, onFatal OnFatal) *Manager {
	return &Manager{cert: cert, renew: renew, onRenewed: onRenewed, onFatal: onFatal}
}

// Certificate returns the currently held certificate.
func (m *Manager) Certificate() schema.Certificate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cert
}

// Start launches the periodic expiry poll.
func (m *Manager) Start(ctx context.Context) {
	m.ticker = libtck.New(PollInterval, func(ctx context.Context, _ *time.Ticker) error {
		m.pollOnce(ctx)
		return nil
	})
	m.ticker.Start(ctx)
}

// Stop cancels the periodic poll.
func (m *Manager) Stop() {
	if m.ticker != nil {
		m.ticker.Stop()
	}
}

func (m *Manager) pollOnce(ctx context.Context) {
	now := time.Now()

	m.mu.RLock()
	cert := m.cert
	nextAttempt := m.nextAttemptAt
	m.mu.RUnlock()

	if now.Before(nextAttempt) {
		return
	}
	if cert.RemainingFraction(now) > RenewAtFraction {
		return
	}

	m.attemptRenew(ctx, cert)
}

// RenewNow forces an immediate renewal attempt, out of band from the
// periodic poll, ignoring the backoff gate.
func (m *Manager) RenewNow(ctx context.Context) liberr.Error {
	return m.attemptRenew(ctx, m.Certificate())
}

func (m *Manager) attemptRenew(ctx context.Context, current schema.Certificate) liberr.Error {
	if m.renew == nil {
		return liberr.New(liberr.KindValidation, "no renew function configured")
	}

	fresh, err := m.renew(ctx, current)
	if err != nil {
		m.recordFailure(err)
		return err
	}

	m.mu.Lock()
	m.cert = fresh
	m.consecutiveFailures = 0
	m.nextAttemptAt = time.Time{}
	m.mu.Unlock()

	if m.onRenewed != nil {
		m.onRenewed(fresh)
	}
	return nil
}

func (m *Manager) recordFailure(err liberr.Error) {
	m.mu.Lock()
	m.consecutiveFailures++
	n := m.consecutiveFailures
	delay := backoffFor(n)
	m.nextAttemptAt = time.Now().Add(delay)
	m.mu.Unlock()

	if n >= MaxConsecutiveFailures && m.onFatal != nil {
		m.onFatal(err)
	}
}

func backoffFor(failureCount int) time.Duration {
	idx := failureCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(BackoffSchedule) {
		idx = len(BackoffSchedule) - 1
	}
	return BackoffSchedule[idx]
}
