// Package credentials manages the shared pool of remote API credentials.
//
// The pool hands out one active credential at a time and rotates to the next
// credential when the active one is marked failed (typically after a quota
// error from the remote model). When every credential has failed, the pool
// clears all failure marks after a brief cooldown so the process never locks
// up permanently.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docsight/internal/metrics"
)

// Sentinel errors for pool operations.
var (
	// ErrNoCredentials is returned when a pool is constructed with zero credentials.
	ErrNoCredentials = errors.New("no credentials configured")

	// ErrExhausted is returned when every credential in the pool has been
	// tried and failed for a single logical operation.
	ErrExhausted = errors.New("all credentials exhausted")
)

// PoolConfig holds configuration for the credential pool.
type PoolConfig struct {
	// Cooldown is the pause before the pool resets after full exhaustion.
	// Default: 2s.
	Cooldown time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *PoolConfig) ApplyDefaults() {
	if c.Cooldown == 0 {
		c.Cooldown = 2 * time.Second
	}
}

// Pool is a round-robin credential pool shared across requests.
//
// All state transitions happen under a single mutex; two concurrent requests
// can never rotate past each other's intended credential or double-count a
// failure.
type Pool struct {
	mu       sync.Mutex
	keys     []string
	current  int
	failed   map[int]struct{}
	cooldown time.Duration
	logger   *zap.Logger
}

// NewPool creates a pool from the given credentials.
//
// An empty credential list is a fatal configuration error: the process must
// not start without at least one usable credential.
func NewPool(keys []string, cfg PoolConfig, logger *zap.Logger) (*Pool, error) {
	if len(keys) == 0 {
		return nil, ErrNoCredentials
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	logger.Info("credential pool initialized", zap.Int("size", len(keys)))

	return &Pool{
		keys:     keys,
		failed:   make(map[int]struct{}),
		cooldown: cfg.Cooldown,
		logger:   logger,
	}, nil
}

// Current returns the active credential.
//
// If every credential is marked failed, the pool sleeps for the cooldown,
// clears all failure marks, and returns the credential at the current
// position. A credential marked failed is otherwise never returned.
func (p *Pool) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.failed) >= len(p.keys) {
		p.logger.Warn("all credentials failed, resetting pool",
			zap.Duration("cooldown", p.cooldown))
		time.Sleep(p.cooldown)
		p.failed = make(map[int]struct{})
	}

	return p.keys[p.current]
}

// MarkFailed marks the active credential as failed and advances the active
// pointer to the next credential in round-robin order.
func (p *Pool) MarkFailed() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failed[p.current] = struct{}{}
	p.current = (p.current + 1) % len(p.keys)
	metrics.CredentialRotations.Inc()

	p.logger.Warn("credential marked failed, rotating",
		zap.Int("next_index", p.current),
		zap.Int("available", len(p.keys)-len(p.failed)))
}

// AvailableCount returns the number of credentials not currently marked failed.
func (p *Pool) AvailableCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys) - len(p.failed)
}

// Size returns the total number of credentials in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// AttemptFunc performs one attempt against the remote service with the given
// credential and returns the result.
type AttemptFunc func(ctx context.Context, key string) (string, error)

// Rotate runs attempt with the pool's active credential, rotating on
// retryable errors, for at most Size() attempts.
//
// On a retryable error the active credential is marked failed and the next
// attempt waits for backoff before running with the next credential. A
// non-retryable error aborts immediately. When every credential has been
// tried, the last error is wrapped in ErrExhausted.
func Rotate(ctx context.Context, pool *Pool, backoff time.Duration, retryable func(error) bool, attempt AttemptFunc) (string, error) {
	var lastErr error

	for i := 0; i < pool.Size(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		out, err := attempt(ctx, pool.Current())
		if err == nil {
			return out, nil
		}
		if !retryable(err) {
			return "", err
		}

		lastErr = err
		pool.MarkFailed()

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return "", fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}
