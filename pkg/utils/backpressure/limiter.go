// Package backpressure keeps callers from submitting work faster than the
// engine can calculate it.
package backpressure

import (
	"context"
	"sync"
	"time"

	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/logger"
)

// TokenBucket allows rate operations per second with bursts of up to burst
type TokenBucket struct {
	rate   float64
	burst  float64
	tokens float64
	last   time.Time
	now    func() time.Time
	mu     sync.Mutex
}

func NewTokenBucket(rate float64, burst int) *TokenBucket {
	if rate <= 0 {
		rate = 1.0
	}
	if burst <= 0 {
		burst = 1
	}

	return &TokenBucket{
		rate:   rate,
		burst:  float64(burst),
		tokens: float64(burst),
		last:   time.Now(),
		now:    time.Now,
	}
}

// Allow takes a token if one is available
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Tokens returns the number of whole tokens available
func (tb *TokenBucket) Tokens() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	return int(tb.tokens)
}

func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.last)
	if elapsed <= 0 {
		return
	}
	tb.tokens = min(tb.burst, tb.tokens+elapsed.Seconds()*tb.rate)
	tb.last = now
}

func (tb *TokenBucket) full() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	return tb.tokens >= tb.burst
}

// KeyedLimiter keeps one token bucket per key, typically a client address.
// Buckets that have refilled completely are forgotten on Sweep.
type KeyedLimiter struct {
	rate    float64
	burst   int
	buckets map[string]*TokenBucket
	now     func() time.Time
	mu      sync.Mutex
}

func NewKeyedLimiter(rate float64, burst int) *KeyedLimiter {
	return &KeyedLimiter{
		rate:    rate,
		burst:   burst,
		buckets: make(map[string]*TokenBucket),
		now:     time.Now,
	}
}

// Allow takes a token from key's bucket
func (k *KeyedLimiter) Allow(key string) bool {
	k.mu.Lock()
	bucket, ok := k.buckets[key]
	if !ok {
		bucket = NewTokenBucket(k.rate, k.burst)
		bucket.now = k.now
		bucket.last = k.now()
		k.buckets[key] = bucket
	}
	k.mu.Unlock()

	return bucket.Allow()
}

// Sweep drops the buckets of idle keys
func (k *KeyedLimiter) Sweep() {
	k.mu.Lock()
	defer k.mu.Unlock()

	for key, bucket := range k.buckets {
		if bucket.full() {
			delete(k.buckets, key)
		}
	}
}

// Len returns the number of tracked keys
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}

// RunSweeper sweeps every interval until ctx is done
func (k *KeyedLimiter) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.Sweep()
		}
	}
}

type Strategy int

const (
	// Block waits for a free slot
	Block Strategy = iota
	// Reject fails at once when every slot is taken
	Reject
)

func (s Strategy) String() string {
	switch s {
	case Block:
		return "BLOCK"
	case Reject:
		return "REJECT"
	default:
		return "UNKNOWN"
	}
}

// Controller bounds the number of operations in flight
type Controller struct {
	name     string
	slots    chan struct{}
	rejected int64
	mu       sync.Mutex
	log      *logger.Logger
}

func NewController(name string, maxInFlight int) *Controller {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}

	controller := &Controller{
		name:  name,
		slots: make(chan struct{}, maxInFlight),
		log:   logger.GetLogger("backpressure." + name),
	}
	controller.log.Infof("Backpressure controller '%s' allows %d operations in flight", name, maxInFlight)
	return controller
}

// Acquire takes a slot following strategy. Every successful Acquire must
// be paired with a Release.
func (c *Controller) Acquire(ctx context.Context, strategy Strategy) error {
	select {
	case c.slots <- struct{}{}:
		return nil
	default:
	}

	if strategy == Reject {
		c.mu.Lock()
		c.rejected++
		c.mu.Unlock()
		c.log.Warnf("Backpressure controller '%s' rejected an operation: %d in flight", c.name, len(c.slots))
		return errors.Unavailablef("%s: %d operations already in flight", c.name, cap(c.slots))
	}

	select {
	case c.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire
func (c *Controller) Release() {
	<-c.slots
}

// InFlight returns the number of slots taken
func (c *Controller) InFlight() int {
	return len(c.slots)
}

// Rejected returns how many operations Reject turned away
func (c *Controller) Rejected() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rejected
}
