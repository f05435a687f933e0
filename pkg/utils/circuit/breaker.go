// Package circuit stops calling a failing dependency for a while once it
// has failed too many times in a row.
package circuit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/logger"
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

type Config struct {
	MaxFailures   int                               // Consecutive failures before opening
	OpenTimeout   time.Duration                     // Time spent open before probing again
	MaxProbes     int                               // Calls let through while half-open
	OnStateChange func(name string, from, to State) // Called with the breaker lock held
}

func DefaultConfig() Config {
	return Config{
		MaxFailures: 5,
		OpenTimeout: 30 * time.Second,
		MaxProbes:   1,
	}
}

var (
	ErrOpen          = errors.WithType(errors.New("circuit breaker is open"), errors.ErrorTypeNetwork)
	ErrTooManyProbes = errors.WithType(errors.New("circuit breaker is probing"), errors.ErrorTypeNetwork)
)

type Breaker struct {
	name     string
	config   Config
	state    State
	failures int
	probes   int
	openedAt time.Time
	now      func() time.Time
	mu       sync.Mutex
	log      *logger.Logger
}

func NewBreaker(name string, config Config) *Breaker {
	defaults := DefaultConfig()
	if config.MaxFailures <= 0 {
		config.MaxFailures = defaults.MaxFailures
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = defaults.OpenTimeout
	}
	if config.MaxProbes <= 0 {
		config.MaxProbes = defaults.MaxProbes
	}

	return &Breaker{
		name:   name,
		config: config,
		state:  StateClosed,
		now:    time.Now,
		log:    logger.GetLogger(fmt.Sprintf("circuit.%s", name)),
	}
}

// Do calls fn unless the breaker is open. A cancelled context is not
// counted against the dependency.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.before(); err != nil {
		return err
	}

	err := fn(ctx)
	b.after(err == nil || ctx.Err() != nil)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.config.OpenTimeout {
			return ErrOpen
		}
		b.transition(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if b.probes >= b.config.MaxProbes {
			return ErrTooManyProbes
		}
		b.probes++
	}
	return nil
}

func (b *Breaker) after(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.transition(StateClosed)
		}
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.config.MaxFailures {
		b.openedAt = b.now()
		b.transition(StateOpen)
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.probes = 0
	if to == StateClosed {
		b.failures = 0
	}

	if to == StateOpen {
		b.log.Warnf("Circuit breaker '%s' transitioned from %s to %s", b.name, from, to)
	} else {
		b.log.Infof("Circuit breaker '%s' transitioned from %s to %s", b.name, from, to)
	}
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.name, from, to)
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Name() string {
	return b.name
}
