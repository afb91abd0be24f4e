package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"gorm.io/gorm"
)

const (
	defaultMaxAttempts = 10
	defaultRetryDelay  = 5 * time.Second
)

// ErrConnectRetriesExhausted reports that startup gave up on the data store.
var ErrConnectRetriesExhausted = errors.New("database connection retries exhausted")

// State is the supervisor's position in the startup lifecycle.
type State string

const (
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateFailed     State = "failed"
)

// SupervisorConfig configures startup connection acquisition.
type SupervisorConfig struct {
	Dial        Dialer
	MaxAttempts int
	RetryDelay  time.Duration
	Logger      *slog.Logger
}

// Supervisor acquires the process's data store connection, retrying a
// bounded number of times with a fixed delay between attempts.
type Supervisor struct {
	dial        Dialer
	maxAttempts int
	delay       time.Duration
	logger      *slog.Logger

	// acquireMu serializes Acquire; mu guards the fields below and is never
	// held across a dial or a retry wait.
	acquireMu sync.Mutex
	mu        sync.Mutex
	state     State
	attempts  int
	db        *gorm.DB
	err       error
}

// NewSupervisor creates a supervisor in the connecting state.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if cfg.Dial == nil {
		return nil, errors.New("supervisor requires a dialer")
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		dial:        cfg.Dial,
		maxAttempts: maxAttempts,
		delay:       delay,
		logger:      logger,
		state:       StateConnecting,
	}, nil
}

// Acquire dials until a connection is established, the attempt budget is
// spent, or ctx is cancelled. A connected supervisor returns the same
// connection on every call; a failed one never dials again. Cancellation
// leaves the supervisor connecting and returns the context error.
func (s *Supervisor) Acquire(ctx context.Context) (*gorm.DB, error) {
	s.acquireMu.Lock()
	defer s.acquireMu.Unlock()

	s.mu.Lock()
	state, db, failure := s.state, s.db, s.err
	s.mu.Unlock()
	switch state {
	case StateConnected:
		return db, nil
	case StateFailed:
		return nil, failure
	}

	operation := func() (*gorm.DB, error) {
		attempt := s.nextAttempt()
		db, err := s.dial(ctx)
		if err != nil {
			s.logger.Error("database connection failed", "attempt", attempt, "max_attempts", s.maxAttempts, "err", err)
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return db, nil
	}
	db, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(s.delay)),
		backoff.WithMaxTries(uint(s.maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(_ error, next time.Duration) {
			s.logger.Info("retrying database connection", "attempt", s.Attempts()+1, "max_attempts", s.maxAttempts, "delay", next)
		}),
	)
	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		s.logger.Info("database connection abandoned", "attempts", s.Attempts(), "err", ctxErr)
		return nil, fmt.Errorf("acquire database connection: %w", ctxErr)
	}
	if err != nil {
		attempts := s.Attempts()
		s.logger.Error("max database connection attempts reached", "attempts", attempts)
		failure := fmt.Errorf("%w after %d attempts: %w", ErrConnectRetriesExhausted, attempts, err)
		s.transition(StateFailed, nil, failure)
		return nil, failure
	}
	s.transition(StateConnected, db, nil)
	s.logger.Info("connected to database", "attempts", s.Attempts())
	return db, nil
}

func (s *Supervisor) nextAttempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	return s.attempts
}

func (s *Supervisor) transition(state State, db *gorm.DB, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.db = db
	s.err = err
}

// State reports the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempts reports how many dials have been made.
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}
