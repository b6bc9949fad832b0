// Package session implements login, signup and logout against the mock
// credential rule, with simulated network latency and a loading/error state
// the views and route guard read.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"agrispy.dev/agrispy/internal/identity"
	"agrispy.dev/agrispy/pkg/metrics"
)

// The only credential pair Login accepts.
const (
	DemoEmail    = "demo@agrispy.com"
	DemoPassword = "password"
	DemoID       = "1"
	DemoName     = "Demo User"
)

const (
	DefaultLoginDelay  = 800 * time.Millisecond
	DefaultSignupDelay = 1000 * time.Millisecond
)

// ErrInvalidCredentials is returned by Login for any pair but the demo one.
var ErrInvalidCredentials = errors.New("session: invalid credentials")

// InvalidCredentialsMessage is the operator-facing text for ErrInvalidCredentials.
const InvalidCredentialsMessage = "Invalid credentials"

// State is a snapshot of the operation state.
type State struct {
	// Error is the message of the last failed operation, empty when none.
	Error   string
	Loading bool
}

// Config configures a Service.
type Config struct {
	Identities *identity.Store
	Logger     *slog.Logger
	// Metrics is optional.
	Metrics *metrics.SessionMetrics

	// LoginDelay and SignupDelay simulate network latency. Zero selects the
	// defaults; a negative value disables the delay.
	LoginDelay  time.Duration
	SignupDelay time.Duration

	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// Service runs session operations. Overlapping calls are not serialised; the
// last write to the identity store wins.
type Service struct {
	identities  *identity.Store
	logger      *slog.Logger
	metrics     *metrics.SessionMetrics
	loginDelay  time.Duration
	signupDelay time.Duration
	now         func() time.Time
	newID       func() string

	mu       sync.RWMutex
	inFlight int
	lastErr  string
}

// NewService validates cfg and returns a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Identities == nil {
		return nil, errors.New("identity store cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	s := &Service{
		identities:  cfg.Identities,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		loginDelay:  delayOrDefault(cfg.LoginDelay, DefaultLoginDelay),
		signupDelay: delayOrDefault(cfg.SignupDelay, DefaultSignupDelay),
		now:         cfg.Now,
		newID:       cfg.NewID,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

func delayOrDefault(d, def time.Duration) time.Duration {
	switch {
	case d == 0:
		return def
	case d < 0:
		return 0
	default:
		return d
	}
}

// Identities returns the store the service commits to.
func (s *Service) Identities() *identity.Store {
	return s.identities
}

// State returns the loading flag and last error message.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{Loading: s.inFlight > 0, Error: s.lastErr}
}

// Loading reports whether any operation is outstanding.
func (s *Service) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inFlight > 0
}

// Restore loads the persisted identity, reporting loading while it runs.
func (s *Service) Restore(ctx context.Context) {
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	s.identities.Load(ctx)
}

// Login checks the credential pair after the simulated delay and commits the
// demo farmer identity on success.
func (s *Service) Login(ctx context.Context, email, password string) (err error) {
	settle := s.begin("login")
	defer func() { settle(err) }()
	defer s.recoverPanic("login", &err)

	if err := s.wait(ctx, s.loginDelay); err != nil {
		return err
	}

	// Check credentials
	if email != DemoEmail || password != DemoPassword {
		s.logger.Info("login rejected", "email", email)
		return ErrInvalidCredentials
	}

	id := identity.Identity{
		ID:        DemoID,
		Name:      DemoName,
		Email:     DemoEmail,
		Role:      identity.RoleFarmer,
		LastLogin: s.now().UTC(),
	}
	// Commit identity
	if err := s.identities.Set(ctx, id); err != nil {
		return err
	}

	s.logger.Info("login succeeded", "id", id.ID, "role", id.Role)
	return nil
}

// Signup commits a new identity with a fresh id after the simulated delay.
// Emails are not checked for duplicates.
func (s *Service) Signup(ctx context.Context, name, email, password string, role identity.Role) (err error) {
	settle := s.begin("signup")
	defer func() { settle(err) }()
	defer s.recoverPanic("signup", &err)

	if err := s.wait(ctx, s.signupDelay); err != nil {
		return err
	}

	id := identity.Identity{
		ID:        s.newID(),
		Name:      name,
		Email:     email,
		Role:      role,
		LastLogin: s.now().UTC(),
	}
	if err := s.identities.Set(ctx, id); err != nil {
		return err
	}

	s.logger.Info("signup succeeded", "id", id.ID, "role", id.Role)
	return nil
}

// Logout clears the identity immediately.
func (s *Service) Logout(ctx context.Context) error {
	if s.metrics != nil {
		s.metrics.LogoutsTotal.Inc()
	}

	if err := s.identities.Clear(ctx); err != nil {
		s.logger.Error("failed to remove identity snapshot", "error", err)
		return err
	}

	s.logger.Info("logged out")
	return nil
}

// begin marks an operation outstanding and clears the error. The returned
// func settles it with the operation's result.
func (s *Service) begin(operation string) func(error) {
	start := time.Now()

	s.mu.Lock()
	s.inFlight++
	s.lastErr = ""
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.InFlight.Inc()
	}

	return func(err error) {
		s.mu.Lock()
		s.inFlight--
		if err != nil {
			s.lastErr = Message(err)
		}
		s.mu.Unlock()

		if s.metrics != nil {
			s.metrics.InFlight.Dec()
			s.metrics.AttemptsTotal.WithLabelValues(operation, outcome(err)).Inc()
			s.metrics.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		}

		if err != nil && !errors.Is(err, ErrInvalidCredentials) {
			s.logger.Error("session operation failed", "operation", operation, "error", err)
		}
	}
}

func (s *Service) recoverPanic(operation string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("session: %s panicked: %v", operation, r)
	}
}

func (s *Service) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Message is the operator-facing text for an error returned by Login or
// Signup. It is the same text State reports.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return InvalidCredentialsMessage
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Request cancelled"
	case err.Error() == "":
		return "An unknown error occurred"
	default:
		return err.Error()
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	default:
		return "error"
	}
}
