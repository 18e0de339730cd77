package identity_test

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/openwater/identity"
	"github.com/stretchr/testify/mock"
)

// MockUserTracker implements identity.UserTracker
type MockUserTracker struct {
	mock.Mock
}

func (m *MockUserTracker) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*identity.User, error) {
	args := m.Called(ctx, identifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *MockUserTracker) TrackAttemptedLogin(ctx context.Context, user *identity.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserTracker) TrackSuccessfulLogin(ctx context.Context, user *identity.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// MockUserResolver implements identity.UserResolver
type MockUserResolver struct {
	mock.Mock
}

func (m *MockUserResolver) VerifyUser(ctx context.Context, identifier, password string) (*identity.User, error) {
	args := m.Called(ctx, identifier, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *MockUserResolver) FindUserByIdentifier(ctx context.Context, identifier string) (*identity.User, error) {
	args := m.Called(ctx, identifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *MockUserResolver) FindUserByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

// MockLogger implements identity.Logger
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Info(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Warn(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Error(format string, args ...any) {
	m.Called(format, args)
}

// nopLogger swallows everything, for tests that exercise failure paths
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// captureSink collects activity events so tests can assert on what was
// emitted without caring about ordering internals.
type captureSink struct {
	mu     sync.Mutex
	events []identity.ActivityEvent
}

func (s *captureSink) Record(ctx context.Context, event identity.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Events() []identity.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]identity.ActivityEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *captureSink) EventsOfType(eventType identity.ActivityEventType) []identity.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []identity.ActivityEvent
	for _, event := range s.events {
		if event.EventType == eventType {
			out = append(out, event)
		}
	}
	return out
}

// testConfig implements identity.Config
type testConfig struct {
	SigningKey               string
	SigningMethod            string
	ContextKey               string
	TokenExpiration          int
	ExtendedTokenDuration    int
	TokenLookup              string
	AuthScheme               string
	Issuer                   string
	Audience                 []string
	RejectedRouteKey         string
	RejectedRouteDefault     string
	PasswordHashCost         int
	PasswordResetTokenTTL    time.Duration
	EmailVerificationTokTTL  time.Duration
}

func newTestConfig() *testConfig {
	return &testConfig{
		SigningKey:              "test-signing-key",
		SigningMethod:           "HS256",
		ContextKey:              "user",
		TokenExpiration:         24,
		ExtendedTokenDuration:   168,
		TokenLookup:             "header:Authorization",
		AuthScheme:              "Bearer",
		Issuer:                  "test-issuer",
		Audience:                []string{"test-audience"},
		RejectedRouteKey:        "rejected_route",
		RejectedRouteDefault:    "/",
		PasswordHashCost:        6,
		PasswordResetTokenTTL:   48 * time.Hour,
		EmailVerificationTokTTL: 48 * time.Hour,
	}
}

func (c *testConfig) GetSigningKey() string                       { return c.SigningKey }
func (c *testConfig) GetSigningMethod() string                    { return c.SigningMethod }
func (c *testConfig) GetContextKey() string                       { return c.ContextKey }
func (c *testConfig) GetTokenExpiration() int                     { return c.TokenExpiration }
func (c *testConfig) GetExtendedTokenDuration() int               { return c.ExtendedTokenDuration }
func (c *testConfig) GetTokenLookup() string                      { return c.TokenLookup }
func (c *testConfig) GetAuthScheme() string                       { return c.AuthScheme }
func (c *testConfig) GetIssuer() string                           { return c.Issuer }
func (c *testConfig) GetAudience() []string                       { return c.Audience }
func (c *testConfig) GetRejectedRouteKey() string                 { return c.RejectedRouteKey }
func (c *testConfig) GetRejectedRouteDefault() string             { return c.RejectedRouteDefault }
func (c *testConfig) GetPasswordHashCost() int                    { return c.PasswordHashCost }
func (c *testConfig) GetPasswordResetTokenTTL() time.Duration     { return c.PasswordResetTokenTTL }
func (c *testConfig) GetEmailVerificationTokenTTL() time.Duration { return c.EmailVerificationTokTTL }
