package otp

import (
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/dermalens/dermalens/pkg/crypto"
	"github.com/dermalens/dermalens/pkg/logger"
)

// Verification failure modes surfaced to callers. Handlers map all of them
// onto the same client-facing error so the response does not leak whether a
// code exists for the identifier.
var (
	ErrCodeInvalid     = errors.New("otp: code does not match")
	ErrCodeExpired     = errors.New("otp: no active code for identifier")
	ErrTooManyAttempts = errors.New("otp: attempt limit exceeded")
)

const (
	// CodeLength is the number of decimal digits in a generated code.
	CodeLength = 6

	// DefaultTTL is how long an issued code stays valid.
	DefaultTTL = 10 * time.Minute

	// DefaultMaxAttempts bounds verification tries per issued code.
	DefaultMaxAttempts = 5
)

type entry struct {
	code     string
	attempts int
}

// Service issues and verifies single-use numeric codes keyed by an
// identifier such as an email address or phone number. Issuing a new code
// for an identifier replaces any outstanding one.
type Service struct {
	mu          sync.Mutex
	store       *gocache.Cache
	ttl         time.Duration
	maxAttempts int
	log         *zap.Logger
}

// Config tunes code lifetime and the verification attempt ceiling. Zero
// values fall back to the package defaults.
type Config struct {
	TTL         time.Duration
	MaxAttempts int
}

// NewService builds an OTP service backed by an in-memory TTL store.
// Expired entries are reaped by SweepExpired rather than a background
// janitor so the caller controls sweep scheduling.
func NewService(cfg Config) *Service {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	return &Service{
		store:       gocache.New(ttl, 0),
		ttl:         ttl,
		maxAttempts: maxAttempts,
		log:         logger.WithModule("otp"),
	}
}

// TTL reports how long issued codes stay valid.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue generates a fresh code for the identifier, replacing any existing
// one and resetting its attempt counter.
func (s *Service) Issue(identifier string) (string, error) {
	if identifier == "" {
		return "", errors.New("otp: identifier is required")
	}

	code, err := crypto.RandomDigits(CodeLength)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.store.Set(identifier, &entry{code: code}, s.ttl)
	s.mu.Unlock()

	s.log.Debug("issued otp code", zap.String("identifier", identifier))
	return code, nil
}

// Verify checks the supplied code against the identifier's active entry.
// The attempt ceiling is evaluated before the code comparison, a mismatch
// increments the counter, and the entry is removed on success, expiry, or
// exhaustion.
func (s *Service) Verify(identifier, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, expiresAt, found := s.store.GetWithExpiration(identifier)
	if !found {
		return ErrCodeExpired
	}

	e, ok := raw.(*entry)
	if !ok {
		s.store.Delete(identifier)
		return ErrCodeExpired
	}

	if e.attempts >= s.maxAttempts {
		s.store.Delete(identifier)
		return ErrTooManyAttempts
	}

	if subtle.ConstantTimeCompare([]byte(e.code), []byte(code)) != 1 {
		e.attempts++
		remaining := time.Until(expiresAt)
		if remaining <= 0 {
			s.store.Delete(identifier)
			return ErrCodeExpired
		}
		s.store.Set(identifier, e, remaining)
		return ErrCodeInvalid
	}

	s.store.Delete(identifier)
	return nil
}

// SweepExpired evicts entries past their TTL and returns how many active
// codes remain. Intended to run on a fixed schedule.
func (s *Service) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.store.DeleteExpired()
	return s.store.ItemCount()
}

// ActiveCodes reports how many unexpired codes are currently stored.
func (s *Service) ActiveCodes() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.store.DeleteExpired()
	return s.store.ItemCount()
}
