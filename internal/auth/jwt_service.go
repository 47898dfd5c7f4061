package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL defines the fallback validity period for access tokens.
const DefaultAccessTokenTTL = time.Hour

// DefaultStepUpTokenTTL is the validity period of OTP-verified session tokens.
const DefaultStepUpTokenTTL = 30 * time.Minute

// JWTConfig bundles the configuration required to build a JWTService.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
	StepUpTokenTTL time.Duration
	Clock          func() time.Time
}

// Claims represents the custom claims embedded in issued JWTs.
type Claims struct {
	UserID      string `json:"uid"`
	Role        string `json:"role,omitempty"`
	OTPVerified bool   `json:"otp_verified,omitempty"`
	jwt.RegisteredClaims
}

// AccessTokenInput holds the parameters used when generating a new access token.
type AccessTokenInput struct {
	UserID      string
	Role        string
	OTPVerified bool
}

// JWTService is responsible for issuing and validating JSON Web Tokens.
type JWTService struct {
	secret    []byte
	issuer    string
	ttl       time.Duration
	stepUpTTL time.Duration
	now       func() time.Time
}

// NewJWTService constructs a JWTService instance when provided with the required configuration.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}

	stepUpTTL := cfg.StepUpTokenTTL
	if stepUpTTL <= 0 {
		stepUpTTL = DefaultStepUpTokenTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &JWTService{
		secret:    []byte(cfg.Secret),
		issuer:    cfg.Issuer,
		ttl:       ttl,
		stepUpTTL: stepUpTTL,
		now:       now,
	}, nil
}

// GenerateAccessToken issues a signed JWT containing the supplied claims.
func (s *JWTService) GenerateAccessToken(input AccessTokenInput) (string, error) {
	return s.generate(input, s.ttl)
}

// GenerateStepUpToken issues a short-lived token carrying the otp_verified
// claim, used to gate sensitive history access after OTP verification.
func (s *JWTService) GenerateStepUpToken(input AccessTokenInput) (string, error) {
	input.OTPVerified = true
	return s.generate(input, s.stepUpTTL)
}

// StepUpTokenTTL exposes the configured step-up token lifetime.
func (s *JWTService) StepUpTokenTTL() time.Duration {
	return s.stepUpTTL
}

func (s *JWTService) generate(input AccessTokenInput, ttl time.Duration) (string, error) {
	if input.UserID == "" {
		return "", errors.New("jwt: user id is required")
	}

	now := s.now()

	claims := &Claims{
		UserID:      input.UserID,
		Role:        input.Role,
		OTPVerified: input.OTPVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   input.UserID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}

	return signed, nil
}

// ValidateAccessToken parses and validates a signed JWT, returning the application claims.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("jwt: token string is empty")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("jwt: parse token: %w", err)
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, errors.New("jwt: invalid issuer")
	}

	if claims.UserID == "" {
		return nil, errors.New("jwt: missing user id claim")
	}

	return &claims, nil
}
