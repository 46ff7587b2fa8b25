package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"tickwatch/internal/logger"
)

const (
	secretKeyFile      = ".tickwatch-secret-key"
	defaultTokenExpiry = 90 * 24 * time.Hour
	tokenIssuer        = "tickwatch"
	minSecretLength    = 32
)

var ErrAuthNotInitialized = errors.New("auth service not initialized")

// AuthService manages JWT token generation and validation
type AuthService struct {
	secretKey   string
	tokenExpiry time.Duration
	log         *zap.Logger
	now         func() time.Time
}

// CustomClaims represents the JWT claims structure
type CustomClaims struct {
	ServerID int    `json:"server_id"`
	Client   string `json:"client"`
	jwt.RegisteredClaims
}

// NewAuthService builds the service. An empty secret is loaded from (or
// generated into) keyDir/.tickwatch-secret-key; keyDir defaults to the
// user's home directory.
func NewAuthService(secretKey, keyDir string, tokenExpiry time.Duration, log *zap.Logger) (*AuthService, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(logger.Scope("auth"))

	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		var err error
		secretKey, err = loadOrCreateSecret(keyDir, log)
		if err != nil {
			return nil, err
		}
	}

	if len(secretKey) < minSecretLength {
		log.Warn("secret key is shorter than recommended for HMAC-SHA256",
			zap.Int("length", len(secretKey)), zap.Int("recommended", minSecretLength))
	}
	if tokenExpiry <= 0 {
		tokenExpiry = defaultTokenExpiry
	}

	return &AuthService{
		secretKey:   secretKey,
		tokenExpiry: tokenExpiry,
		log:         log,
		now:         time.Now,
	}, nil
}

func loadOrCreateSecret(keyDir string, log *zap.Logger) (string, error) {
	if keyDir == "" {
		keyDir, _ = os.UserHomeDir()
	}
	if keyDir == "" {
		keyDir = os.TempDir()
	}
	keyFile := filepath.Join(keyDir, secretKeyFile)

	if data, err := os.ReadFile(keyFile); err == nil {
		if secret := strings.TrimSpace(string(data)); secret != "" {
			log.Info("loaded persisted secret key", zap.String("file", keyFile))
			return secret, nil
		}
	}

	randomBytes := make([]byte, minSecretLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("generate secret key: %w", err)
	}
	secret := hex.EncodeToString(randomBytes)

	if err := os.WriteFile(keyFile, []byte(secret), 0o600); err != nil {
		log.Warn("could not persist secret key", zap.String("file", keyFile), zap.Error(err))
	} else {
		log.Info("generated and persisted secret key", zap.String("file", keyFile))
	}
	return secret, nil
}

// GenerateToken creates a signed token for a client of this server.
func (s *AuthService) GenerateToken(serverID int, client string) (string, error) {
	if s == nil {
		return "", ErrAuthNotInitialized
	}

	now := s.now()
	claims := CustomClaims{
		ServerID: serverID,
		Client:   client,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.secretKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies and parses a JWT token
func (s *AuthService) ValidateToken(tokenString string) (*CustomClaims, error) {
	if s == nil {
		return nil, ErrAuthNotInitialized
	}

	claims := &CustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.secretKey), nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// TokenExpiry returns when a token generated now would expire.
func (s *AuthService) TokenExpiry() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.now().Add(s.tokenExpiry)
}
