// Package auth issues and validates the operator's bearer tokens.
//
// Tokens are Ed25519 (EdDSA) JWTs. Keys can be loaded from PEM files or
// generated per process for development.
package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// tokenParty is both the issuer and the audience of every token.
const tokenParty = "jobwatch"

// Claims extends jwt.RegisteredClaims with the user the token acts for.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// JWTManager signs and verifies operator tokens.
type JWTManager struct {
	signKey    ed25519.PrivateKey
	verifyKey  ed25519.PublicKey
	expiration time.Duration
	parser     *jwt.Parser
}

// NewJWTManager loads the key pair from PEM files. With either path empty
// it generates a throwaway pair, so tokens do not survive a restart.
func NewJWTManager(privateKeyPath, publicKeyPath string, expiration time.Duration) (*JWTManager, error) {
	var (
		priv ed25519.PrivateKey
		pub  ed25519.PublicKey
		err  error
	)
	if privateKeyPath == "" || publicKeyPath == "" {
		slog.Warn("auth: no JWT key files configured, using an ephemeral key pair")
		pub, priv, err = ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("auth: generate key pair: %w", err)
		}
	} else if priv, pub, err = LoadKeyPair(privateKeyPath, publicKeyPath); err != nil {
		return nil, err
	}

	return &JWTManager{
		signKey:    priv,
		verifyKey:  pub,
		expiration: expiration,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
			jwt.WithAudience(tokenParty),
			jwt.WithIssuer(tokenParty),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

// IssueToken signs a token for userID and reports when it expires.
func (m *JWTManager) IssueToken(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("auth: user id is required")
	}
	now := time.Now().UTC()
	expiresAt := now.Add(m.expiration)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    tokenParty,
			Audience:  jwt.ClaimStrings{tokenParty},
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: userID,
	}).SignedString(m.signKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies the signature and standard claims of tokenStr.
// The subject must name the same user as the user_id claim.
func (m *JWTManager) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	if _, err := m.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return m.verifyKey, nil
	}); err != nil {
		return nil, fmt.Errorf("auth: validate token: %w", err)
	}
	if claims.UserID == "" || claims.Subject != claims.UserID {
		return nil, errors.New("auth: invalid subject")
	}
	return claims, nil
}
