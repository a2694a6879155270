package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/pkg/errors"
)

var ErrMissingToken = errors.New("missing bearer token")

type Claims struct {
	UserID uint `json:"user_id"`
	jwt.StandardClaims
}

// TokenManager issues and validates HS256 session tokens.
type TokenManager struct {
	key []byte
	ttl time.Duration
}

func NewTokenManager(key string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{key: []byte(key), ttl: ttl}
}

func (m *TokenManager) GenerateToken(userID uint) (string, error) {
	expirationTime := time.Now().Add(m.ttl)
	claims := &Claims{
		UserID: userID,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: expirationTime.Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(m.key)
}

func (m *TokenManager) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.key, nil
	})

	if err != nil {
		return nil, err
	}

	if !tkn.Valid || claims.UserID == 0 {
		return nil, jwt.ErrSignatureInvalid
	}

	return claims, nil
}

// TokenFromRequest reads "Authorization: Bearer <token>", falling back to
// the legacy "Bearer" header and the "token" query parameter (browsers
// cannot set headers on websocket upgrades).
func TokenFromRequest(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") && strings.TrimSpace(token) != "" {
			return strings.TrimSpace(token), nil
		}
		return "", ErrMissingToken
	}
	if h := r.Header.Get("Bearer"); h != "" {
		return h, nil
	}
	if q := r.URL.Query().Get("token"); q != "" {
		return q, nil
	}
	return "", ErrMissingToken
}

// Authenticate resolves the calling user id from the request.
func (m *TokenManager) Authenticate(r *http.Request) (uint, error) {
	tokenStr, err := TokenFromRequest(r)
	if err != nil {
		return 0, err
	}

	claims, err := m.ValidateToken(tokenStr)
	if err != nil {
		return 0, err
	}

	return claims.UserID, nil
}
