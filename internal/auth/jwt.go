package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/plotmines/internal/mine"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken токен не прошёл проверку
var ErrInvalidToken = errors.New("invalid token")

// Claims represents JWT claims
type Claims struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Owner идентичность игрока из токена
func (c *Claims) Owner() mine.Owner {
	id, _ := uuid.Parse(c.PlayerID)
	return mine.Owner{ID: id, Name: c.Username}
}

// Authenticator выпускает и проверяет токены HS256
type Authenticator struct {
	secret []byte
	expiry time.Duration
	issuer string
}

// NewAuthenticator создает аутентификатор. Пустой секрет заменяется случайным:
// такие токены действительны только до перезапуска.
func NewAuthenticator(secret string) *Authenticator {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			key = []byte("development-secret-key-change-in-production")
		}
	}
	return &Authenticator{secret: key, expiry: 24 * time.Hour, issuer: "plotmines"}
}

// GenerateJWT creates a signed token for the given player
func (a *Authenticator) GenerateJWT(player mine.Owner, isAdmin bool) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(a.expiry)
	claims := &Claims{
		PlayerID: player.ID.String(),
		Username: player.Name,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    a.issuer,
			Subject:   player.Name,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("подпись токена: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateJWT checks token validity and returns its claims
func (a *Authenticator) ValidateJWT(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(a.issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.PlayerID); err != nil {
		return nil, fmt.Errorf("%w: player_id: %v", ErrInvalidToken, err)
	}

	return claims, nil
}
