package collab

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// claims is the custom JWT claim set this core issues: userId/userType/
// role/phone alongside the registered claims.
type claims struct {
	UserID   string `json:"userId"`
	UserType string `json:"userType"`
	Role     string `json:"role"`
	Phone    string `json:"phone"`
	jwt.RegisteredClaims
}

// JWTAuthProvider verifies golang-jwt/v5 bearer tokens signed with a
// shared HMAC secret.
type JWTAuthProvider struct {
	secret []byte
}

func NewJWTAuthProvider(secret string) *JWTAuthProvider {
	return &JWTAuthProvider{secret: []byte(secret)}
}

// Issue mints a signed token for the given identity, valid for ttl.
func (p *JWTAuthProvider) Issue(userID, userType, role, phone string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		UserID:   userID,
		UserType: userType,
		Role:     role,
		Phone:    phone,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(p.secret)
}

func (p *JWTAuthProvider) Verify(ctx context.Context, bearerToken string) (userID, userType, role, phone string, err error) {
	var c claims
	token, err := jwt.ParseWithClaims(bearerToken, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.secret, nil
	})
	if err != nil || !token.Valid {
		return "", "", "", "", errors.New("invalid or expired token")
	}
	return c.UserID, c.UserType, c.Role, c.Phone, nil
}

// InMemoryAuthProvider is the dependency-free development fallback
// adapted from the teacher's token store: random opaque tokens held in a
// map with an expiry, seeded directly rather than parsed from a signed
// structure.
type InMemoryAuthProvider struct {
	mu     sync.RWMutex
	tokens map[string]inMemoryEntry
	ttl    time.Duration
}

type inMemoryEntry struct {
	userID, userType, role, phone string
	expires                       time.Time
}

func NewInMemoryAuthProvider(ttl time.Duration) *InMemoryAuthProvider {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &InMemoryAuthProvider{tokens: make(map[string]inMemoryEntry), ttl: ttl}
}

// Register mints a random opaque token for an identity, mirroring the
// teacher's InMemoryStore.Register.
func (p *InMemoryAuthProvider) Register(userID, userType, role, phone string) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)

	p.mu.Lock()
	p.tokens[token] = inMemoryEntry{
		userID: userID, userType: userType, role: role, phone: phone,
		expires: time.Now().Add(p.ttl),
	}
	p.mu.Unlock()
	return token, nil
}

func (p *InMemoryAuthProvider) Verify(ctx context.Context, bearerToken string) (userID, userType, role, phone string, err error) {
	p.mu.RLock()
	entry, ok := p.tokens[bearerToken]
	p.mu.RUnlock()
	if !ok {
		return "", "", "", "", errors.New("unknown token")
	}
	if time.Now().After(entry.expires) {
		p.mu.Lock()
		delete(p.tokens, bearerToken)
		p.mu.Unlock()
		return "", "", "", "", errors.New("token expired")
	}
	return entry.userID, entry.userType, entry.role, entry.phone, nil
}

// Seed installs a fixed token for an identity, used by local/dev bootstrap.
func (p *InMemoryAuthProvider) Seed(token, userID, userType, role, phone string) {
	p.mu.Lock()
	p.tokens[token] = inMemoryEntry{
		userID: userID, userType: userType, role: role, phone: phone,
		expires: time.Now().Add(p.ttl),
	}
	p.mu.Unlock()
}
