package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Roles carried in the "role" claim.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// DefaultTTL is how long an issued token stays valid.
const DefaultTTL = 72 * time.Hour

// Identity is who a validated token speaks for.
type Identity struct {
	UserID int64
	Role   string
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Tokens signs and validates HS256 bearer tokens. Users and passwords live
// with the identity service; this side only trusts what the signature proves.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret), now: time.Now}
}

// GenerateToken creates a token for userID with the given role.
func (t *Tokens) GenerateToken(userID int64, role string, ttl time.Duration) (string, error) {
	if userID <= 0 {
		return "", errors.New("auth: user id must be positive")
	}
	if role != RoleCustomer && role != RoleAdmin {
		return "", errors.Errorf("auth: unknown role %q", role)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := t.now()
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  now.Add(ttl).Unix(),
		"iat":  now.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// ValidateToken parses tokenString and returns the identity it carries.
func (t *Tokens) ValidateToken(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return Identity{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, errors.New("invalid token")
	}

	// JSON numbers decode as float64.
	sub, ok := claims["sub"].(float64)
	if !ok || sub <= 0 {
		return Identity{}, errors.New("invalid subject claim")
	}
	role, _ := claims["role"].(string)
	if role == "" {
		role = RoleCustomer
	}
	return Identity{UserID: int64(sub), Role: role}, nil
}
