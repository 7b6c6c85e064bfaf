package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/prodflow/prodflow/pkg/tenant"
)

var ErrInvalidToken = errors.New("invalid token")

type ActorClaims struct {
	jwt.RegisteredClaims
	CompanyID string   `json:"company_id"`
	Roles     []string `json:"roles"`
}

// Actor resolves the claims into the caller identity used by tenant scoping.
func (c *ActorClaims) Actor() (tenant.Actor, error) {
	actor := tenant.Actor{ID: c.Subject}
	if actor.ID == "" {
		return tenant.Actor{}, ErrInvalidToken
	}
	if c.CompanyID != "" {
		id, err := uuid.Parse(c.CompanyID)
		if err != nil {
			return tenant.Actor{}, ErrInvalidToken
		}
		actor.CompanyID = id
	}
	for _, r := range c.Roles {
		actor.Roles = append(actor.Roles, tenant.Role(r))
	}
	return actor, nil
}

type TokenManager struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
}

func NewTokenManager(signingKey []byte, ttl time.Duration, issuer string) *TokenManager {
	if issuer == "" {
		issuer = "prodflow"
	}
	return &TokenManager{signingKey: signingKey, ttl: ttl, issuer: issuer}
}

func (m *TokenManager) Generate(actor tenant.Actor) (string, error) {
	roles := make([]string, 0, len(actor.Roles))
	for _, r := range actor.Roles {
		roles = append(roles, string(r))
	}
	claims := ActorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   actor.ID,
			Issuer:    m.issuer,
		},
		Roles: roles,
	}
	if actor.CompanyID != uuid.Nil {
		claims.CompanyID = actor.CompanyID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.signingKey)
}

func (m *TokenManager) Validate(tokenString string) (*ActorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ActorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.signingKey, nil
	}, jwt.WithIssuer(m.issuer))

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*ActorClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
