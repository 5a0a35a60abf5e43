package relay

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ClaimsKey is the gin context key verified claims are stored under.
const ClaimsKey = "jwt_claims"

// TokenConfig mints the HS256 bearer tokens a client presents to the relay.
type TokenConfig struct {
	// Secret is the shared HMAC key (required)
	Secret string `mapstructure:"secret" json:"secret" yaml:"secret"`
	// TTL defaults to five minutes.
	TTL     time.Duration `mapstructure:"ttl" json:"ttl" yaml:"ttl"`
	Subject string        `mapstructure:"sub" json:"sub" yaml:"sub"`
	Issuer  string        `mapstructure:"iss" json:"iss" yaml:"iss"`
}

// Issue creates a signed token.
func (c TokenConfig) Issue() (string, error) {
	if c.Secret == "" {
		return "", errors.New("relay: jwt secret required")
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Subject:   c.Subject,
		Issuer:    c.Issuer,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.Secret))
}

// VerifyConfig configures the bearer guard.
type VerifyConfig struct {
	Secret        []byte
	AllowedIssuer string
	ClockSkew     time.Duration
}

func (cfg VerifyConfig) parse(raw string) (*jwt.RegisteredClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.ClockSkew),
		jwt.WithExpirationRequired(),
	}
	if cfg.AllowedIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.AllowedIssuer))
	}
	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return cfg.Secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// RequireJWT rejects requests without a valid HS256 bearer token.
func RequireJWT(cfg VerifyConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(cfg.Secret) == 0 {
			c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody("jwt secret not configured"))
			return
		}
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("missing or invalid Authorization header"))
			return
		}
		claims, err := cfg.parse(strings.TrimSpace(auth[len("Bearer "):]))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("invalid token"))
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}
