// Package token mints short-lived service credentials for internal calls.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/metering/internal/clock"
)

const (
	serviceSubject = "metering-service"
	defaultTTL     = 2 * time.Hour
)

var ErrMissingSecret = errors.New("missing_signing_secret")

// Issuer signs service JWTs scoped to a single organization. The monitor
// mints one per tenant per tick so every downstream call carries the tenant
// it acts for.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  clock.Clock
}

// Config configures the issuer.
type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

func NewIssuer(cfg Config, clk clock.Clock) (*Issuer, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "metering"
	}
	return &Issuer{
		secret: []byte(cfg.Secret),
		issuer: issuer,
		ttl:    ttl,
		clock:  clk,
	}, nil
}

// ServiceToken mints an HS256 service credential bound to the organization.
func (i *Issuer) ServiceToken(orgID int64) (string, error) {
	now := i.clock.Now()
	claims := jwt.MapClaims{
		"sub":            serviceSubject,
		"iss":            i.issuer,
		"iat":            now.Unix(),
		"exp":            now.Add(i.ttl).Unix(),
		"organizationId": orgID,
		"orgId":          strconv.FormatInt(orgID, 10),
		"type":           "service",
		"service":        "metering",
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign service token: %w", err)
	}
	return signed, nil
}

// Parse validates a token signed by this issuer and returns its claims.
func (i *Issuer) Parse(raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.clock.Now))
	if err != nil {
		return nil, err
	}
	return claims, nil
}
