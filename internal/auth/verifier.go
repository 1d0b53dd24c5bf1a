// Package auth verifies bearer tokens issued by the identity provider and
// carries the verified claims through the request context.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const defaultLeeway = 30 * time.Second

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrMissingSubject = errors.New("token missing sub")
)

type Options struct {
	Secret   string
	JWKSURL  string
	Issuer   string
	Audience string
}

// Verifier validates HS256 tokens signed with a shared secret, or
// RS/ES tokens whose keys are served from a JWKS endpoint.
type Verifier struct {
	issuer   string
	audience string
	keyfunc  jwt.Keyfunc
	parser   *jwt.Parser
}

// NewVerifier prefers the JWKS endpoint when both sources are configured.
func NewVerifier(ctx context.Context, options Options) (*Verifier, error) {
	parserOpts := []jwt.ParserOption{jwt.WithLeeway(defaultLeeway), jwt.WithExpirationRequired()}
	if options.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(options.Issuer))
	}
	if options.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(options.Audience))
	}

	var kf jwt.Keyfunc
	switch {
	case options.JWKSURL != "":
		provider, err := keyfunc.NewDefaultCtx(ctx, []string{options.JWKSURL})
		if err != nil {
			return nil, fmt.Errorf("init jwks keyfunc: %w", err)
		}
		kf = provider.Keyfunc
		parserOpts = append(parserOpts, jwt.WithValidMethods([]string{
			jwt.SigningMethodRS256.Name, jwt.SigningMethodRS384.Name, jwt.SigningMethodRS512.Name,
			jwt.SigningMethodES256.Name,
		}))
	case options.Secret != "":
		secret := []byte(options.Secret)
		kf = func(*jwt.Token) (any, error) { return secret, nil }
		parserOpts = append(parserOpts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	default:
		return nil, errors.New("either a jwt secret or a jwks url must be set")
	}

	return &Verifier{
		issuer:   options.Issuer,
		audience: options.Audience,
		keyfunc:  kf,
		parser:   jwt.NewParser(parserOpts...),
	}, nil
}

func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := v.parser.Parse(tokenString, v.keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	claims := &Claims{
		Subject:   readString(mapClaims, "sub"),
		Issuer:    readString(mapClaims, "iss"),
		Audience:  readAudience(mapClaims["aud"]),
		ExpiresAt: readExpiry(mapClaims["exp"]),
		Email:     readString(mapClaims, "email"),
		Raw:       mapClaims,
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func readString(claims jwt.MapClaims, key string) string {
	if s, ok := claims[key].(string); ok {
		return s
	}
	return ""
}

func readAudience(raw any) []string {
	switch v := raw.(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	}
	return nil
}

func readExpiry(raw any) time.Time {
	switch v := raw.(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return time.Unix(i, 0)
		}
	case int64:
		return time.Unix(v, 0)
	}
	return time.Time{}
}
