// Package auth valida o token de sessão emitido pelo provedor OAuth e
// devolve a identidade (e-mail) de quem faz a requisição.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const CookieName = "session"

var (
	ErrNoSession     = errors.New("no session")
	ErrInvalidToken  = errors.New("invalid session token")
	ErrUnverified    = errors.New("email not verified")
	ErrDomainBlocked = errors.New("email domain not allowed")
)

// Claims do token de sessão
type Claims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

type Identity struct {
	Email   string
	Name    string
	IsAdmin bool
}

type Verifier struct {
	secret        []byte
	allowedDomain string
	admins        map[string]struct{}
}

func NewVerifier(secret string, allowedDomain string, admins []string) *Verifier {
	v := &Verifier{
		secret:        []byte(secret),
		allowedDomain: strings.ToLower(strings.TrimPrefix(allowedDomain, "@")),
		admins:        make(map[string]struct{}, len(admins)),
	}
	for _, a := range admins {
		v.admins[strings.ToLower(a)] = struct{}{}
	}
	return v
}

// Verify valida assinatura (HS256), expiração e regras de e-mail
func (v *Verifier) Verify(raw string) (*Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if email == "" {
		return nil, fmt.Errorf("%w: missing email", ErrInvalidToken)
	}
	if !claims.EmailVerified {
		return nil, ErrUnverified
	}
	if v.allowedDomain != "" && !strings.HasSuffix(email, "@"+v.allowedDomain) {
		return nil, ErrDomainBlocked
	}

	_, admin := v.admins[email]
	return &Identity{Email: email, Name: claims.Name, IsAdmin: admin}, nil
}

// FromRequest lê "Authorization: Bearer" ou, na falta dele, o cookie de sessão
func (v *Verifier) FromRequest(r *http.Request) (*Identity, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		const prefix = "bearer "
		if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
			return v.Verify(strings.TrimSpace(h[len(prefix):]))
		}
		return nil, fmt.Errorf("%w: malformed authorization header", ErrInvalidToken)
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return v.Verify(c.Value)
	}
	return nil, ErrNoSession
}

// Issue assina um token; usado em testes e no modo local
func (v *Verifier) Issue(email string, verified bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:         email,
		EmailVerified: verified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(*Identity)
	return id, ok && id != nil
}
