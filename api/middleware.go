package api

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shaj13/go-guardian/auth"
	"github.com/shaj13/go-guardian/auth/strategies/basic"
	"github.com/shaj13/go-guardian/auth/strategies/bearer"
	"github.com/shaj13/go-guardian/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/linesmerrill/emergency-report-api/config"
	"github.com/linesmerrill/emergency-report-api/lifecycle"
)

// TokenTTL is the lifetime of an issued access token
const TokenTTL = 12 * time.Hour

// Auth authenticates callers with basic credentials of configured accounts
// or with the signed bearer tokens it issues
type Auth struct {
	Tuning *config.TuningStore
	Secret []byte

	authenticator auth.Authenticator
	cache         store.Cache
	now           func() time.Time
}

// NewAuth sets up the go-guardian strategies
func NewAuth(tuning *config.TuningStore, secret string) *Auth {
	a := &Auth{Tuning: tuning, Secret: []byte(secret), now: time.Now}
	a.authenticator = auth.New()
	a.cache = store.NewFIFO(context.Background(), 10*time.Minute)
	basicStrategy := basic.New(a.ValidateAccount, a.cache)
	tokenStrategy := bearer.New(a.ValidateToken, a.cache)

	a.authenticator.EnableStrategy(basic.StrategyKey, basicStrategy)
	a.authenticator.EnableStrategy(bearer.CachedStrategyKey, tokenStrategy)
	return a
}

// Middleware rejects unauthenticated requests and puts the actor on the
// request context
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		user, err := a.authenticator.Authenticate(r)
		if err != nil {
			zap.S().Warnw("unauthorized",
				"url", r.URL.Path,
				"error", err)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "unauthorized"}`))
			return
		}
		zap.S().Debugw("authenticated", "user", user.UserName())
		actor := lifecycle.Actor{ID: user.ID(), Roles: user.Groups()}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// Optional authenticates the request when it carries credentials and lets
// anonymous requests through untouched
func (a *Auth) Optional(next http.Handler) http.Handler {
	guarded := a.Middleware(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}
		guarded.ServeHTTP(w, r)
	})
}

// ValidateAccount checks basic credentials against the configured accounts
func (a *Auth) ValidateAccount(ctx context.Context, r *http.Request, userName, password string) (auth.Info, error) {
	usernameHash := sha256.Sum256([]byte(userName))
	for _, op := range a.Tuning.Load().Operators {
		expected := sha256.Sum256([]byte(op.ID))
		if subtle.ConstantTimeCompare(usernameHash[:], expected[:]) != 1 {
			continue
		}
		if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
			return nil, fmt.Errorf("failed to compare password")
		}
		return auth.NewDefaultUser(op.Name, op.ID, op.Roles, nil), nil
	}
	return nil, fmt.Errorf("invalid credentials")
}

type tokenClaims struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// IssueToken signs an access token for the actor
func (a *Auth) IssueToken(name string, actor lifecycle.Actor) (string, time.Time, error) {
	if len(a.Secret) == 0 {
		return "", time.Time{}, errors.New("JWT_SECRET is not set")
	}
	now := a.now()
	exp := now.Add(TokenTTL)
	claims := tokenClaims{
		Name:  name,
		Roles: actor.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ValidateToken verifies a bearer token issued by IssueToken
func (a *Auth) ValidateToken(ctx context.Context, r *http.Request, token string) (auth.Info, error) {
	if len(a.Secret) == 0 {
		return nil, errors.New("token auth is not configured")
	}
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return a.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return auth.NewDefaultUser(claims.Name, claims.Subject, claims.Roles, nil), nil
}

type tokenResponse struct {
	Token     string   `json:"token"`
	ID        string   `json:"_id"`
	Roles     []string `json:"roles"`
	ExpiresAt int64    `json:"expiresAt"`
}

// CreateToken exchanges basic credentials for a bearer token. It runs behind
// Middleware, so the actor is already authenticated.
func (a *Auth) CreateToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "unauthorized"}`))
		return
	}
	name, _, _ := r.BasicAuth()
	token, exp, err := a.IssueToken(name, actor)
	if err != nil {
		config.ErrorStatus("failed to issue token", http.StatusInternalServerError, w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(tokenResponse{
		Token:     token,
		ID:        actor.ID,
		Roles:     actor.Roles,
		ExpiresAt: exp.Unix(),
	})
}
