package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/paa-engine/budget"
)

const tokenIssuer = "paa-engine"

// Claims is the bearer token payload. Tokens are issued by the identity
// service; IssueToken exists for tooling and tests.
type Claims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// Authenticator resolves the acting user from an HS256 bearer token.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// IssueToken signs a token for userID valid for ttl.
func (a *Authenticator) IssueToken(userID string, roles []budget.Role, ttl time.Duration) (string, error) {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Roles:  names,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse validates tokenString and returns the actor it names.
func (a *Authenticator) Parse(tokenString string) (budget.Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return budget.Actor{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return budget.Actor{}, jwt.ErrTokenInvalidClaims
	}
	if claims.UserID == "" {
		return budget.Actor{}, errors.New("token has no user_id")
	}

	actor := budget.Actor{ID: claims.UserID}
	for _, r := range claims.Roles {
		actor.Roles = append(actor.Roles, budget.Role(r))
	}
	return actor, nil
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

type actorKey struct{}

// Middleware rejects requests without a valid bearer token (401) and puts
// the actor on the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
			return
		}

		actor, err := a.Parse(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid bearer token", err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func WithActor(ctx context.Context, actor budget.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the authenticated actor, or the zero Actor.
func ActorFrom(ctx context.Context) budget.Actor {
	actor, _ := ctx.Value(actorKey{}).(budget.Actor)
	return actor
}
