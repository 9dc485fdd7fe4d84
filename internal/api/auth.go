package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
)

var errUnauthenticated = errors.New("missing or invalid credentials")

// Claims carries the identity issued by the login service: the user id in
// sub and the clinic role.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

type AuthConfig struct {
	// Dev trusts X-User-ID and X-User-Role headers. Never enable in production.
	Dev        bool
	SigningKey []byte
	Issuer     string
}

// Authenticate resolves the caller into an appointment.Actor and stores it on
// the request context. Requests without a valid identity get 401.
func Authenticate(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				actor appointment.Actor
				err   error
			)
			if cfg.Dev {
				actor, err = actorFromHeaders(r)
			} else {
				actor, err = actorFromToken(r, cfg)
			}
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error(), false)
				return
			}

			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func actorFromHeaders(r *http.Request) (appointment.Actor, error) {
	return parseActor(r.Header.Get("X-User-ID"), r.Header.Get("X-User-Role"))
}

func actorFromToken(r *http.Request, cfg AuthConfig) (appointment.Actor, error) {
	raw := bearerToken(r)
	if raw == "" {
		return appointment.Actor{}, errUnauthenticated
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil {
		return appointment.Actor{}, fmt.Errorf("%w: %v", errUnauthenticated, err)
	}

	return parseActor(claims.Subject, claims.Role)
}

// bearerToken reads the Authorization header, or the access_token query
// parameter for websocket clients that cannot set headers.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

func parseActor(userID, role string) (appointment.Actor, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return appointment.Actor{}, fmt.Errorf("%w: user id", errUnauthenticated)
	}
	parsedRole, err := appointment.ParseRole(role)
	if err != nil {
		return appointment.Actor{}, fmt.Errorf("%w: role", errUnauthenticated)
	}
	return appointment.Actor{UserID: id, Role: parsedRole}, nil
}

// ActorFromContext returns the authenticated caller.
func ActorFromContext(ctx context.Context) (appointment.Actor, bool) {
	a, ok := ctx.Value(actorKey).(appointment.Actor)
	return a, ok
}

// IssueToken signs a token for the given actor. Used by tests and the
// simulator; production tokens come from the login service.
func IssueToken(actor appointment.Actor, key []byte, issuer string) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: actor.UserID.String(),
			Issuer:  issuer,
		},
		Role: string(actor.Role),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}
