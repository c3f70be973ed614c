// internal/httpserver/auth.go
//
// Seat tokens. Joining a room hands back a signed JWT naming the room,
// the player id, and the slot; every in-room operation presents it via
// Authorization header or cookie. The token is the reconnect identity:
// a client that lost its tab rejoins the same seat by replaying it.

package httpserver

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

// seatClaims is decoded from a verified token and placed on the request
// context by the seat middleware.
type seatClaims struct {
	Room     string
	PlayerID string
	Slot     int
}

// ctxSeatKey is the context key type for storing seatClaims.
type ctxSeatKey struct{}

// seatFrom pulls verified claims off the request context, or nil.
func seatFrom(ctx context.Context) *seatClaims {
	c, _ := ctx.Value(ctxSeatKey{}).(*seatClaims)
	return c
}

// signSeatToken creates an HS256 JWT for one seat with a configurable
// expiry (JWT_EXPIRES_HOURS; default 24, plenty for a session game).
func signSeatToken(room, playerID string, slot int) (string, time.Time, error) {
	hours := 24
	if v := os.Getenv("JWT_EXPIRES_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			hours = n
		}
	}
	exp := time.Now().Add(time.Duration(hours) * time.Hour)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"room": room,
		"pid":  playerID,
		"slot": slot,
		"exp":  exp.Unix(),
		"iat":  time.Now().Unix(),
	})
	ss, err := t.SignedString([]byte(jwtSecret()))
	return ss, exp, err
}

// parseSeatToken verifies a token and extracts its claims.
func parseSeatToken(tok string) (*seatClaims, error) {
	claims := jwt.MapClaims{}
	t, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(jwtSecret()), nil
	})
	if err != nil || !t.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	room, _ := claims["room"].(string)
	pid, _ := claims["pid"].(string)
	slot, _ := claims["slot"].(float64) // JSON numbers decode as float64
	if room == "" || pid == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return &seatClaims{Room: room, PlayerID: pid, Slot: int(slot)}, nil
}

func jwtSecret() string {
	return getEnv("JWT_SECRET", "dev_secret_change_me")
}

// bearerOrCookie extracts a token from the Authorization header or the
// seat cookie.
func bearerOrCookie(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(getEnv("COOKIE_NAME", "digitclash_token")); err == nil {
		return c.Value
	}
	return ""
}

// requireSeat enforces a valid token for the room named in the URL and
// injects the claims into the request context.
func (s *Server) requireSeat() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := bearerOrCookie(r)
			if tok == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			claims, err := parseSeatToken(tok)
			if err != nil {
				http.Error(w, `{"error":"invalid_token"}`, http.StatusUnauthorized)
				return
			}
			if code := chi.URLParam(r, "code"); code != "" && claims.Room != code {
				http.Error(w, `{"error":"wrong_room"}`, http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), ctxSeatKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// optionalSeat decorates requests with claims when a valid token for this
// room is present. It never 401s; used where spectators are allowed.
func (s *Server) optionalSeat() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tok := bearerOrCookie(r); tok != "" {
				if claims, err := parseSeatToken(tok); err == nil {
					if code := chi.URLParam(r, "code"); code == "" || claims.Room == code {
						r = r.WithContext(context.WithValue(r.Context(), ctxSeatKey{}, claims))
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// setSeatCookie mirrors the token into a cookie so browser EventSource
// connections (which cannot set headers) authenticate too.
func setSeatCookie(w http.ResponseWriter, token string, exp time.Time) {
	secure := os.Getenv("NODE_ENV") == "production"
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     getEnv("COOKIE_NAME", "digitclash_token"),
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		Expires:  exp,
	})
}
