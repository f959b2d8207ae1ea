// Package identity resolves who a request belongs to: the trainee, kept
// anonymous behind a device cookie, and the client tab they are talking
// from. Goals, rate limits and agent sessions are all keyed on it.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	AnonCookieName        = "trainer_uid"
	SessionHeaderName     = "X-Trainer-Session-ID"
	DefaultSessionIDValue = "default"

	traineePrefix = "trainee_"
	cookieMaxAge  = 30 * 24 * time.Hour
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// Trainee identifies the requester. SessionID tells apart tabs or devices of
// the same trainee and is never empty once resolved.
type Trainee struct {
	UserID    string
	SessionID string
}

type traineeKey struct{}

// FromContext returns the trainee resolved by Middleware or set by WithUserID.
func FromContext(ctx context.Context) (Trainee, bool) {
	t, ok := ctx.Value(traineeKey{}).(Trainee)
	return t, ok
}

// UserIDFromContext returns the trainee's user ID, or "" when none is set.
func UserIDFromContext(ctx context.Context) string {
	t, _ := FromContext(ctx)
	return t.UserID
}

// SessionIDFromContext returns the client session ID, or
// DefaultSessionIDValue when none is set.
func SessionIDFromContext(ctx context.Context) string {
	if t, ok := FromContext(ctx); ok && t.SessionID != "" {
		return t.SessionID
	}
	return DefaultSessionIDValue
}

// WithUserID returns ctx carrying userID, for callers outside HTTP.
func WithUserID(ctx context.Context, userID string) context.Context {
	t, _ := FromContext(ctx)
	t.UserID = userID
	return context.WithValue(ctx, traineeKey{}, t)
}

// Middleware resolves the trainee for every request. A missing or tampered
// cookie gets a fresh trainee ID; a valid one has its expiry extended.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := traineeID(r)
			if err != nil {
				http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
				return
			}
			http.SetCookie(w, traineeCookie(userID, isDev))

			t := Trainee{UserID: userID, SessionID: clientSession(r)}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), traineeKey{}, t)))
		})
	}
}

func traineeID(r *http.Request) (string, error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && validTraineeID(c.Value) {
		return c.Value, nil
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate trainee id: %w", err)
	}
	return traineePrefix + id.String(), nil
}

func validTraineeID(id string) bool {
	rest, ok := strings.CutPrefix(id, traineePrefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil && len(rest) == 36
}

func traineeCookie(id string, isDev bool) *http.Cookie {
	return &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		Expires:  time.Now().Add(cookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	}
}

// clientSession reads the tab's session ID from the header, falling back to
// the session_id query parameter that WebSocket clients use.
func clientSession(r *http.Request) string {
	sid := strings.TrimSpace(r.Header.Get(SessionHeaderName))
	if sid == "" {
		sid = strings.TrimSpace(r.URL.Query().Get("session_id"))
	}
	if !sessionIDPattern.MatchString(sid) {
		return DefaultSessionIDValue
	}
	return sid
}
