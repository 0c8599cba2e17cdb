package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"go.uber.org/zap"

	"escala/internal/core"
)

const sessionCookie = "escala_session"

// SessionConfig configures the signed session cookie.
type SessionConfig struct {
	// HashKey authenticates the cookie. A random key is generated when
	// empty, so sessions do not survive restarts.
	HashKey []byte
	// BlockKey encrypts the cookie when set (16, 24 or 32 bytes).
	BlockKey []byte
	MaxAge   time.Duration
	Secure   bool
}

type sessionValue struct {
	VolunteerID string
	IssuedAt    int64
}

// sessions stores the identified volunteer in a signed cookie.
type sessions struct {
	codec  *securecookie.SecureCookie
	maxAge time.Duration
	secure bool
}

func newSessions(cfg SessionConfig) *sessions {
	hash := cfg.HashKey
	if len(hash) == 0 {
		hash = securecookie.GenerateRandomKey(32)
	}
	var block []byte
	if len(cfg.BlockKey) > 0 {
		block = cfg.BlockKey
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}
	codec := securecookie.New(hash, block)
	codec.MaxAge(int(maxAge.Seconds()))
	return &sessions{codec: codec, maxAge: maxAge, secure: cfg.Secure}
}

func (s *sessions) load(r *http.Request) (string, error) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return "", nil
	}
	var v sessionValue
	if err := s.codec.Decode(sessionCookie, c.Value, &v); err != nil {
		return "", err
	}
	return v.VolunteerID, nil
}

func (s *sessions) save(w http.ResponseWriter, volunteerID string) error {
	encoded, err := s.codec.Encode(sessionCookie, sessionValue{VolunteerID: volunteerID, IssuedAt: time.Now().Unix()})
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(s.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *sessions) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

type ctxKey int

const volunteerKey ctxKey = iota

func volunteerFrom(ctx context.Context) (core.Volunteer, bool) {
	v, ok := ctx.Value(volunteerKey).(core.Volunteer)
	return v, ok
}

// loadSession resolves the cookie into the current volunteer. Cookies for
// volunteers that no longer exist are cleared.
func (a *API) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.sessions.load(r)
		if err != nil {
			var scErr securecookie.Error
			if errors.As(err, &scErr) && scErr.IsDecode() {
				a.log.Warn("session cookie invalid", zap.Error(err))
			}
			a.sessions.clear(w)
			next.ServeHTTP(w, r)
			return
		}
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		vol, ok := a.svc.GetVolunteer(id)
		if !ok {
			a.sessions.clear(w)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), volunteerKey, vol)))
	})
}

func requireVolunteer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := volunteerFrom(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "identify first")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vol, ok := volunteerFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "identify first")
			return
		}
		if !vol.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireConfirm gates cascading deletes behind ?confirm=true.
func requireConfirm(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("confirm") != "true" {
			writeError(w, http.StatusPreconditionRequired, "this removes dependent assignments; repeat with confirm=true")
			return
		}
		next.ServeHTTP(w, r)
	})
}
