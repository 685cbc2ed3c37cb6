package server

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/izzyreal/wishjournal/internal/config"
	"github.com/izzyreal/wishjournal/internal/store"
)

const sessionCookie = "wishjournal_session"

// sessionClaims is the signed content of the session cookie. The CSRF token
// lives in the session so it survives for the session's lifetime.
type sessionClaims struct {
	jwt.RegisteredClaims
	UserID int64  `json:"user_id"`
	CSRF   string `json:"csrf"`
}

type viewer struct {
	User   store.User
	Claims *sessionClaims
}

type viewerKey struct{}

func newCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (s *stateStore) signSession(userID int64, now time.Time) (string, error) {
	csrf, err := newCSRFToken()
	if err != nil {
		return "", err
	}
	claims := &sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(config.SessionLifetime)),
		},
		UserID: userID,
		CSRF:   csrf,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.SecretKey))
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

func (s *stateStore) parseSession(tokenStr string) (*sessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.SecretKey), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid || claims.UserID <= 0 || claims.CSRF == "" {
		return nil, errors.New("invalid session token")
	}
	return claims, nil
}

func (s *stateStore) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(config.SessionLifetime / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.cfg.Production,
	})
}

func (s *stateStore) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.cfg.Production,
	})
}

// loadViewer resolves the session cookie into the logged-in user. Missing or
// invalid sessions pass through anonymously.
func (s *stateStore) loadViewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookie)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := s.parseSession(c.Value)
		if err != nil {
			s.clearSessionCookie(w)
			next.ServeHTTP(w, r)
			return
		}
		user, err := s.db.UserByID(r.Context(), claims.UserID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				s.logger.Error("load session user", "user_id", claims.UserID, "error", err)
			}
			s.clearSessionCookie(w)
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), viewerKey{}, &viewer{User: user, Claims: claims})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func viewerFrom(ctx context.Context) *viewer {
	v, _ := ctx.Value(viewerKey{}).(*viewer)
	return v
}

// requireViewer redirects anonymous page requests to the login form and
// rejects anonymous API requests with 401.
func requireViewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if viewerFrom(r.Context()) != nil {
			next.ServeHTTP(w, r)
			return
		}
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			http.Redirect(w, r, "/auth/login", http.StatusFound)
			return
		}
		writeJSONError(w, http.StatusUnauthorized, "Wymagane logowanie")
	})
}

// validCSRF compares token with the one bound to the request's session.
func validCSRF(r *http.Request, token string) bool {
	v := viewerFrom(r.Context())
	if v == nil || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(v.Claims.CSRF)) == 1
}

func (s *stateStore) loginPageHandler(w http.ResponseWriter, r *http.Request) {
	if viewerFrom(r.Context()) != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	s.render(w, r, http.StatusOK, "login", "Logowanie", loginPage{ShowError: r.URL.Query().Get("error") == "1"})
}

func (s *stateStore) loginHandler(w http.ResponseWriter, r *http.Request) {
	if viewerFrom(r.Context()) != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	ip := clientIP(r)
	if !s.limiter.allow(ip) {
		s.logger.Warn("login rate limited", "ip", ip)
		s.render(w, r, http.StatusTooManyRequests, "login", "Logowanie", loginPage{RateLimited: true})
		return
	}

	password := r.PostFormValue("password")
	user, err := s.db.UserByPassword(r.Context(), password)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Info("failed login", "ip", ip)
		http.Redirect(w, r, "/auth/login?error=1", http.StatusSeeOther)
		return
	}
	if err != nil {
		s.logger.Error("login lookup failed", "error", err)
		http.Error(w, "Błąd serwera", http.StatusInternalServerError)
		return
	}

	token, err := s.signSession(user.ID, time.Now())
	if err != nil {
		s.logger.Error("issue session", "user_id", user.ID, "error", err)
		http.Error(w, "Błąd serwera", http.StatusInternalServerError)
		return
	}
	if err := s.db.MarkLogin(r.Context(), user.ID); err != nil {
		s.logger.Warn("record login time", "user_id", user.ID, "error", err)
	}
	s.setSessionCookie(w, token)
	s.logger.Info("user logged in", "user_id", user.ID, "username", user.Username)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *stateStore) logoutHandler(w http.ResponseWriter, r *http.Request) {
	s.clearSessionCookie(w)
	http.Redirect(w, r, "/auth/login", http.StatusFound)
}

func (s *stateStore) csrfHandler(w http.ResponseWriter, r *http.Request) {
	v := viewerFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": v.Claims.CSRF})
}
