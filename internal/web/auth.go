package web

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	sessionCookieName = "ledgerdash_session"
	sessionDuration   = 24 * time.Hour
)

// operatorSession is one signed-in operator. ID names the session in logs;
// only the browser holds the token.
type operatorSession struct {
	ID       string
	Operator string
	Expires  time.Time
}

// sessionStore keeps operator sessions in memory. Sessions do not survive a
// restart.
type sessionStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	byToken map[string]operatorSession
}

func newSessionStore(ttl time.Duration) *sessionStore {
	return &sessionStore{
		ttl:     ttl,
		now:     time.Now,
		byToken: make(map[string]operatorSession),
	}
}

// open starts a session for operator and returns the browser token.
// Expired sessions are swept on every sign-in.
func (st *sessionStore) open(operator string) (string, operatorSession, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", operatorSession{}, err
	}
	token := hex.EncodeToString(b)

	now := st.now()
	sess := operatorSession{ID: uuid.NewString(), Operator: operator, Expires: now.Add(st.ttl)}

	st.mu.Lock()
	defer st.mu.Unlock()
	for t, s := range st.byToken {
		if !now.Before(s.Expires) {
			delete(st.byToken, t)
		}
	}
	st.byToken[token] = sess
	return token, sess, nil
}

// lookup returns the live session for token. An expired one is dropped.
func (st *sessionStore) lookup(token string) (operatorSession, bool) {
	if token == "" {
		return operatorSession{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.byToken[token]
	if !ok {
		return operatorSession{}, false
	}
	if !st.now().Before(sess.Expires) {
		delete(st.byToken, token)
		return operatorSession{}, false
	}
	return sess, true
}

// close ends the session for token, if any.
func (st *sessionStore) close(token string) (operatorSession, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.byToken[token]
	delete(st.byToken, token)
	return sess, ok
}

type sessionKey struct{}

// sessionFrom returns the operator session requireAuth attached to ctx.
func sessionFrom(ctx context.Context) (operatorSession, bool) {
	sess, ok := ctx.Value(sessionKey{}).(operatorSession)
	return sess, ok
}

// requireAuth lets requests with a live session through and attaches the
// session to the request context. Others are sent to /login; API and
// websocket calls get a 401 instead.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.sessionOf(r)
		if !ok {
			if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/ws" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "unauthorized"})
				return
			}
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

func (s *Server) sessionOf(r *http.Request) (operatorSession, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return operatorSession{}, false
	}
	return s.sessions.lookup(cookie.Value)
}

func (s *Server) checkCredentials(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.AdminUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.AdminPassword)) == 1
	return userOK && passOK
}

// handleLogin serves the sign-in page on GET and checks credentials on POST.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		if _, ok := s.sessionOf(r); ok {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, loginHTML)
		return
	}

	username := r.FormValue("username")
	if !s.checkCredentials(username, r.FormValue("password")) {
		slog.Warn("Failed sign-in", "operator", username, "remote", r.RemoteAddr, "component", "Auth")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, strings.ReplaceAll(loginHTML, "<!--ERROR-->",
			`<div class="login-error">Invalid username or password</div>`))
		return
	}

	token, sess, err := s.sessions.open(username)
	if err != nil {
		slog.Error("Could not start session", "error", err, "component", "Auth")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
		Expires:  sess.Expires,
	})
	slog.Info("Operator signed in", "operator", sess.Operator, "session", sess.ID, "remote", r.RemoteAddr, "component", "Auth")
	http.Redirect(w, r, "/", http.StatusFound)
}

// handleLogout ends the session and clears the cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if sess, ok := s.sessions.close(cookie.Value); ok {
			slog.Info("Operator signed out", "operator", sess.Operator, "session", sess.ID, "component", "Auth")
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
