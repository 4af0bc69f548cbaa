package dashboard

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/catherinevee/cloudboard/internal/session"
)

const (
	tokenCookie = "cloudboard_token"
	flashCookie = "cloudboard_flash"
)

type flashKind string

const (
	flashSuccess flashKind = "success"
	flashError   flashKind = "error"
)

// flash is a one-shot message shown on the next rendered page
type flash struct {
	Kind    flashKind
	Message string
}

// requestSession returns the session carried by the request cookie
func requestSession(r *http.Request) session.Store {
	c, err := r.Cookie(tokenCookie)
	if err != nil {
		return session.NewMemoryStore("")
	}
	return session.NewMemoryStore(c.Value)
}

func (s *Server) setToken(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearToken(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) setFlash(w http.ResponseWriter, kind flashKind, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    string(kind) + "." + base64.RawURLEncoding.EncodeToString([]byte(message)),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash reads and clears the pending flash message
func (s *Server) popFlash(w http.ResponseWriter, r *http.Request) *flash {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Path: "/", MaxAge: -1, HttpOnly: true})

	kind, encoded, ok := strings.Cut(c.Value, ".")
	if !ok {
		return nil
	}
	msg, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil
	}
	return &flash{Kind: flashKind(kind), Message: string(msg)}
}
