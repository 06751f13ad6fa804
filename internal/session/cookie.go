// ABOUTME: HTTP cookie binding for session tokens
// ABOUTME: Sets, reads, and clears the session cookie on browser responses

package session

import (
	"net/http"
	"time"
)

// CookieName is the session cookie set after a successful login.
const CookieName = "passgate_session"

// BindSession issues a token for username and sets it as an HttpOnly cookie.
func (i *Issuer) BindSession(w http.ResponseWriter, username string) error {
	token, err := i.Issue(username)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(i.lifetime / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

// Username extracts and validates the session cookie from the request.
func (i *Issuer) Username(r *http.Request) (string, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", ErrInvalidToken
	}
	return i.Verify(cookie.Value)
}

// ClearSession expires the session cookie.
func ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
