package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"mime"
	"net/http"
)

// CSRFCookieName is the name of the CSRF token cookie
const CSRFCookieName = "csrf_token"

// CSRFFormFieldName is the name of the hidden form field containing the CSRF token
const CSRFFormFieldName = "csrf_token"

// CSRFHeaderName carries the token for script-driven requests
const CSRFHeaderName = "X-CSRF-Token"

// CSRFTokenLength is the number of random bytes used to generate a CSRF token
const CSRFTokenLength = 32

// MultipartMemory is the in-memory limit used when parsing multipart posts.
// The signup form posts a profile picture alongside its text fields.
const MultipartMemory = 10 << 20

// GenerateCSRFToken returns a base64 URL-encoded string of 32 random bytes
func GenerateCSRFToken() (string, error) {
	b := make([]byte, CSRFTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// ValidateCSRFToken compares the cookie token with the form token in constant time
func ValidateCSRFToken(cookieToken, formToken string) bool {
	if cookieToken == "" || formToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookieToken), []byte(formToken)) == 1
}

// CSRF issues and checks double-submit tokens
type CSRF struct {
	// Secure marks the cookie Secure; set when served over HTTPS
	Secure bool
}

// SetCookie writes the CSRF token cookie. It is readable by scripts so they
// can echo it in the X-CSRF-Token header.
func (c CSRF) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   3600,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
		Secure:   c.Secure,
	})
}

// Ensure returns the request's CSRF token, issuing a new cookie if there is none
func (c CSRF) Ensure(w http.ResponseWriter, r *http.Request) (string, error) {
	if token := TokenFromCookie(r); token != "" {
		return token, nil
	}

	token, err := GenerateCSRFToken()
	if err != nil {
		return "", err
	}
	c.SetCookie(w, token)
	return token, nil
}

// Middleware rejects state-changing requests whose form or header token
// does not match the cookie token with 403 Forbidden
func (c CSRF) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			if !ValidateCSRFToken(TokenFromCookie(r), TokenFromRequest(r)) {
				http.Error(w, "Forbidden - CSRF token validation failed", http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// TokenFromRequest reads the token from the posted form, falling back to the
// X-CSRF-Token header. Both urlencoded and multipart bodies are parsed.
func TokenFromRequest(r *http.Request) string {
	if r.Method == http.MethodPost {
		if token := formToken(r); token != "" {
			return token
		}
	}
	return r.Header.Get(CSRFHeaderName)
}

func formToken(r *http.Request) string {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(MultipartMemory); err != nil {
			return ""
		}
	} else if err := r.ParseForm(); err != nil {
		return ""
	}
	return r.FormValue(CSRFFormFieldName)
}

// TokenFromCookie extracts the CSRF token from the cookie
func TokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
