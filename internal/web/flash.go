package web

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

// FlashCookieName carries a notification across a redirect
const FlashCookieName = "flash"

// Flash message types
const (
	FlashSuccess = "success"
	FlashError   = "error"
)

// FlashMessage represents a toast notification
type FlashMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func setFlash(w http.ResponseWriter, msg *FlashMessage, secure bool) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(b),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

// takeFlash reads the pending flash message and clears it. Malformed
// cookies are dropped.
func takeFlash(w http.ResponseWriter, req *http.Request) *FlashMessage {
	cookie, err := req.Cookie(FlashCookieName)
	if err != nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{Name: FlashCookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})

	b, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil
	}
	var msg FlashMessage
	if err := json.Unmarshal(b, &msg); err != nil || msg.Message == "" {
		return nil
	}
	if msg.Type != FlashSuccess {
		msg.Type = FlashError
	}
	return &msg
}
