package web

import (
	"net/http"
	"strings"

	"github.com/jobportal/authweb/internal/authstate"
	"github.com/jobportal/authweb/internal/forms"
	"go.uber.org/zap"
)

// component hosts one form for the duration of a request. Navigation turns
// into a 303 redirect and notifications into a flash message.
type component struct {
	router *Router
	state  *authstate.Store
	nav    *redirectNavigator
	notify *flashNotifier
	deps   forms.Deps
}

func (r *Router) newComponent(w http.ResponseWriter, req *http.Request) (*component, bool) {
	state, ok := r.openState(w, req)
	if !ok {
		return nil, false
	}

	c := &component{
		router: r,
		state:  state,
		nav:    &redirectNavigator{},
		notify: &flashNotifier{},
	}
	c.deps = forms.Deps{
		State:       state,
		Navigator:   c.nav,
		Notifier:    c.notify,
		Credentials: newCookieRelay(w, req, r.secure),
		Logger:      r.logger.With(zap.String("session_id", state.SessionID())),
	}
	return c, true
}

// redirectIfNavigated answers with a redirect when the form navigated,
// carrying the latest notification along as a flash
func (c *component) redirectIfNavigated(w http.ResponseWriter, req *http.Request) bool {
	target := c.nav.Target()
	if target == "" {
		return false
	}
	if msg := c.notify.Message(); msg != nil {
		setFlash(w, msg, c.router.secure)
	}
	http.Redirect(w, req, target, http.StatusSeeOther)
	return true
}

func (c *component) render(w http.ResponseWriter, req *http.Request, page, title string, view interface{}, flash *FlashMessage) {
	snap := c.state.Snapshot()
	c.router.renderPage(w, req, page, PageData{
		Title:   title,
		User:    snap.User,
		Loading: snap.Loading,
		Flash:   flash,
		Form:    view,
	})
}

// redirectNavigator records the last navigation target
type redirectNavigator struct {
	target string
}

func (n *redirectNavigator) Navigate(path string) { n.target = path }

// Target returns the last path navigated to, or "" if none
func (n *redirectNavigator) Target() string { return n.target }

// flashNotifier keeps the latest notification
type flashNotifier struct {
	last *FlashMessage
}

func (n *flashNotifier) Success(msg string) {
	n.last = &FlashMessage{Type: FlashSuccess, Message: msg}
}

func (n *flashNotifier) Error(msg string) {
	n.last = &FlashMessage{Type: FlashError, Message: msg}
}

// Message returns the latest notification, or nil
func (n *flashNotifier) Message() *FlashMessage { return n.last }

// apiCookiePrefix namespaces the user API's cookies in the browser so they
// do not collide with this server's own cookies
const apiCookiePrefix = "api_"

// cookieRelay forwards the user API's cookies between the browser and the API
type cookieRelay struct {
	w      http.ResponseWriter
	req    *http.Request
	secure bool
}

func newCookieRelay(w http.ResponseWriter, req *http.Request, secure bool) *cookieRelay {
	return &cookieRelay{w: w, req: req, secure: secure}
}

// Cookies returns the API cookies the browser holds, under their API names
func (c *cookieRelay) Cookies() []*http.Cookie {
	var out []*http.Cookie
	for _, ck := range c.req.Cookies() {
		if name, ok := strings.CutPrefix(ck.Name, apiCookiePrefix); ok && name != "" {
			out = append(out, &http.Cookie{Name: name, Value: ck.Value})
		}
	}
	return out
}

// SetCookies stores cookies set by the API in the browser. Lifetimes are
// kept; domain and path are rewritten to this server.
func (c *cookieRelay) SetCookies(cookies []*http.Cookie) {
	for _, ck := range cookies {
		http.SetCookie(c.w, &http.Cookie{
			Name:     apiCookiePrefix + ck.Name,
			Value:    ck.Value,
			Path:     "/",
			Expires:  ck.Expires,
			MaxAge:   ck.MaxAge,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Secure:   c.secure,
		})
	}
}

// Clear expires every API cookie the browser holds
func (c *cookieRelay) Clear() {
	for _, ck := range c.req.Cookies() {
		if strings.HasPrefix(ck.Name, apiCookiePrefix) {
			http.SetCookie(c.w, &http.Cookie{
				Name:     ck.Name,
				Value:    "",
				Path:     "/",
				MaxAge:   -1,
				HttpOnly: true,
				Secure:   c.secure,
			})
		}
	}
}
