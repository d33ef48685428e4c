// Package forms implements the login and signup form components: local
// field state, one submission call against the user API, and the
// notification / navigation side effects that follow it.
package forms

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/jobportal/authweb/internal/authstate"
	"github.com/jobportal/authweb/internal/userapi"
	"go.uber.org/zap"
)

// Routes the forms navigate to
const (
	HomePath  = "/"
	LoginPath = "/login"
)

// Fallback notification text when the server gives no message
const (
	LoginFailedMessage  = "Login failed"
	SignupFailedMessage = "Signup failed"
)

// ErrUnknownField is returned by ChangeField for names the form does not have
var ErrUnknownField = errors.New("unknown form field")

// LoginAPI is the user API call made by LoginForm
type LoginAPI interface {
	Login(ctx context.Context, in userapi.LoginRequest, creds []*http.Cookie) (*userapi.Result, error)
}

// RegisterAPI is the user API call made by SignupForm
type RegisterAPI interface {
	Register(ctx context.Context, in userapi.RegisterRequest, creds []*http.Cookie) (*userapi.Result, error)
}

// AuthState is the shared session state the forms read and mutate
type AuthState interface {
	Snapshot() authstate.State
	SetLoading(ctx context.Context, loading bool) error
	SetUser(ctx context.Context, u *userapi.User) error
	Subscribe(fn func(authstate.State)) func()
}

// Navigator moves the user to another route
type Navigator interface {
	Navigate(path string)
}

// Notifier shows short toast notifications
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Credentials carries the browser's cookies to the API and receives the
// cookies the API sets in return.
type Credentials interface {
	Cookies() []*http.Cookie
	SetCookies(cookies []*http.Cookie)
}

// Deps are the collaborators shared by both forms
type Deps struct {
	State     AuthState
	Navigator Navigator
	Notifier  Notifier
	// Credentials is optional; without it no cookies are exchanged
	Credentials Credentials
	Logger      *zap.Logger
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d Deps) cookies() []*http.Cookie {
	if d.Credentials == nil {
		return nil
	}
	return d.Credentials.Cookies()
}

func (d Deps) storeCookies(cookies []*http.Cookie) {
	if d.Credentials != nil && len(cookies) > 0 {
		d.Credentials.SetCookies(cookies)
	}
}

// redirector sends the user home whenever the shared state carries a user
// it has not seen yet. While muted it only records the user, so a form that
// navigates on its own after SetUser does not navigate twice.
type redirector struct {
	nav Navigator

	mu    sync.Mutex
	last  *userapi.User
	muted int
}

func (r *redirector) observe(st authstate.State) {
	r.mu.Lock()
	if st.User == nil || st.User == r.last {
		if st.User == nil {
			r.last = nil
		}
		r.mu.Unlock()
		return
	}
	r.last = st.User
	muted := r.muted > 0
	r.mu.Unlock()

	if !muted {
		r.nav.Navigate(HomePath)
	}
}

func (r *redirector) mute() func() {
	r.mu.Lock()
	r.muted++
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.muted--
		r.mu.Unlock()
	}
}

// mount subscribes to state and checks the current snapshot right away
func (r *redirector) mount(state AuthState) func() {
	unsubscribe := state.Subscribe(r.observe)
	r.observe(state.Snapshot())
	return unsubscribe
}
