package forms

import (
	"context"
	"sync"

	"github.com/jobportal/authweb/internal/userapi"
	"go.uber.org/zap"
)

// LoginState is the local field state of the login form
type LoginState struct {
	Email    string
	Password string
	Role     userapi.Role
}

// LoginForm captures email, password and role and signs the user in
type LoginForm struct {
	api      LoginAPI
	deps     Deps
	redirect *redirector

	mu    sync.Mutex
	state LoginState
}

// NewLoginForm creates an empty login form
func NewLoginForm(api LoginAPI, deps Deps) *LoginForm {
	return &LoginForm{
		api:      api,
		deps:     deps,
		redirect: &redirector{nav: deps.Navigator},
	}
}

// Mount starts the signed-in redirect. If a user is already present the
// form navigates home immediately. Call the returned function on unmount.
func (f *LoginForm) Mount() func() {
	return f.redirect.mount(f.deps.State)
}

// ChangeField sets the named field to value. Values are stored as given.
func (f *LoginForm) ChangeField(name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch name {
	case "email":
		f.state.Email = value
	case "password":
		f.state.Password = value
	case "role":
		f.state.Role = userapi.Role(value)
	default:
		return ErrUnknownField
	}
	return nil
}

// State returns a copy of the current field values
func (f *LoginForm) State() LoginState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Submit sends the current fields to the login endpoint.
// On success the user is stored in the shared state and the form navigates
// home; on failure an error notification is shown and the error returned.
// The loading flag is cleared in every case. Nothing prevents a second
// Submit while one is in flight.
func (f *LoginForm) Submit(ctx context.Context) error {
	st := f.State()
	log := f.deps.logger().With(zap.String("form", "login"))

	f.setLoading(ctx, log, true)
	defer f.setLoading(context.WithoutCancel(ctx), log, false)

	res, err := f.api.Login(ctx, userapi.LoginRequest{
		Email:    st.Email,
		Password: st.Password,
		Role:     st.Role,
	}, f.deps.cookies())
	if err != nil {
		log.Warn("login failed", zap.Error(err))
		f.deps.Notifier.Error(userapi.MessageOf(err, LoginFailedMessage))
		return err
	}

	f.deps.storeCookies(res.Cookies)

	unmute := f.redirect.mute()
	if err := f.deps.State.SetUser(ctx, res.User); err != nil {
		log.Error("failed to store signed-in user", zap.Error(err))
	}
	unmute()

	f.deps.Notifier.Success(res.Message)
	f.deps.Navigator.Navigate(HomePath)
	return nil
}

func (f *LoginForm) setLoading(ctx context.Context, log *zap.Logger, loading bool) {
	if err := f.deps.State.SetLoading(ctx, loading); err != nil {
		log.Error("failed to update loading flag", zap.Bool("loading", loading), zap.Error(err))
	}
}
