package forms

import (
	"context"
	"sync"

	"github.com/jobportal/authweb/internal/userapi"
	"go.uber.org/zap"
)

// SignupState is the local field state of the signup form
type SignupState struct {
	Fullname    string
	Email       string
	PhoneNumber string
	Password    string
	Role        userapi.Role
	File        *userapi.File
}

// SignupForm captures the registration fields and an optional profile picture
type SignupForm struct {
	api      RegisterAPI
	deps     Deps
	redirect *redirector

	mu    sync.Mutex
	state SignupState
}

// NewSignupForm creates an empty signup form
func NewSignupForm(api RegisterAPI, deps Deps) *SignupForm {
	return &SignupForm{
		api:      api,
		deps:     deps,
		redirect: &redirector{nav: deps.Navigator},
	}
}

// Mount starts the signed-in redirect, same as LoginForm.Mount
func (f *SignupForm) Mount() func() {
	return f.redirect.mount(f.deps.State)
}

// ChangeField sets the named text field to value
func (f *SignupForm) ChangeField(name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch name {
	case "fullname":
		f.state.Fullname = value
	case "email":
		f.state.Email = value
	case "phoneNumber":
		f.state.PhoneNumber = value
	case "password":
		f.state.Password = value
	case "role":
		f.state.Role = userapi.Role(value)
	default:
		return ErrUnknownField
	}
	return nil
}

// SetFile keeps the first file of a selection. An empty selection clears
// the previously selected file.
func (f *SignupForm) SetFile(files ...userapi.File) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(files) == 0 {
		f.state.File = nil
		return
	}
	file := files[0]
	f.state.File = &file
}

// State returns a copy of the current field values
func (f *SignupForm) State() SignupState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Submit registers the account. On success a notification is shown and the
// form navigates to the login page without signing the user in.
func (f *SignupForm) Submit(ctx context.Context) error {
	st := f.State()
	log := f.deps.logger().With(zap.String("form", "signup"))

	f.setLoading(ctx, log, true)
	defer f.setLoading(context.WithoutCancel(ctx), log, false)

	res, err := f.api.Register(ctx, userapi.RegisterRequest{
		Fullname:    st.Fullname,
		Email:       st.Email,
		PhoneNumber: st.PhoneNumber,
		Password:    st.Password,
		Role:        st.Role,
		File:        st.File,
	}, f.deps.cookies())
	if err != nil {
		log.Warn("signup failed", zap.Error(err), zap.Bool("with_file", st.File != nil))
		f.deps.Notifier.Error(userapi.MessageOf(err, SignupFailedMessage))
		return err
	}

	f.deps.storeCookies(res.Cookies)
	f.deps.Notifier.Success(res.Message)
	f.deps.Navigator.Navigate(LoginPath)
	return nil
}

func (f *SignupForm) setLoading(ctx context.Context, log *zap.Logger, loading bool) {
	if err := f.deps.State.SetLoading(ctx, loading); err != nil {
		log.Error("failed to update loading flag", zap.Bool("loading", loading), zap.Error(err))
	}
}
