package web

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"

	"github.com/jobportal/authweb/internal/auth"
	"github.com/jobportal/authweb/internal/authstate"
	"github.com/jobportal/authweb/internal/forms"
	"github.com/jobportal/authweb/internal/userapi"
	"go.uber.org/zap"
)

//go:embed templates/*
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// MaxUploadBytes caps the signup request body, profile picture included
const MaxUploadBytes = 10 << 20

// pageTemplates holds parsed HTML templates per page
var pageTemplates map[string]*template.Template

func init() {
	pageTemplates = make(map[string]*template.Template)
	for _, page := range []string{"home.html", "login.html", "signup.html"} {
		pageTemplates[page] = template.Must(template.New("").ParseFS(templatesFS,
			"templates/layouts/base.html",
			"templates/pages/"+page,
		))
	}
}

// PageData holds data passed to templates
type PageData struct {
	Title     string
	User      *userapi.User
	Loading   bool
	Flash     *FlashMessage
	CSRFToken string
	Form      interface{}
}

// LoginView is the login form as re-rendered after a failed submission.
// The password is never echoed back.
type LoginView struct {
	Email string
	Role  string
}

// SignupView is the signup form as re-rendered after a failed submission
type SignupView struct {
	Fullname    string
	Email       string
	PhoneNumber string
	Role        string
}

// UserAPI is the user-authentication API used by both forms
type UserAPI interface {
	forms.LoginAPI
	forms.RegisterAPI
}

// Config holds the router's collaborators
type Config struct {
	API      UserAPI
	Backend  authstate.Backend
	Sessions *auth.Sessions
	// RateLimiter guards the login and signup posts; nil disables it
	RateLimiter  *auth.RateLimiter
	CookieSecure bool
	Logger       *zap.Logger
}

// Router serves the login and signup pages
type Router struct {
	mux      *http.ServeMux
	handler  http.Handler
	api      UserAPI
	backend  authstate.Backend
	sessions *auth.Sessions
	limiter  *auth.RateLimiter
	csrf     auth.CSRF
	secure   bool
	logger   *zap.Logger
}

// NewRouter creates a router with all routes configured
func NewRouter(cfg Config) (*Router, error) {
	if cfg.API == nil {
		return nil, errors.New("user API client is required")
	}
	if cfg.Backend == nil {
		return nil, errors.New("auth state backend is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session manager is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	r := &Router{
		mux:      http.NewServeMux(),
		api:      cfg.API,
		backend:  cfg.Backend,
		sessions: cfg.Sessions,
		limiter:  cfg.RateLimiter,
		csrf:     auth.CSRF{Secure: cfg.CookieSecure},
		secure:   cfg.CookieSecure,
		logger:   cfg.Logger,
	}
	r.setupRoutes()
	r.handler = requestLogger(r.logger)(r.mux)
	return r, nil
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

func (r *Router) setupRoutes() {
	staticContent, _ := fs.Sub(staticFS, "static")
	r.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticContent))))
	r.mux.HandleFunc("GET /healthz", r.handleHealth)

	session := auth.SessionMiddleware(r.sessions, r.logger)
	r.mux.Handle("GET /{$}", session(http.HandlerFunc(r.handleHome)))
	r.mux.Handle("GET /login", session(http.HandlerFunc(r.handleLogin)))
	r.mux.Handle("POST /login", session(r.authPost(http.HandlerFunc(r.handleLoginPost))))
	r.mux.Handle("GET /signup", session(http.HandlerFunc(r.handleSignup)))
	r.mux.Handle("POST /signup", session(parseUpload(r.authPost(http.HandlerFunc(r.handleSignupPost)))))
	r.mux.Handle("POST /logout", session(r.csrf.Middleware(http.HandlerFunc(r.handleLogout))))
	r.mux.Handle("GET /api/auth/state", session(http.HandlerFunc(r.handleAuthState)))
}

// authPost applies the rate limit and CSRF check of the form posts
func (r *Router) authPost(next http.Handler) http.Handler {
	next = r.csrf.Middleware(next)
	if r.limiter != nil {
		next = auth.RateLimitMiddleware(r.limiter, r.logger)(next)
	}
	return next
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok")
}

// =============================================================================
// Pages
// =============================================================================

func (r *Router) handleHome(w http.ResponseWriter, req *http.Request) {
	state, ok := r.openState(w, req)
	if !ok {
		return
	}
	snap := state.Snapshot()
	r.renderPage(w, req, "home.html", PageData{
		Title:   "Home",
		User:    snap.User,
		Loading: snap.Loading,
		Flash:   takeFlash(w, req),
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	c, ok := r.newComponent(w, req)
	if !ok {
		return
	}
	form := forms.NewLoginForm(r.api, c.deps)
	unmount := form.Mount()
	defer unmount()
	if c.redirectIfNavigated(w, req) {
		return
	}

	c.render(w, req, "login.html", "Login", LoginView{}, takeFlash(w, req))
}

func (r *Router) handleLoginPost(w http.ResponseWriter, req *http.Request) {
	c, ok := r.newComponent(w, req)
	if !ok {
		return
	}
	form := forms.NewLoginForm(r.api, c.deps)
	unmount := form.Mount()
	defer unmount()
	if c.redirectIfNavigated(w, req) {
		return
	}

	for _, name := range []string{"email", "password", "role"} {
		form.ChangeField(name, req.FormValue(name))
	}

	if err := form.Submit(req.Context()); err != nil {
		st := form.State()
		c.render(w, req, "login.html", "Login", LoginView{
			Email: st.Email,
			Role:  string(st.Role),
		}, c.notify.Message())
		return
	}
	c.redirectIfNavigated(w, req)
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	c, ok := r.newComponent(w, req)
	if !ok {
		return
	}
	form := forms.NewSignupForm(r.api, c.deps)
	unmount := form.Mount()
	defer unmount()
	if c.redirectIfNavigated(w, req) {
		return
	}

	c.render(w, req, "signup.html", "Sign Up", SignupView{}, takeFlash(w, req))
}

func (r *Router) handleSignupPost(w http.ResponseWriter, req *http.Request) {
	c, ok := r.newComponent(w, req)
	if !ok {
		return
	}
	form := forms.NewSignupForm(r.api, c.deps)
	unmount := form.Mount()
	defer unmount()
	if c.redirectIfNavigated(w, req) {
		return
	}

	for _, name := range []string{"fullname", "email", "phoneNumber", "password", "role"} {
		form.ChangeField(name, req.FormValue(name))
	}

	file, err := uploadedFile(req, "file")
	if err != nil {
		r.logger.Warn("failed to read uploaded file", zap.Error(err))
		http.Error(w, "Invalid file upload", http.StatusBadRequest)
		return
	}
	if file != nil {
		form.SetFile(*file)
	}

	if err := form.Submit(req.Context()); err != nil {
		st := form.State()
		c.render(w, req, "signup.html", "Sign Up", SignupView{
			Fullname:    st.Fullname,
			Email:       st.Email,
			PhoneNumber: st.PhoneNumber,
			Role:        string(st.Role),
		}, c.notify.Message())
		return
	}
	c.redirectIfNavigated(w, req)
}

func (r *Router) handleLogout(w http.ResponseWriter, req *http.Request) {
	state, ok := r.openState(w, req)
	if !ok {
		return
	}
	if err := state.Clear(req.Context()); err != nil {
		r.logger.Error("failed to clear session", zap.String("session_id", state.SessionID()), zap.Error(err))
	}
	newCookieRelay(w, req, r.secure).Clear()

	setFlash(w, &FlashMessage{Type: FlashSuccess, Message: "Logged out"}, r.secure)
	http.Redirect(w, req, forms.LoginPath, http.StatusSeeOther)
}

func (r *Router) handleAuthState(w http.ResponseWriter, req *http.Request) {
	state, ok := r.openState(w, req)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(state.Snapshot())
}

// =============================================================================
// Helpers
// =============================================================================

func (r *Router) openState(w http.ResponseWriter, req *http.Request) (*authstate.Store, bool) {
	sessionID := auth.SessionIDFromContext(req.Context())
	state, err := authstate.Open(req.Context(), r.backend, sessionID)
	if err != nil {
		r.logger.Error("failed to load session state", zap.String("session_id", sessionID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil, false
	}
	return state, true
}

func (r *Router) renderPage(w http.ResponseWriter, req *http.Request, page string, data PageData) {
	if data.CSRFToken == "" {
		token, err := r.csrf.Ensure(w, req)
		if err != nil {
			r.logger.Error("failed to issue CSRF token", zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		data.CSRFToken = token
	}

	t, ok := pageTemplates[page]
	if !ok {
		http.Error(w, "Template not found: "+page, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "base.html", data); err != nil {
		r.logger.Error("failed to render page", zap.String("page", page), zap.Error(err))
	}
}

// parseUpload bounds and parses multipart bodies before the CSRF check reads them
func parseUpload(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.ContentLength > MaxUploadBytes {
			http.Error(w, "Upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		req.Body = http.MaxBytesReader(w, req.Body, MaxUploadBytes)
		if err := req.ParseMultipartForm(auth.MultipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, "Upload too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// uploadedFile returns the first file posted under field, or nil when none was chosen
func uploadedFile(req *http.Request, field string) (*userapi.File, error) {
	f, hdr, err := req.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	return &userapi.File{
		Name:        hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Content:     content,
	}, nil
}
