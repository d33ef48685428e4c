package forms

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/jobportal/authweb/internal/authstate"
	"github.com/jobportal/authweb/internal/userapi"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test doubles
// =============================================================================

type fakeAPI struct {
	mu          sync.Mutex
	logins      []userapi.LoginRequest
	registers   []userapi.RegisterRequest
	seenCookies [][]*http.Cookie

	// loadingDuringCall records the shared loading flag observed mid-call
	state             *authstate.Store
	loadingDuringCall []bool

	result *userapi.Result
	err    error
}

func (a *fakeAPI) Login(ctx context.Context, in userapi.LoginRequest, creds []*http.Cookie) (*userapi.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logins = append(a.logins, in)
	a.seenCookies = append(a.seenCookies, creds)
	a.observeLoading()
	return a.result, a.err
}

func (a *fakeAPI) Register(ctx context.Context, in userapi.RegisterRequest, creds []*http.Cookie) (*userapi.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.registers = append(a.registers, in)
	a.seenCookies = append(a.seenCookies, creds)
	a.observeLoading()
	return a.result, a.err
}

func (a *fakeAPI) observeLoading() {
	if a.state != nil {
		a.loadingDuringCall = append(a.loadingDuringCall, a.state.Snapshot().Loading)
	}
}

type recordingNavigator struct {
	paths []string
}

func (n *recordingNavigator) Navigate(path string) {
	n.paths = append(n.paths, path)
}

type toast struct {
	kind string
	msg  string
}

type recordingNotifier struct {
	toasts []toast
}

func (n *recordingNotifier) Success(msg string) { n.toasts = append(n.toasts, toast{"success", msg}) }
func (n *recordingNotifier) Error(msg string)   { n.toasts = append(n.toasts, toast{"error", msg}) }

type cookieJar struct {
	in  []*http.Cookie
	out []*http.Cookie
}

func (j *cookieJar) Cookies() []*http.Cookie        { return j.in }
func (j *cookieJar) SetCookies(cks []*http.Cookie) { j.out = append(j.out, cks...) }

type harness struct {
	store  *authstate.Store
	nav    *recordingNavigator
	notify *recordingNotifier
	jar    *cookieJar
	deps   Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := authstate.Open(context.Background(), authstate.NewMemoryBackend(), "sess-test")
	require.NoError(t, err)

	h := &harness{
		store:  store,
		nav:    &recordingNavigator{},
		notify: &recordingNotifier{},
		jar:    &cookieJar{in: []*http.Cookie{{Name: "token", Value: "t0"}}},
	}
	h.deps = Deps{
		State:       store,
		Navigator:   h.nav,
		Notifier:    h.notify,
		Credentials: h.jar,
	}
	return h
}

// loadingTransitions records every value the loading flag takes
func (h *harness) loadingTransitions() *[]bool {
	var seen []bool
	prev := h.store.Snapshot().Loading
	h.store.Subscribe(func(st authstate.State) {
		if st.Loading != prev {
			seen = append(seen, st.Loading)
			prev = st.Loading
		}
	})
	return &seen
}
