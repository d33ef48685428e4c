package auth

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func formRequest(fields url.Values, cookieToken string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(fields.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookieToken != "" {
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: cookieToken})
	}
	return req
}

func multipartRequest(t *testing.T, fields map[string]string, withFile bool, cookieToken string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if withFile {
		fw, err := mw.CreateFormFile("file", "avatar.png")
		require.NoError(t, err)
		fw.Write([]byte{0x89, 'P', 'N', 'G'})
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/signup", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if cookieToken != "" {
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: cookieToken})
	}
	return req
}

// =============================================================================
// Token generation and comparison
// =============================================================================

func TestGenerateCSRFToken(t *testing.T) {
	token1, err := GenerateCSRFToken()
	require.NoError(t, err)
	token2, err := GenerateCSRFToken()
	require.NoError(t, err)

	assert.Len(t, token1, 44, "32 bytes base64 encoded")
	assert.NotEqual(t, token1, token2)
}

func TestValidateCSRFToken(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		form   string
		want   bool
	}{
		{"matching", "abc", "abc", true},
		{"different", "abc", "abd", false},
		{"empty cookie", "", "abc", false},
		{"empty form", "abc", "", false},
		{"both empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateCSRFToken(tt.cookie, tt.form))
		})
	}
}

// =============================================================================
// Middleware
// =============================================================================

func TestCSRFMiddleware(t *testing.T) {
	handler := CSRF{}.Middleware(okHandler())
	token, _ := GenerateCSRFToken()

	t.Run("GET passes without token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/login", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("POST without token is rejected", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, formRequest(url.Values{"email": {"a@b.c"}}, ""))
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("POST with matching form token passes", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, formRequest(url.Values{CSRFFormFieldName: {token}}, token))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("POST with mismatched token is rejected", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, formRequest(url.Values{CSRFFormFieldName: {"form-token"}}, "cookie-token"))
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("POST with header token passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/logout", nil)
		req.Header.Set(CSRFHeaderName, token)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: token})
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("multipart POST with file and token passes", func(t *testing.T) {
		req := multipartRequest(t, map[string]string{"fullname": "Jane", CSRFFormFieldName: token}, true, token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("multipart POST without token is rejected", func(t *testing.T) {
		req := multipartRequest(t, map[string]string{"fullname": "Jane"}, true, token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestCSRFMiddleware_MultipartFormStaysReadable(t *testing.T) {
	token, _ := GenerateCSRFToken()
	var gotName string
	var gotFile bool
	handler := CSRF{}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotName = r.FormValue("fullname")
		_, _, err := r.FormFile("file")
		gotFile = err == nil
	}))

	handler.ServeHTTP(httptest.NewRecorder(),
		multipartRequest(t, map[string]string{"fullname": "Jane", CSRFFormFieldName: token}, true, token))

	assert.Equal(t, "Jane", gotName)
	assert.True(t, gotFile)
}

// =============================================================================
// Ensure
// =============================================================================

func TestCSRF_Ensure(t *testing.T) {
	t.Run("issues a new token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		token, err := CSRF{Secure: true}.Ensure(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		require.NotEmpty(t, token)

		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, CSRFCookieName, cookies[0].Name)
		assert.Equal(t, token, cookies[0].Value)
		assert.True(t, cookies[0].Secure)
		assert.Equal(t, http.SameSiteStrictMode, cookies[0].SameSite)
	})

	t.Run("keeps an existing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "existing"})
		rr := httptest.NewRecorder()

		token, err := CSRF{}.Ensure(rr, req)

		require.NoError(t, err)
		assert.Equal(t, "existing", token)
		assert.Empty(t, rr.Result().Cookies())
	})
}

// =============================================================================
// Properties
// =============================================================================

func TestPropertyCSRFMiddleware(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.MaxSize = 100

	properties := gopter.NewProperties(parameters)
	handler := CSRF{}.Middleware(okHandler())

	properties.Property("matching tokens are accepted regardless of other fields", prop.ForAll(
		func(field, value string) bool {
			token, err := GenerateCSRFToken()
			if err != nil {
				return false
			}
			fields := url.Values{CSRFFormFieldName: {token}}
			if field != "" && field != CSRFFormFieldName {
				fields.Set(field, value)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, formRequest(fields, token))
			return rr.Code == http.StatusOK
		},
		gen.AlphaString(),
		gen.AnyString(),
	))

	properties.Property("any differing form token is rejected", prop.ForAll(
		func(suffix string) bool {
			token, err := GenerateCSRFToken()
			if err != nil {
				return false
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, formRequest(url.Values{CSRFFormFieldName: {token + "x" + suffix}}, token))
			return rr.Code == http.StatusForbidden
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
