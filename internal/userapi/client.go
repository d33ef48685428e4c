package userapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"
)

// User API error definitions
var (
	ErrTransport          = errors.New("user API unreachable")
	ErrUnexpectedResponse = errors.New("unexpected user API response")
)

// APIError is an application-level failure reported by the user API:
// a non-2xx status or a body whose success flag is false or absent.
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("user API error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("user API error (status %d)", e.StatusCode)
}

func (e *APIError) Unwrap() error { return e.Err }

// MessageOf returns the message the server attached to err, or fallback
// when there is none (transport failures, unexpected bodies).
func MessageOf(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

const (
	loginPath    = "/login"
	registerPath = "/register"

	// maxResponseBytes bounds how much of a response body is read
	maxResponseBytes = 1 << 20
)

// Client talks to the external user-authentication API
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithTimeout sets a request timeout. Zero means no timeout. The HTTP client
// is copied so a shared client such as http.DefaultClient is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.client
		hc.Timeout = d
		c.client = &hc
	}
}

// WithLogger sets the client logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a user API client rooted at baseURL
// (for example https://api.example.com/api/v1/user).
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client posts to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login posts the credentials as JSON. creds are the caller's cookies,
// forwarded so the API sees the same session the browser has.
func (c *Client) Login(ctx context.Context, in LoginRequest, creds []*http.Cookie) (*Result, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, creds)
}

// Register posts the signup fields as multipart form data. The file part
// is only written when a file was selected.
func (c *Client) Register(ctx context.Context, in RegisterRequest, creds []*http.Cookie) (*Result, error) {
	body, contentType, err := encodeRegister(in)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+registerPath, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	return c.do(req, creds)
}

func encodeRegister(in RegisterRequest) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	fields := []struct{ name, value string }{
		{"fullname", in.Fullname},
		{"email", in.Email},
		{"phoneNumber", in.PhoneNumber},
		{"password", in.Password},
		{"role", string(in.Role)},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", f.name, err)
		}
	}

	if in.File != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(in.File.Name)))
		ct := in.File.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create file part: %w", err)
		}
		if _, err := part.Write(in.File.Content); err != nil {
			return nil, "", fmt.Errorf("failed to write file part: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func (c *Client) do(req *http.Request, creds []*http.Cookie) (*Result, error) {
	for _, ck := range creds {
		req.AddCookie(ck)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrTransport, err)
	}

	c.logger.Debug("user API response",
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
	)

	var env Envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if decodeErr == nil {
			apiErr.Message = env.Message
		} else {
			apiErr.Err = ErrUnexpectedResponse
		}
		return nil, apiErr
	}

	if decodeErr != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Err: ErrUnexpectedResponse}
	}
	if !env.Success {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}

	return &Result{
		Envelope:   env,
		StatusCode: resp.StatusCode,
		Cookies:    resp.Cookies(),
	}, nil
}
