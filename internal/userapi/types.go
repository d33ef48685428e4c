package userapi

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Role is the account type chosen on the login and signup forms
type Role string

const (
	RoleNone      Role = ""
	RoleStudent   Role = "student"
	RoleRecruiter Role = "recruiter"
)

// User is the identity returned by the login endpoint.
// The server owns its shape; the known fields are decoded and the full
// document is kept in Raw so nothing is dropped when it is stored.
type User struct {
	ID          string          `json:"_id,omitempty"`
	Fullname    string          `json:"fullname,omitempty"`
	Email       string          `json:"email,omitempty"`
	PhoneNumber FlexString      `json:"phoneNumber,omitempty"`
	Role        Role            `json:"role,omitempty"`
	Profile     json.RawMessage `json:"profile,omitempty"`
	Raw         json.RawMessage `json:"-"`
}

// FlexString accepts a JSON string or number.
// Phone numbers come back as numbers from some API versions.
type FlexString string

// UnmarshalJSON handles both string and numeric values
func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("value must be a string or number, got: %s", string(data))
	}
	*f = FlexString(n.String())
	return nil
}

// UnmarshalJSON decodes the known fields and keeps the original document
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*u = User(p)
	u.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON writes the original document back when one was received
func (u User) MarshalJSON() ([]byte, error) {
	if len(u.Raw) > 0 {
		return u.Raw, nil
	}
	type plain User
	return json.Marshal(plain(u))
}

// LoginRequest is the JSON body of POST /login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

// File is a single selected binary blob (the signup profile picture)
type File struct {
	Name        string
	ContentType string
	Content     []byte
}

// RegisterRequest is sent as multipart form data to POST /register
type RegisterRequest struct {
	Fullname    string
	Email       string
	PhoneNumber string
	Password    string
	Role        Role
	File        *File
}

// Envelope is the response body shared by both endpoints
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	User    *User  `json:"user,omitempty"`
}

// Result is a successful API response
type Result struct {
	Envelope
	StatusCode int
	// Cookies holds the Set-Cookie values returned by the API
	Cookies []*http.Cookie
}
