package api

import (
	"bytes"
	"encoding/json"

	"github.com/rickgao/tradeline/internal/model"
)

// StatusSuccess and StatusError are the legacy envelope status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// FlexString accepts either a JSON string or a JSON number.
// User IDs arrive as integers from some server builds and strings from others.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// UserRecord is the user shape returned by both auth schemes.
type UserRecord struct {
	ID        FlexString `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email,omitempty"`
	CreatedAt string     `json:"created_at,omitempty"`
}

// Ref converts the wire record into the domain user reference.
func (u UserRecord) Ref() model.UserRef {
	return model.UserRef{
		ID:        string(u.ID),
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

// SessionStatus from GET /auth/session-status
type SessionStatus struct {
	Authenticated bool        `json:"authenticated"`
	User          *UserRecord `json:"user,omitempty"`
}

// LegacyResponse is the envelope of every legacy auth endpoint.
type LegacyResponse struct {
	Status    string      `json:"status"`
	Message   string      `json:"message"`
	ErrorCode string      `json:"error_code,omitempty"`
	Token     string      `json:"token,omitempty"`
	User      *UserRecord `json:"user,omitempty"`
}

// OK reports whether the envelope carries a success status.
func (r *LegacyResponse) OK() bool {
	return r.Status == StatusSuccess
}

// LoginRequest for POST /api/v1/auth/login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest for POST /api/v1/auth/register
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
