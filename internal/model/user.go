package model

// UserRef identifies the signed-in user for display purposes.
type UserRef struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// DisplayName returns the best human-readable label for the user.
func (u UserRef) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}

// Valid reports whether the record has enough to identify a user.
func (u UserRef) Valid() bool {
	return u.ID != "" || u.Username != ""
}
