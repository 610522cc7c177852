package auth

import "github.com/rickgao/tradeline/internal/model"

// Source names where an identity came from.
type Source string

const (
	SourcePrimary Source = "primary"
	SourceLegacy  Source = "legacy"
	SourceCache   Source = "cache"
	SourceNone    Source = "none"
)

// Identity is the resolved authentication state.
// Build it with Authenticated or Anonymous so that Authenticated == (User != nil).
type Identity struct {
	Authenticated bool
	User          *model.UserRef
	Source        Source
}

// Authenticated returns a signed-in identity for user.
func Authenticated(user model.UserRef, src Source) Identity {
	u := user
	return Identity{Authenticated: true, User: &u, Source: src}
}

// Anonymous returns the signed-out identity.
func Anonymous() Identity {
	return Identity{Source: SourceNone}
}

// Equal reports whether two identities describe the same state.
func (id Identity) Equal(other Identity) bool {
	if id.Authenticated != other.Authenticated || id.Source != other.Source {
		return false
	}
	if id.User == nil || other.User == nil {
		return id.User == other.User
	}
	return *id.User == *other.User
}

func (id Identity) String() string {
	if !id.Authenticated {
		return "anonymous"
	}
	return id.User.DisplayName() + " (" + string(id.Source) + ")"
}
