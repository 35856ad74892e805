package accounts

import "encoding/json"

// UserIdentity adapts a User into the Identity view handed to transports.
// It deliberately exposes nothing the account holder should not see about
// themselves: no password hash, no standing, no internal timestamps.
type UserIdentity struct {
	user *User
}

// NewIdentityFromUser returns an Identity adapter for the provided user.
func NewIdentityFromUser(user *User) Identity {
	if user == nil {
		return nil
	}
	return UserIdentity{user: user}
}

func (u UserIdentity) ID() string {
	if u.user == nil {
		return ""
	}
	return u.user.ID.String()
}

func (u UserIdentity) Username() string {
	if u.user == nil {
		return ""
	}
	return u.user.Username
}

func (u UserIdentity) Email() string {
	if u.user == nil {
		return ""
	}
	return u.user.Email
}

func (u UserIdentity) Role() string {
	if u.user == nil {
		return ""
	}
	return string(u.user.Role)
}

// MarshalJSON serializes the identity view, not the backing record.
func (u UserIdentity) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"id":       u.ID(),
		"username": u.Username(),
		"email":    u.Email(),
		"role":     u.Role(),
	})
}
