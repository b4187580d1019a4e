// Package model defines the core domain types for SpotHoot.
package model

import (
	"errors"
	"fmt"
)

const MaxUserNameLength = 64

var ErrUserNameEmpty = errors.New("user name must not be empty")
var ErrUserNameTooLong = fmt.Errorf("user name must not exceed %d characters", MaxUserNameLength)

// UserIdentity is a resolved user profile plus content-provider credentials.
// Persisted identities have a non-zero ID and a unique Name; the guest
// identity has neither and is never persisted.
type UserIdentity struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Guest returns the transient "not logged in" identity.
func Guest() UserIdentity {
	return UserIdentity{}
}

// IsGuest reports whether the identity is the transient guest identity.
func (u UserIdentity) IsGuest() bool {
	return u.ID == 0 && u.Name == ""
}

// ValidateUserName checks that a display name is 1-64 characters.
// Names come from the content provider, so the character set is not
// restricted beyond length.
func ValidateUserName(name string) error {
	if len(name) == 0 {
		return ErrUserNameEmpty
	}
	if len(name) > MaxUserNameLength {
		return ErrUserNameTooLong
	}
	return nil
}
