package auth

import "time"

type User struct {
	ID                  string
	Email               string
	Username            *string
	PasswordHash        string
	Description         *string
	ProfilePicture      *string
	FailedLoginAttempts int
	AccountLockedUntil  *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (u User) Lockout() LockoutState {
	return LockoutState{
		FailedAttempts: u.FailedLoginAttempts,
		LockedUntil:    u.AccountLockedUntil,
	}
}

// ProfileClaims is the snapshot of profile data embedded in access tokens.
func (u User) ProfileClaims() ProfileClaims {
	return ProfileClaims{
		UserID:         u.ID,
		Username:       deref(u.Username),
		ProfilePicture: deref(u.ProfilePicture),
	}
}

// Session is what login, signup and refresh hand to the transport layer.
// Only AccessToken may travel in a response body.
type Session struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	CSRFToken        string
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
